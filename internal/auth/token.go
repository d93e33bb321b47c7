// Package auth issues and validates user tokens and guards HTTP routes.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errEmptySecret  = errors.New("jwt secret is empty")
	errInvalidToken = errors.New("invalid token")
)

// Claims is the JWT payload carried by user tokens.
type Claims struct {
	UserID uint64 `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// IssueUserToken signs a token for the user, valid for the given expiry.
func IssueUserToken(secret string, userID uint64, email string, expiry time.Duration) (string, error) {
	if secret == "" {
		return "", errEmptySecret
	}
	now := time.Now().UTC()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseUserToken validates a token and returns its claims.
func ParseUserToken(secret, raw string) (*Claims, error) {
	if secret == "" {
		return nil, errEmptySecret
	}
	claims := &Claims{}
	token, errParse := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return []byte(secret), nil
	})
	if errParse != nil {
		return nil, errParse
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, errInvalidToken
	}
	return claims, nil
}
