package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/transcript-buddy/transcriptbuddy/internal/auth"
	"github.com/transcript-buddy/transcriptbuddy/internal/config"
	"github.com/transcript-buddy/transcriptbuddy/internal/models"
	"github.com/transcript-buddy/transcriptbuddy/internal/tiers"
)

const defaultTokenExpiry = 24 * time.Hour

// AuthHandler serves registration and login endpoints.
type AuthHandler struct {
	db     *gorm.DB
	jwtCfg config.JWTConfig
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg}
}

func (h *AuthHandler) expiry() time.Duration {
	if h.jwtCfg.Expiry > 0 {
		return h.jwtCfg.Expiry
	}
	return defaultTokenExpiry
}

// registerRequest defines the request body for account registration.
type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Register creates a new user account on the free tier.
func (h *AuthHandler) Register(c *gin.Context) {
	var body registerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if email == "" || !strings.Contains(email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		return
	}
	if len(body.Password) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 8 characters"})
		return
	}

	var existing models.User
	errFind := h.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&existing).Error
	if errFind == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		return
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup user failed"})
		return
	}

	hash, errHash := auth.HashPassword(body.Password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	user := models.User{
		Email:    email,
		Name:     strings.TrimSpace(body.Name),
		Password: hash,
		Tier:     string(tiers.TierFree),
		Active:   true,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&user).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}

	token, errToken := auth.IssueUserToken(h.jwtCfg.Secret, user.ID, user.Email, h.expiry())
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
		"tier":  user.Tier,
		"token": token,
	})
}

// loginRequest defines the request body for login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates a user and issues a bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))

	var user models.User
	errFind := h.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error
	if errFind != nil || !auth.CheckPassword(user.Password, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !user.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "user disabled"})
		return
	}

	token, errToken := auth.IssueUserToken(h.jwtCfg.Secret, user.ID, user.Email, h.expiry())
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(h.expiry().Seconds()),
		"user": gin.H{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
			"tier":  user.Tier,
		},
	})
}
