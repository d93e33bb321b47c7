package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/transcript-buddy/transcriptbuddy/internal/config"
	"github.com/transcript-buddy/transcriptbuddy/internal/models"
)

const (
	// ContextUserID is the gin context key holding the caller's user ID.
	ContextUserID = "userID"
	// ContextUserTier is the gin context key holding the caller's tier name.
	ContextUserTier = "userTier"
)

// Middleware validates bearer tokens and loads the calling user.
func Middleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := ParseUserToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if !user.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user disabled"})
			return
		}

		c.Set(ContextUserID, user.ID)
		c.Set(ContextUserTier, user.Tier)
		c.Next()
	}
}

// UserID extracts the authenticated user ID from a gin context.
func UserID(c *gin.Context) (uint64, bool) {
	v, exists := c.Get(ContextUserID)
	if !exists {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}
