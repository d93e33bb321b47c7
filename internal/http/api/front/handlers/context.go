package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/transcript-buddy/transcriptbuddy/internal/auth"
)

// currentUserID reads the authenticated user set by the auth middleware.
// Routes using it are always registered behind that middleware.
func currentUserID(c *gin.Context) uint64 {
	id, _ := auth.UserID(c)
	return id
}
