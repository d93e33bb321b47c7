package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/transcript-buddy/transcriptbuddy/internal/models"
	"github.com/transcript-buddy/transcriptbuddy/internal/service"
)

// ConversationHandler serves conversation lifecycle endpoints.
type ConversationHandler struct {
	svc *service.Conversations
}

// NewConversationHandler constructs a ConversationHandler.
func NewConversationHandler(svc *service.Conversations) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func conversationJSON(conv *models.Conversation) gin.H {
	return gin.H{
		"id":          conv.ID,
		"name":        conv.Name,
		"provider":    conv.Provider,
		"model":       conv.Model,
		"temperature": conv.Temperature,
		"base_url":    conv.BaseURL,
		"is_locked":   conv.IsLocked,
		"lock_reason": conv.LockReason,
		"locked_at":   conv.LockedAt,
		"created_at":  conv.CreatedAt,
		"updated_at":  conv.UpdatedAt,
	}
}

// conversationRequest defines the body for create and update calls.
type conversationRequest struct {
	Name        string  `json:"name"`
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	BaseURL     string  `json:"base_url"`
}

// Create creates a conversation for the calling user.
func (h *ConversationHandler) Create(c *gin.Context) {
	var body conversationRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	conv, errCreate := h.svc.Create(c.Request.Context(), currentUserID(c), body.Name, service.ConversationSettings{
		Provider:    body.Provider,
		Model:       body.Model,
		Temperature: body.Temperature,
		BaseURL:     body.BaseURL,
	})
	if errCreate != nil {
		respondServiceError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, conversationJSON(conv))
}

// List returns the caller's conversations, newest first.
func (h *ConversationHandler) List(c *gin.Context) {
	conversations, errList := h.svc.List(c.Request.Context(), currentUserID(c))
	if errList != nil {
		respondServiceError(c, errList)
		return
	}
	out := make([]gin.H, 0, len(conversations))
	for i := range conversations {
		out = append(out, conversationJSON(&conversations[i]))
	}
	c.JSON(http.StatusOK, gin.H{"conversations": out})
}

// Get returns one conversation.
func (h *ConversationHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	conv, errGet := h.svc.Get(c.Request.Context(), currentUserID(c), id)
	if errGet != nil {
		respondServiceError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, conversationJSON(conv))
}

// Update changes the conversation's name and provider settings. Omitted
// fields keep their current values.
func (h *ConversationHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body conversationRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	userID := currentUserID(c)
	conv, errUpdate := h.svc.UpdateSettings(c.Request.Context(), userID, id, service.ConversationSettings{
		Provider:    body.Provider,
		Model:       body.Model,
		Temperature: body.Temperature,
		BaseURL:     body.BaseURL,
	})
	if errUpdate != nil {
		respondServiceError(c, errUpdate)
		return
	}
	if strings.TrimSpace(body.Name) != "" {
		conv, errUpdate = h.svc.Rename(c.Request.Context(), userID, id, body.Name)
		if errUpdate != nil {
			respondServiceError(c, errUpdate)
			return
		}
	}
	c.JSON(http.StatusOK, conversationJSON(conv))
}

// Unlock lifts a downgrade lock once the conversation is back under the
// tier limits.
func (h *ConversationHandler) Unlock(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if errUnlock := h.svc.Unlock(c.Request.Context(), currentUserID(c), id); errUnlock != nil {
		respondServiceError(c, errUnlock)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unlocked": true})
}

// Delete removes the conversation, its transcripts, and its vectors.
func (h *ConversationHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if errDelete := h.svc.Delete(c.Request.Context(), currentUserID(c), id); errDelete != nil {
		respondServiceError(c, errDelete)
		return
	}
	c.Status(http.StatusNoContent)
}
