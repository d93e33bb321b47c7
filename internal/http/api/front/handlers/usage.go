package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/transcript-buddy/transcriptbuddy/internal/models"
	"github.com/transcript-buddy/transcriptbuddy/internal/service"
	"github.com/transcript-buddy/transcriptbuddy/internal/tiers"
	"github.com/transcript-buddy/transcriptbuddy/internal/usage"
)

// UsageHandler serves usage readouts, tier listings, and downgrades.
type UsageHandler struct {
	db            *gorm.DB
	ledger        *usage.Ledger
	conversations *service.Conversations
}

// NewUsageHandler constructs a UsageHandler.
func NewUsageHandler(db *gorm.DB, ledger *usage.Ledger, conversations *service.Conversations) *UsageHandler {
	return &UsageHandler{db: db, ledger: ledger, conversations: conversations}
}

// Summary returns the caller's usage for one billing period, defaulting
// to the current one.
func (h *UsageHandler) Summary(c *gin.Context) {
	period := strings.TrimSpace(c.Query("period"))
	if period == "" {
		period = usage.Period(time.Now())
	} else if _, errParse := time.Parse("2006-01", period); errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period, expected YYYY-MM"})
		return
	}

	summary, errSummary := h.ledger.SummaryFor(c.Request.Context(), currentUserID(c), period)
	if errSummary != nil {
		respondServiceError(c, errSummary)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Limits returns the caller's remaining headroom per limit class.
func (h *UsageHandler) Limits(c *gin.Context) {
	statuses, errLimits := h.ledger.LimitsFor(c.Request.Context(), currentUserID(c))
	if errLimits != nil {
		respondServiceError(c, errLimits)
		return
	}
	c.JSON(http.StatusOK, gin.H{"limits": statuses})
}

// Tiers returns the tier catalog with each tier's ceilings.
func (h *UsageHandler) Tiers(c *gin.Context) {
	entries := tiers.All()
	out := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		out = append(out, gin.H{
			"tier":                       entry.Tier,
			"max_conversations":          entry.Limits.MaxConversations,
			"max_files_per_conversation": entry.Limits.MaxFilesPerConversation,
			"max_queries_per_month":      entry.Limits.MaxQueriesPerMonth,
			"max_file_size_mb":           entry.Limits.MaxFileSizeMB,
			"allowed_providers":          entry.Limits.AllowedProviders,
		})
	}
	c.JSON(http.StatusOK, gin.H{"tiers": out})
}

// downgradeRequest defines the body for downgrade calls.
type downgradeRequest struct {
	Tier string `json:"tier"`
}

// ValidateDowngrade reports which limits the caller's current holdings
// would exceed under the target tier, without changing anything.
func (h *UsageHandler) ValidateDowngrade(c *gin.Context) {
	var body downgradeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	target := tiers.Parse(body.Tier)

	violations, errValidate := h.ledger.ValidateDowngrade(c.Request.Context(), currentUserID(c), target)
	if errValidate != nil {
		respondServiceError(c, errValidate)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tier":       target,
		"allowed":    len(violations) == 0,
		"violations": violations,
	})
}

// Downgrade switches the caller to the target tier. Conversations left
// over the new per-conversation file limit get locked rather than
// trimmed; the data stays readable.
func (h *UsageHandler) Downgrade(c *gin.Context) {
	var body downgradeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	target := tiers.Parse(body.Tier)
	userID := currentUserID(c)

	locked, errLocks := h.conversations.ApplyDowngradeLocks(c.Request.Context(), userID, target)
	if errLocks != nil {
		respondServiceError(c, errLocks)
		return
	}
	errSave := h.db.WithContext(c.Request.Context()).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("tier", string(target)).Error
	if errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update tier failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tier": target, "locked_conversations": locked})
}
