package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/transcript-buddy/transcriptbuddy/internal/service"
)

// QueryHandler serves question answering and search-mode endpoints.
type QueryHandler struct {
	svc *service.Query
}

// NewQueryHandler constructs a QueryHandler.
func NewQueryHandler(svc *service.Query) *QueryHandler {
	return &QueryHandler{svc: svc}
}

// askRequest defines the body for a question. Pointer fields distinguish
// "omitted" from zero so callers can explicitly ask for min_score 0.
type askRequest struct {
	Question      string   `json:"question"`
	Provider      string   `json:"provider"`
	Model         string   `json:"model"`
	Temperature   float64  `json:"temperature"`
	MaxResults    int      `json:"max_results"`
	MinScore      *float32 `json:"min_score"`
	TranscriptIDs []uint64 `json:"transcript_ids"`
	Complex       *bool    `json:"complex"`
}

// Ask answers a question over the conversation's indexed transcripts.
func (h *QueryHandler) Ask(c *gin.Context) {
	conversationID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body askRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	minScore := float32(-1)
	if body.MinScore != nil {
		minScore = *body.MinScore
	}
	answer, errAsk := h.svc.Ask(c.Request.Context(), currentUserID(c), conversationID, body.Question, service.AskOptions{
		Provider:      body.Provider,
		Model:         body.Model,
		Temperature:   body.Temperature,
		MaxResults:    body.MaxResults,
		MinScore:      minScore,
		TranscriptIDs: body.TranscriptIDs,
		Complex:       body.Complex,
	})
	if errAsk != nil {
		respondServiceError(c, errAsk)
		return
	}
	c.JSON(http.StatusOK, answer)
}

// searchRequest defines the body for search mode.
type searchRequest struct {
	Query      string   `json:"query"`
	MaxResults int      `json:"max_results"`
	MinScore   *float32 `json:"min_score"`
}

// Search returns raw retrieval matches without calling a provider. It is
// free and works on locked conversations.
func (h *QueryHandler) Search(c *gin.Context) {
	conversationID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body searchRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	minScore := float32(-1)
	if body.MinScore != nil {
		minScore = *body.MinScore
	}
	hits, errSearch := h.svc.Search(c.Request.Context(), currentUserID(c), conversationID, body.Query, body.MaxResults, minScore)
	if errSearch != nil {
		respondServiceError(c, errSearch)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": hits, "count": len(hits)})
}
