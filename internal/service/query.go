package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/transcript-buddy/transcriptbuddy/internal/models"
	"github.com/transcript-buddy/transcriptbuddy/internal/ratelimit"
	"github.com/transcript-buddy/transcriptbuddy/internal/retriever"
	"github.com/transcript-buddy/transcriptbuddy/internal/settings"
	"github.com/transcript-buddy/transcriptbuddy/internal/synthesizer"
	"github.com/transcript-buddy/transcriptbuddy/internal/usage"
	"github.com/transcript-buddy/transcriptbuddy/internal/vectorstore"
)

// AskOptions carry per-request overrides for one question.
type AskOptions struct {
	Provider      string   // Provider override, empty keeps the conversation setting.
	Model         string   // Model override.
	Temperature   float64  // Temperature override, 0 keeps the conversation setting.
	MaxResults    int      // Retrieval depth, 0 means the default.
	MinScore      float32  // Score threshold, negative means the default.
	TranscriptIDs []uint64 // Restrict retrieval to these transcripts.
	Complex       *bool    // Billing class override; nil applies the heuristic.
}

// SearchHit is one preview result of search mode.
type SearchHit struct {
	TranscriptID  uint64  `json:"transcript_id"`  // Transcript the chunk belongs to.
	SequenceIndex int     `json:"sequence_index"` // Chunk position within the transcript.
	Score         float32 `json:"score"`          // Similarity score.
	Preview       string  `json:"preview"`        // Chunk text.
}

// complexMarkers flag questions that need heavier reasoning. Anything
// matching one, or a long multi-part question, bills at the complex rate.
var complexMarkers = []string{
	"compare", "analyze", "analyse", "summarize", "summarise",
	"difference", "evaluate", "explain why", "pros and cons",
}

// Query answers questions over a conversation's indexed transcripts. The
// quota reservation happens before the provider call, so a cancelled
// completion still counts against the monthly limit.
type Query struct {
	db          *gorm.DB
	ledger      *usage.Ledger
	retriever   *retriever.Retriever
	synthesizer *synthesizer.Synthesizer
	limiter     ratelimit.Limiter
	ratePerMin  int
}

// NewQuery constructs the query service. A nil limiter disables rate
// limiting.
func NewQuery(db *gorm.DB, ledger *usage.Ledger, r *retriever.Retriever, s *synthesizer.Synthesizer, limiter ratelimit.Limiter, ratePerMin int) *Query {
	if ratePerMin <= 0 {
		ratePerMin = settings.DefaultQueryRateLimitPerMinute
	}
	return &Query{db: db, ledger: ledger, retriever: r, synthesizer: s, limiter: limiter, ratePerMin: ratePerMin}
}

func validateQuestion(question string) (string, error) {
	question = strings.TrimSpace(question)
	if len(question) < settings.MinQuestionLength {
		return "", &ValidationError{Field: "question", Message: fmt.Sprintf("must be at least %d characters", settings.MinQuestionLength)}
	}
	if len(question) > settings.MaxQuestionLength {
		return "", &ValidationError{Field: "question", Message: fmt.Sprintf("must be at most %d characters", settings.MaxQuestionLength)}
	}
	return question, nil
}

// classifyQuery decides the billing class of a question.
func classifyQuery(question string) usage.OpKind {
	lower := strings.ToLower(question)
	for _, marker := range complexMarkers {
		if strings.Contains(lower, marker) {
			return usage.OpQueryComplex
		}
	}
	if len(strings.Fields(lower)) > 30 {
		return usage.OpQueryComplex
	}
	return usage.OpQuerySimple
}

func (q *Query) conversationForQuery(ctx context.Context, userID, conversationID uint64) (*models.Conversation, error) {
	var conv models.Conversation
	errFind := q.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", conversationID, userID).
		First(&conv).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load conversation: %w", errFind)
	}
	if conv.IsLocked {
		return nil, ErrConversationLocked
	}
	return &conv, nil
}

func (q *Query) checkRate(ctx context.Context, userID uint64) error {
	if q.limiter == nil {
		return nil
	}
	res, errAllow := q.limiter.Allow(ctx, ratelimit.QueryKey(userID), q.ratePerMin, time.Now())
	if errAllow != nil {
		// A broken limiter backend must not take queries down with it.
		log.WithError(errAllow).Warn("rate limiter unavailable, allowing request")
		return nil
	}
	if !res.Allowed {
		return &RateLimitedError{Reset: res.Reset}
	}
	return nil
}

// Ask answers a question over the conversation's transcripts and records
// the billable operation.
func (q *Query) Ask(ctx context.Context, userID, conversationID uint64, question string, opts AskOptions) (synthesizer.Answer, error) {
	question, errValidate := validateQuestion(question)
	if errValidate != nil {
		return synthesizer.Answer{}, errValidate
	}
	if errRate := q.checkRate(ctx, userID); errRate != nil {
		return synthesizer.Answer{}, errRate
	}

	conv, errConv := q.conversationForQuery(ctx, userID, conversationID)
	if errConv != nil {
		return synthesizer.Answer{}, errConv
	}
	if opts.Provider != "" {
		conv.Provider = opts.Provider
	}
	if opts.Model != "" {
		conv.Model = opts.Model
	}
	if opts.Temperature != 0 {
		conv.Temperature = opts.Temperature
	}

	kind := classifyQuery(question)
	if opts.Complex != nil {
		kind = usage.OpQuerySimple
		if *opts.Complex {
			kind = usage.OpQueryComplex
		}
	}
	if errReserve := q.ledger.CheckAndReserve(ctx, userID, kind); errReserve != nil {
		return synthesizer.Answer{}, errReserve
	}

	minScore := opts.MinScore
	if minScore < 0 {
		minScore = settings.DefaultMinScore
	}
	result, errRetrieve := q.retriever.Retrieve(ctx, conv.ID, question, opts.MaxResults, minScore, opts.TranscriptIDs)
	if errRetrieve != nil {
		return synthesizer.Answer{}, errRetrieve
	}

	answer, errAnswer := q.synthesizer.Answer(ctx, conv, question, result.Matches, result.Confidence)
	if errAnswer != nil {
		return synthesizer.Answer{}, errAnswer
	}

	if errCost := q.ledger.RecordQueryCost(ctx, userID, kind, conv.Model); errCost != nil {
		log.WithError(errCost).Warn("failed to record query cost")
	}
	return answer, nil
}

// Search runs retrieval without synthesis. It is side-effect free: no
// quota reservation, no cost accrual.
func (q *Query) Search(ctx context.Context, userID, conversationID uint64, query string, maxResults int, minScore float32) ([]SearchHit, error) {
	query, errValidate := validateQuestion(query)
	if errValidate != nil {
		return nil, errValidate
	}
	if errRate := q.checkRate(ctx, userID); errRate != nil {
		return nil, errRate
	}

	var conv models.Conversation
	errFind := q.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", conversationID, userID).
		First(&conv).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load conversation: %w", errFind)
	}

	if minScore < 0 {
		minScore = settings.DefaultMinScore
	}
	result, errRetrieve := q.retriever.Retrieve(ctx, conv.ID, query, maxResults, minScore, nil)
	if errRetrieve != nil {
		return nil, errRetrieve
	}
	return toHits(result.Matches), nil
}

func toHits(matches []vectorstore.Match) []SearchHit {
	hits := make([]SearchHit, len(matches))
	for i, m := range matches {
		hits[i] = SearchHit{
			TranscriptID:  m.TranscriptID,
			SequenceIndex: m.SequenceIndex,
			Score:         m.Score,
			Preview:       m.Text,
		}
	}
	return hits
}
