// Package usage is the per-user, per-period ledger: operation counters,
// cost accrual, tier-limit gates, and downgrade validation.
package usage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/transcript-buddy/transcriptbuddy/internal/models"
	"github.com/transcript-buddy/transcriptbuddy/internal/tiers"
)

// OpKind identifies one billable operation class.
type OpKind string

const (
	// OpUpload is a transcript file upload.
	OpUpload OpKind = "upload"
	// OpQuerySimple is a question answered without heavy reasoning.
	OpQuerySimple OpKind = "query_simple"
	// OpQueryComplex is a question classified as complex.
	OpQueryComplex OpKind = "query_complex"
)

// Pricing in micro-dollars. The innovation fee is applied on top of the
// base price plus any model surcharge.
const (
	uploadPerMBMicros    = 100_000
	querySimpleMicros    = 10_000
	queryComplexMicros   = 50_000
	innovationFeePercent = 0.15
)

var modelSurchargeMicros = map[string]int64{
	"gpt-4":  30_000,
	"claude": 20_000,
}

// QuotaExceededError reports a rejected reservation. Nothing has been
// mutated when it is returned.
type QuotaExceededError struct {
	Kind    string `json:"kind"`    // Limit class, e.g. "queries" or "conversations".
	Current int    `json:"current"` // Counter value at evaluation time.
	Limit   int    `json:"limit"`   // Tier limit that was hit.
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s at %d of %d", e.Kind, e.Current, e.Limit)
}

// Violation is one downgrade blocker. ConversationID is zero when the
// violation concerns the user's total conversation count.
type Violation struct {
	ConversationID uint64 `json:"conversation_id"` // Offending conversation, 0 for the total-conversations check.
	Kind           string `json:"kind"`            // Limit class that would be exceeded.
	Current        int    `json:"current"`         // Current count.
	Limit          int    `json:"limit"`           // Limit under the target tier.
	Excess         int    `json:"excess"`          // How far over the new limit the count is.
}

// KindSummary aggregates one operation class within a period.
type KindSummary struct {
	Count      int64   `json:"count"`       // Recorded operations.
	CostMicros int64   `json:"cost_micros"` // Accrued cost in micro-dollars.
	Cost       float64 `json:"cost"`        // Accrued cost in dollars.
}

// Summary is the per-period usage readout.
type Summary struct {
	Period          string      `json:"period"`            // YYYY-MM period key.
	Uploads         KindSummary `json:"uploads"`           // Upload counters.
	Queries         KindSummary `json:"queries"`           // Combined simple and complex query counters.
	TotalCostMicros int64       `json:"total_cost_micros"` // Total accrued cost.
	TotalCost       float64     `json:"total_cost"`        // Total cost in dollars.
}

// LimitStatus is the remaining headroom for one limit class.
type LimitStatus struct {
	Kind      string `json:"kind"`      // Limit class.
	Current   int    `json:"current"`   // Current counter value.
	Limit     int    `json:"limit"`     // Tier limit, -1 for unlimited.
	Remaining int    `json:"remaining"` // Remaining headroom, -1 for unlimited.
}

// Period formats t as the ledger's period key.
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Ledger gates and records billable operations against tier limits. The
// check-and-increment critical section is serialized per user so that
// concurrent reservations can never push a counter past its limit.
type Ledger struct {
	db *gorm.DB

	mu     sync.Mutex
	userMu map[uint64]*sync.Mutex
}

// NewLedger constructs a Ledger backed by GORM.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db, userMu: make(map[uint64]*sync.Mutex)}
}

func (l *Ledger) userLock(userID uint64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	mu := l.userMu[userID]
	if mu == nil {
		mu = &sync.Mutex{}
		l.userMu[userID] = mu
	}
	return mu
}

func (l *Ledger) loadTier(ctx context.Context, tx *gorm.DB, userID uint64) (tiers.Tier, error) {
	var user models.User
	if errFind := tx.WithContext(ctx).Select("tier").First(&user, userID).Error; errFind != nil {
		return "", fmt.Errorf("load user %d: %w", userID, errFind)
	}
	return tiers.Parse(user.Tier), nil
}

func queryCount(ctx context.Context, tx *gorm.DB, userID uint64, period string) (int64, error) {
	var count int64
	errSum := tx.WithContext(ctx).
		Model(&models.UsageRecord{}).
		Where("user_id = ? AND period = ? AND kind IN ?", userID, period, []string{string(OpQuerySimple), string(OpQueryComplex)}).
		Select("COALESCE(SUM(count), 0)").
		Scan(&count).Error
	return count, errSum
}

func incrementCounter(ctx context.Context, tx *gorm.DB, userID uint64, period string, kind OpKind, costMicros int64) error {
	now := time.Now().UTC()
	row := models.UsageRecord{
		UserID:     userID,
		Period:     period,
		Kind:       string(kind),
		Count:      1,
		CostMicros: costMicros,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "period"}, {Name: "kind"}},
			DoUpdates: clause.Assignments(map[string]any{
				"count":       gorm.Expr("count + ?", 1),
				"cost_micros": gorm.Expr("cost_micros + ?", costMicros),
				"updated_at":  now,
			}),
		}).
		Create(&row).Error
}

// CheckAndReserve gates one query against the tier's monthly query limit
// and, when allowed, atomically increments the counter. The reservation
// happens before the provider call, so a cancelled completion still
// counts as a consumed attempt.
func (l *Ledger) CheckAndReserve(ctx context.Context, userID uint64, kind OpKind) error {
	if kind != OpQuerySimple && kind != OpQueryComplex {
		return fmt.Errorf("unsupported reservation kind %q", kind)
	}

	mu := l.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	period := Period(time.Now())
	return l.db.Transaction(func(tx *gorm.DB) error {
		tier, errTier := l.loadTier(ctx, tx, userID)
		if errTier != nil {
			return errTier
		}
		limits := tiers.LimitsFor(tier)

		current, errCount := queryCount(ctx, tx, userID, period)
		if errCount != nil {
			return fmt.Errorf("load query count: %w", errCount)
		}
		if !tiers.WithinLimit(int(current), limits.MaxQueriesPerMonth) {
			return &QuotaExceededError{Kind: "queries", Current: int(current), Limit: limits.MaxQueriesPerMonth}
		}
		return incrementCounter(ctx, tx, userID, period, kind, 0)
	})
}

// RecordQueryCost accrues the cost of one answered query: base price by
// complexity, model surcharge when applicable, plus the innovation fee.
func (l *Ledger) RecordQueryCost(ctx context.Context, userID uint64, kind OpKind, model string) error {
	base := int64(querySimpleMicros)
	if kind == OpQueryComplex {
		base = queryComplexMicros
	}
	subtotal := base + modelSurchargeMicros[model]
	total := withInnovationFee(subtotal)

	period := Period(time.Now())
	errAccrue := l.db.WithContext(ctx).
		Model(&models.UsageRecord{}).
		Where("user_id = ? AND period = ? AND kind = ?", userID, period, string(kind)).
		Updates(map[string]any{
			"cost_micros": gorm.Expr("cost_micros + ?", total),
			"updated_at":  time.Now().UTC(),
		}).Error
	if errAccrue != nil {
		return fmt.Errorf("accrue query cost: %w", errAccrue)
	}
	log.WithFields(log.Fields{"user_id": userID, "kind": kind, "cost_micros": total}).Debug("recorded query cost")
	return nil
}

// withInnovationFee applies the platform fee to a micro-dollar subtotal.
func withInnovationFee(subtotalMicros int64) int64 {
	return int64(math.Round(float64(subtotalMicros) * (1 + innovationFeePercent)))
}

// uploadCostMicros prices an upload by size, fee included.
func uploadCostMicros(sizeBytes int64) int64 {
	sizeMB := float64(sizeBytes) / (1024 * 1024)
	base := sizeMB * uploadPerMBMicros
	return int64(math.Round(base * (1 + innovationFeePercent)))
}

// ReserveConversation gates conversation creation against the tier's
// conversation limit and runs create in the same transaction, so the
// count check and the insert are atomic.
func (l *Ledger) ReserveConversation(ctx context.Context, userID uint64, create func(tx *gorm.DB) error) error {
	mu := l.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	return l.db.Transaction(func(tx *gorm.DB) error {
		tier, errTier := l.loadTier(ctx, tx, userID)
		if errTier != nil {
			return errTier
		}
		limits := tiers.LimitsFor(tier)

		var current int64
		if errCount := tx.WithContext(ctx).
			Model(&models.Conversation{}).
			Where("user_id = ?", userID).
			Count(&current).Error; errCount != nil {
			return fmt.Errorf("count conversations: %w", errCount)
		}
		if !tiers.WithinLimit(int(current), limits.MaxConversations) {
			return &QuotaExceededError{Kind: "conversations", Current: int(current), Limit: limits.MaxConversations}
		}
		return create(tx)
	})
}

// ReserveUpload gates one file upload: file size and per-conversation
// file count against the tier limits, then increments the upload counter,
// accrues the upload cost, and runs persist in the same transaction.
func (l *Ledger) ReserveUpload(ctx context.Context, userID, conversationID uint64, sizeBytes int64, persist func(tx *gorm.DB) error) error {
	mu := l.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	period := Period(time.Now())
	return l.db.Transaction(func(tx *gorm.DB) error {
		tier, errTier := l.loadTier(ctx, tx, userID)
		if errTier != nil {
			return errTier
		}
		limits := tiers.LimitsFor(tier)

		if limits.MaxFileSizeMB != tiers.Unlimited {
			maxBytes := int64(limits.MaxFileSizeMB) * 1024 * 1024
			if sizeBytes > maxBytes {
				return &QuotaExceededError{
					Kind:    "file_size_mb",
					Current: int(sizeBytes / (1024 * 1024)),
					Limit:   limits.MaxFileSizeMB,
				}
			}
		}

		var current int64
		if errCount := tx.WithContext(ctx).
			Model(&models.Transcript{}).
			Where("conversation_id = ?", conversationID).
			Count(&current).Error; errCount != nil {
			return fmt.Errorf("count transcripts: %w", errCount)
		}
		if !tiers.WithinLimit(int(current), limits.MaxFilesPerConversation) {
			return &QuotaExceededError{Kind: "files_per_conversation", Current: int(current), Limit: limits.MaxFilesPerConversation}
		}

		if errIncrement := incrementCounter(ctx, tx, userID, period, OpUpload, uploadCostMicros(sizeBytes)); errIncrement != nil {
			return errIncrement
		}
		return persist(tx)
	})
}

// SummaryFor returns the usage readout for a period. An empty period
// means the current one. The read is side-effect free.
func (l *Ledger) SummaryFor(ctx context.Context, userID uint64, period string) (Summary, error) {
	if period == "" {
		period = Period(time.Now())
	}

	var rows []models.UsageRecord
	if errFind := l.db.WithContext(ctx).
		Where("user_id = ? AND period = ?", userID, period).
		Find(&rows).Error; errFind != nil {
		return Summary{}, fmt.Errorf("load usage records: %w", errFind)
	}

	out := Summary{Period: period}
	for _, row := range rows {
		switch OpKind(row.Kind) {
		case OpUpload:
			out.Uploads.Count += row.Count
			out.Uploads.CostMicros += row.CostMicros
		case OpQuerySimple, OpQueryComplex:
			out.Queries.Count += row.Count
			out.Queries.CostMicros += row.CostMicros
		}
		out.TotalCostMicros += row.CostMicros
	}
	out.Uploads.Cost = dollars(out.Uploads.CostMicros)
	out.Queries.Cost = dollars(out.Queries.CostMicros)
	out.TotalCost = dollars(out.TotalCostMicros)
	return out, nil
}

func dollars(micros int64) float64 {
	return math.Round(float64(micros)/10_000) / 100
}

// LimitsFor reports the current-period headroom per limit class.
func (l *Ledger) LimitsFor(ctx context.Context, userID uint64) ([]LimitStatus, error) {
	tier, errTier := l.loadTier(ctx, l.db, userID)
	if errTier != nil {
		return nil, errTier
	}
	limits := tiers.LimitsFor(tier)
	period := Period(time.Now())

	var conversations int64
	if errCount := l.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("user_id = ?", userID).
		Count(&conversations).Error; errCount != nil {
		return nil, fmt.Errorf("count conversations: %w", errCount)
	}

	queries, errQueries := queryCount(ctx, l.db, userID, period)
	if errQueries != nil {
		return nil, fmt.Errorf("load query count: %w", errQueries)
	}

	return []LimitStatus{
		limitStatus("conversations", int(conversations), limits.MaxConversations),
		limitStatus("queries_per_month", int(queries), limits.MaxQueriesPerMonth),
		limitStatus("files_per_conversation", 0, limits.MaxFilesPerConversation),
		limitStatus("file_size_mb", 0, limits.MaxFileSizeMB),
	}, nil
}

func limitStatus(kind string, current, limit int) LimitStatus {
	remaining := tiers.Unlimited
	if limit != tiers.Unlimited {
		remaining = limit - current
		if remaining < 0 {
			remaining = 0
		}
	}
	return LimitStatus{Kind: kind, Current: current, Limit: limit, Remaining: remaining}
}

// ValidateDowngrade computes the violations that moving the user to the
// target tier would create. Nothing is mutated; locking over-limit
// conversations is a separate explicit action.
func (l *Ledger) ValidateDowngrade(ctx context.Context, userID uint64, target tiers.Tier) ([]Violation, error) {
	limits := tiers.LimitsFor(target)
	violations := make([]Violation, 0)

	var conversations []models.Conversation
	if errFind := l.db.WithContext(ctx).
		Select("id").
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&conversations).Error; errFind != nil {
		return nil, fmt.Errorf("load conversations: %w", errFind)
	}

	if limits.MaxConversations != tiers.Unlimited && len(conversations) > limits.MaxConversations {
		violations = append(violations, Violation{
			Kind:    "conversations",
			Current: len(conversations),
			Limit:   limits.MaxConversations,
			Excess:  len(conversations) - limits.MaxConversations,
		})
	}

	if limits.MaxFilesPerConversation != tiers.Unlimited {
		for _, conv := range conversations {
			var files int64
			if errCount := l.db.WithContext(ctx).
				Model(&models.Transcript{}).
				Where("conversation_id = ?", conv.ID).
				Count(&files).Error; errCount != nil {
				return nil, fmt.Errorf("count transcripts for conversation %d: %w", conv.ID, errCount)
			}
			if int(files) > limits.MaxFilesPerConversation {
				violations = append(violations, Violation{
					ConversationID: conv.ID,
					Kind:           "files_per_conversation",
					Current:        int(files),
					Limit:          limits.MaxFilesPerConversation,
					Excess:         int(files) - limits.MaxFilesPerConversation,
				})
			}
		}
	}
	return violations, nil
}

// IsQuotaExceeded reports whether err is a quota rejection.
func IsQuotaExceeded(err error) bool {
	var quotaErr *QuotaExceededError
	return errors.As(err, &quotaErr)
}
