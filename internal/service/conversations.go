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
	"github.com/transcript-buddy/transcriptbuddy/internal/provider"
	"github.com/transcript-buddy/transcriptbuddy/internal/tiers"
	"github.com/transcript-buddy/transcriptbuddy/internal/usage"
	"github.com/transcript-buddy/transcriptbuddy/internal/vectorstore"
)

// ConversationSettings are the LLM settings a conversation carries.
type ConversationSettings struct {
	Provider    string  // Provider name, empty keeps the current value.
	Model       string  // Model identifier.
	Temperature float64 // Sampling temperature.
	BaseURL     string  // Endpoint override for local providers.
}

// Conversations manages the conversation lifecycle. A conversation is
// the isolation boundary for transcripts, vectors, and LLM settings.
type Conversations struct {
	db     *gorm.DB
	ledger *usage.Ledger
	store  vectorstore.Store
}

// NewConversations constructs the conversation service.
func NewConversations(db *gorm.DB, ledger *usage.Ledger, store vectorstore.Store) *Conversations {
	return &Conversations{db: db, ledger: ledger, store: store}
}

// Create makes a new conversation after clearing the tier's conversation
// gate. An empty name is auto-assigned as "Conversation N".
func (s *Conversations) Create(ctx context.Context, userID uint64, name string, settings ConversationSettings) (*models.Conversation, error) {
	var user models.User
	if errFind := s.db.WithContext(ctx).First(&user, userID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load user: %w", errFind)
	}

	providerName := strings.TrimSpace(settings.Provider)
	if providerName == "" {
		providerName = provider.NameOpenAI
	}
	if _, ok := provider.Lookup(providerName); !ok {
		return nil, &ValidationError{Field: "provider", Message: fmt.Sprintf("unknown provider %q", providerName)}
	}
	if !tiers.IsProviderAllowed(tiers.Parse(user.Tier), providerName) {
		return nil, &ValidationError{Field: "provider", Message: fmt.Sprintf("provider %q is not available on the %s tier", providerName, user.Tier)}
	}

	temperature := settings.Temperature
	if temperature == 0 {
		temperature = 0.3
	}

	conv := models.Conversation{
		UserID:      userID,
		Name:        strings.TrimSpace(name),
		Provider:    providerName,
		Model:       strings.TrimSpace(settings.Model),
		Temperature: temperature,
		BaseURL:     strings.TrimSpace(settings.BaseURL),
	}

	errReserve := s.ledger.ReserveConversation(ctx, userID, func(tx *gorm.DB) error {
		if conv.Name == "" {
			var count int64
			if errCount := tx.Model(&models.Conversation{}).Where("user_id = ?", userID).Count(&count).Error; errCount != nil {
				return errCount
			}
			conv.Name = fmt.Sprintf("Conversation %d", count+1)
		}
		return tx.Create(&conv).Error
	})
	if errReserve != nil {
		return nil, errReserve
	}

	log.WithFields(log.Fields{"user_id": userID, "conversation_id": conv.ID}).Info("conversation created")
	return &conv, nil
}

// List returns the user's conversations, newest first.
func (s *Conversations) List(ctx context.Context, userID uint64) ([]models.Conversation, error) {
	var conversations []models.Conversation
	if errFind := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Find(&conversations).Error; errFind != nil {
		return nil, fmt.Errorf("list conversations: %w", errFind)
	}
	return conversations, nil
}

// Get loads one conversation owned by the user.
func (s *Conversations) Get(ctx context.Context, userID, conversationID uint64) (*models.Conversation, error) {
	var conv models.Conversation
	errFind := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", conversationID, userID).
		First(&conv).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load conversation: %w", errFind)
	}
	return &conv, nil
}

// UpdateSettings changes the conversation's provider settings. A locked
// conversation keeps accepting settings changes; only uploads and
// queries are rejected.
func (s *Conversations) UpdateSettings(ctx context.Context, userID, conversationID uint64, settings ConversationSettings) (*models.Conversation, error) {
	conv, errGet := s.Get(ctx, userID, conversationID)
	if errGet != nil {
		return nil, errGet
	}

	if name := strings.TrimSpace(settings.Provider); name != "" {
		if _, ok := provider.Lookup(name); !ok {
			return nil, &ValidationError{Field: "provider", Message: fmt.Sprintf("unknown provider %q", name)}
		}
		var user models.User
		if errFind := s.db.WithContext(ctx).Select("tier").First(&user, userID).Error; errFind != nil {
			return nil, fmt.Errorf("load user: %w", errFind)
		}
		if !tiers.IsProviderAllowed(tiers.Parse(user.Tier), name) {
			return nil, &ValidationError{Field: "provider", Message: fmt.Sprintf("provider %q is not available on the %s tier", name, user.Tier)}
		}
		conv.Provider = name
	}
	if model := strings.TrimSpace(settings.Model); model != "" {
		conv.Model = model
	}
	if settings.Temperature != 0 {
		conv.Temperature = settings.Temperature
	}
	if baseURL := strings.TrimSpace(settings.BaseURL); baseURL != "" {
		conv.BaseURL = baseURL
	}

	if errSave := s.db.WithContext(ctx).Save(conv).Error; errSave != nil {
		return nil, fmt.Errorf("save conversation: %w", errSave)
	}
	return conv, nil
}

// Rename changes the conversation name.
func (s *Conversations) Rename(ctx context.Context, userID, conversationID uint64, name string) (*models.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "must not be empty"}
	}
	conv, errGet := s.Get(ctx, userID, conversationID)
	if errGet != nil {
		return nil, errGet
	}
	conv.Name = name
	if errSave := s.db.WithContext(ctx).Save(conv).Error; errSave != nil {
		return nil, fmt.Errorf("save conversation: %w", errSave)
	}
	return conv, nil
}

// Lock marks the conversation as rejecting uploads and queries. It stays
// readable.
func (s *Conversations) Lock(ctx context.Context, userID, conversationID uint64, reason string) error {
	conv, errGet := s.Get(ctx, userID, conversationID)
	if errGet != nil {
		return errGet
	}
	now := time.Now().UTC()
	conv.IsLocked = true
	conv.LockReason = reason
	conv.LockedAt = &now
	if errSave := s.db.WithContext(ctx).Save(conv).Error; errSave != nil {
		return fmt.Errorf("lock conversation: %w", errSave)
	}
	log.WithFields(log.Fields{"conversation_id": conversationID, "reason": reason}).Info("conversation locked")
	return nil
}

// Unlock clears the lock state.
func (s *Conversations) Unlock(ctx context.Context, userID, conversationID uint64) error {
	conv, errGet := s.Get(ctx, userID, conversationID)
	if errGet != nil {
		return errGet
	}
	conv.IsLocked = false
	conv.LockReason = ""
	conv.LockedAt = nil
	if errSave := s.db.WithContext(ctx).Save(conv).Error; errSave != nil {
		return fmt.Errorf("unlock conversation: %w", errSave)
	}
	return nil
}

// Delete removes the conversation, its transcripts, and its vector
// partition. The row delete cascades first; the partition drop follows
// so a failure there cannot leave orphaned rows.
func (s *Conversations) Delete(ctx context.Context, userID, conversationID uint64) error {
	conv, errGet := s.Get(ctx, userID, conversationID)
	if errGet != nil {
		return errGet
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errTranscripts := tx.Where("conversation_id = ?", conv.ID).Delete(&models.Transcript{}).Error; errTranscripts != nil {
			return errTranscripts
		}
		return tx.Delete(&models.Conversation{}, conv.ID).Error
	})
	if errTx != nil {
		return fmt.Errorf("delete conversation: %w", errTx)
	}

	if errDrop := s.store.DropConversation(ctx, conv.ID); errDrop != nil {
		return fmt.Errorf("drop conversation partition: %w", errDrop)
	}
	log.WithFields(log.Fields{"user_id": userID, "conversation_id": conversationID}).Info("conversation deleted")
	return nil
}

// ApplyDowngradeLocks locks every conversation the target tier leaves
// over its per-conversation file limit, and the newest conversations
// beyond the target's conversation count. Called explicitly after the
// caller has reviewed ValidateDowngrade output.
func (s *Conversations) ApplyDowngradeLocks(ctx context.Context, userID uint64, target tiers.Tier) (int, error) {
	violations, errValidate := s.ledger.ValidateDowngrade(ctx, userID, target)
	if errValidate != nil {
		return 0, errValidate
	}

	locked := make(map[uint64]bool)
	now := time.Now().UTC()
	lock := func(conversationID uint64, reason string) error {
		if locked[conversationID] {
			return nil
		}
		res := s.db.WithContext(ctx).
			Model(&models.Conversation{}).
			Where("id = ? AND user_id = ?", conversationID, userID).
			Updates(map[string]any{
				"is_locked":   true,
				"lock_reason": reason,
				"locked_at":   now,
			})
		if res.Error != nil {
			return fmt.Errorf("lock conversation %d: %w", conversationID, res.Error)
		}
		locked[conversationID] = true
		return nil
	}

	for _, v := range violations {
		if v.ConversationID == 0 {
			// The newest conversations absorb the total-count excess.
			var ids []uint64
			if errFind := s.db.WithContext(ctx).
				Model(&models.Conversation{}).
				Where("user_id = ?", userID).
				Order("id DESC").
				Limit(v.Excess).
				Pluck("id", &ids).Error; errFind != nil {
				return len(locked), fmt.Errorf("select newest conversations: %w", errFind)
			}
			reason := fmt.Sprintf("over the %s tier limit: %d conversations, limit %d", target, v.Current, v.Limit)
			for _, id := range ids {
				if errLock := lock(id, reason); errLock != nil {
					return len(locked), errLock
				}
			}
			continue
		}
		reason := fmt.Sprintf("over the %s tier limit: %d files, limit %d", target, v.Current, v.Limit)
		if errLock := lock(v.ConversationID, reason); errLock != nil {
			return len(locked), errLock
		}
	}
	return len(locked), nil
}
