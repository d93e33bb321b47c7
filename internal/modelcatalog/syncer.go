package modelcatalog

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/transcript-buddy/transcriptbuddy/internal/provider"
)

const (
	defaultSyncInterval   = 30 * time.Minute
	defaultRequestTimeout = 15 * time.Second
)

// ModelLister is the slice of the provider gateway the syncer needs.
type ModelLister interface {
	ListModels(ctx context.Context, name, baseURL string) ([]string, error)
}

// Syncer keeps the model catalog table synced with what each available
// provider backend reports.
type Syncer struct {
	db       *gorm.DB
	lister   ModelLister
	interval time.Duration
	now      func() time.Time
}

// NewSyncer constructs a model catalog syncer.
func NewSyncer(db *gorm.DB, lister ModelLister) *Syncer {
	if db == nil || lister == nil {
		return nil
	}
	return &Syncer{
		db:       db,
		lister:   lister,
		interval: defaultSyncInterval,
		now:      time.Now,
	}
}

// Start runs the sync loop in the background.
func (s *Syncer) Start(ctx context.Context) {
	if s == nil {
		return
	}
	go s.run(ctx)
	log.Infof("model catalog syncer started (interval=%s)", s.interval)
}

func (s *Syncer) run(ctx context.Context) {
	interval := s.interval
	if interval <= 0 {
		interval = defaultSyncInterval
	}

	if err := s.SyncOnce(ctx); err != nil {
		log.WithError(err).Warn("model catalog: initial sync failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SyncOnce(ctx); err != nil {
				log.WithError(err).Warn("model catalog: sync failed")
			}
		}
	}
}

// SyncOnce refreshes the catalog for every available provider. A backend
// reporting no models keeps its previous snapshot; an empty local
// backend is usually just unreachable.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("model catalog: nil db")
	}
	clock := s.now
	if clock == nil {
		clock = time.Now
	}

	var firstErr error
	for _, info := range provider.ListProviders() {
		if info.Status != provider.StatusAvailable {
			continue
		}

		requestCtx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
		names, errList := s.lister.ListModels(requestCtx, info.Name, "")
		cancel()
		if errList != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("model catalog: list %s: %w", info.Name, errList)
			}
			continue
		}
		if len(names) == 0 {
			continue
		}

		if errStore := StoreModels(ctx, s.db, info.Name, names, clock().UTC()); errStore != nil {
			if firstErr == nil {
				firstErr = errStore
			}
		}
	}
	return firstErr
}
