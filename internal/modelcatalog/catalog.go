// Package modelcatalog keeps a database snapshot of the models each
// provider backend currently serves, so catalog reads never wait on a
// live backend probe.
package modelcatalog

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/transcript-buddy/transcriptbuddy/internal/models"
)

// StoreModels upserts one provider's model list and prunes rows the
// backend stopped serving.
func StoreModels(ctx context.Context, db *gorm.DB, providerName string, modelNames []string, syncTime time.Time) error {
	if db == nil {
		return fmt.Errorf("store models: nil db")
	}
	if syncTime.IsZero() {
		syncTime = time.Now().UTC()
	}
	syncTime = syncTime.UTC()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(modelNames) > 0 {
			entries := make([]models.ModelCatalogEntry, 0, len(modelNames))
			for _, name := range modelNames {
				entries = append(entries, models.ModelCatalogEntry{
					Provider:   providerName,
					Model:      name,
					LastSeenAt: syncTime,
					UpdatedAt:  syncTime,
				})
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "provider"}, {Name: "model"}},
				DoUpdates: clause.AssignmentColumns([]string{"last_seen_at", "updated_at"}),
			}).Create(&entries).Error; err != nil {
				return fmt.Errorf("store models: upsert: %w", err)
			}
		}

		if err := tx.Where("provider = ? AND last_seen_at < ?", providerName, syncTime).
			Delete(&models.ModelCatalogEntry{}).Error; err != nil {
			return fmt.Errorf("store models: prune: %w", err)
		}
		return nil
	})
}

// ListModels returns the cached model names for one provider, sorted.
func ListModels(ctx context.Context, db *gorm.DB, providerName string) ([]string, error) {
	var names []string
	errFind := db.WithContext(ctx).
		Model(&models.ModelCatalogEntry{}).
		Where("provider = ?", providerName).
		Order("model ASC").
		Pluck("model", &names).Error
	if errFind != nil {
		return nil, fmt.Errorf("list models: %w", errFind)
	}
	return names, nil
}
