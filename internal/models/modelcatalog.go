package models

import "time"

// ModelCatalogEntry is one model a provider backend was seen serving.
// Rows not seen in the latest sync for their provider get pruned.
type ModelCatalogEntry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Provider string `gorm:"type:varchar(64);not null;uniqueIndex:idx_catalog_provider_model"`  // Provider identifier.
	Model    string `gorm:"type:varchar(128);not null;uniqueIndex:idx_catalog_provider_model"` // Model name as reported by the backend.

	LastSeenAt time.Time `gorm:"not null;index"` // When the model was last reported.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
