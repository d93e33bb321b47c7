package db

import (
	"fmt"

	"github.com/transcript-buddy/transcriptbuddy/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.Transcript{},
		&models.UsageRecord{},
		&models.ModelCatalogEntry{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	return nil
}
