package models

import "time"

// Conversation is the isolation boundary for transcripts, embeddings, and
// LLM settings. Deleting a conversation cascades to its transcripts and to
// its vector store partition.
type Conversation struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Owning user ID.
	User   *User  `gorm:"foreignKey:UserID"` // Owning user.

	Name string `gorm:"type:text;not null"` // Display name, auto-generated when omitted.

	Provider    string  `gorm:"type:varchar(64);not null;default:'openai'"` // Configured LLM provider.
	Model       string  `gorm:"type:varchar(128)"`                          // Configured model name.
	Temperature float64 `gorm:"type:decimal(4,2);not null;default:0.3"`     // Completion temperature.
	BaseURL     string  `gorm:"type:text"`                                  // Override endpoint for local providers.

	IsLocked   bool       `gorm:"not null;default:false"` // Set after a tier downgrade leaves the conversation over limit.
	LockReason string     `gorm:"type:text"`              // Human-readable lock cause.
	LockedAt   *time.Time ``                              // When the lock was applied.

	Transcripts []Transcript `gorm:"foreignKey:ConversationID"` // Uploaded transcripts.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
