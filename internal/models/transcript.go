package models

import (
	"time"

	"gorm.io/datatypes"
)

// Transcript is one uploaded document belonging to exactly one conversation.
// The Indexed flag only flips to true after the chunk + embed pipeline has
// committed every chunk; a failed or pending index leaves it false.
type Transcript struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ConversationID uint64        `gorm:"not null;index"`            // Owning conversation ID.
	Conversation   *Conversation `gorm:"foreignKey:ConversationID"` // Owning conversation.

	Filename  string `gorm:"type:text;not null"`         // Sanitized upload filename.
	Format    string `gorm:"type:varchar(16);not null"`  // Declared content format (text, srt, vtt, json).
	SizeBytes int64  `gorm:"not null;default:0"`         // Raw content size in bytes.
	Content   string `gorm:"type:text;not null"`         // Raw transcript content.

	Indexed    bool `gorm:"not null;default:false"` // True once all chunks are searchable.
	ChunkCount int  `gorm:"not null;default:0"`     // Number of chunks produced at index time.

	Metadata datatypes.JSON `gorm:"type:jsonb"` // Arbitrary caller-supplied metadata.

	UploadedAt time.Time `gorm:"not null;autoCreateTime"` // Upload timestamp.
	UpdatedAt  time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
