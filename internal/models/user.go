package models

import "time"

// User represents an end-user account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email    string `gorm:"type:text;not null;uniqueIndex"` // Unique email address.
	Name     string `gorm:"type:text"`                      // Display name.
	Password string `gorm:"type:text;not null"`             // Hashed password.

	Tier string `gorm:"type:varchar(32);not null;default:'FREE'"` // Subscription tier name.

	Active bool `gorm:"not null;default:true"` // Whether the user can operate.

	Conversations []Conversation `gorm:"foreignKey:UserID"` // Owned conversations.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
