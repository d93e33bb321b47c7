package models

import "time"

// UsageRecord is the per-user, per-billing-period accumulator for one
// operation kind. Counters only ever increase; a new billing period gets a
// fresh row, which is the only "reset" path.
type UsageRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex:idx_usage_user_period_kind"` // Owning user ID.
	User   *User  `gorm:"foreignKey:UserID"`                               // Owning user.

	Period string `gorm:"type:varchar(7);not null;uniqueIndex:idx_usage_user_period_kind"`  // Billing period (YYYY-MM, UTC).
	Kind   string `gorm:"type:varchar(32);not null;uniqueIndex:idx_usage_user_period_kind"` // Operation kind.

	Count      int64 `gorm:"not null;default:0"` // Number of recorded operations.
	CostMicros int64 `gorm:"not null;default:0"` // Accrued cost in micro-dollars.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
