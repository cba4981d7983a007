package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// RatingChange is one immutable rating mutation. It is the source of truth
// that cached profile totals and daily aggregates are derived from.
type RatingChange struct {
	ID           snowflake.ID   `gorm:"primaryKey" json:"id"`
	UserID       snowflake.ID   `gorm:"not null;index:idx_rating_changes_user_id;index:idx_rating_changes_date_user,priority:2;index:idx_rating_changes_created_user,priority:2" json:"user_id"`
	SeasonNumber int            `gorm:"not null;default:1" json:"season_number"`
	Delta        int64          `gorm:"not null" json:"delta"`
	Reason       string         `gorm:"type:text;not null" json:"reason"`
	EntryDate    datatypes.Date `gorm:"not null;index:idx_rating_changes_date_user,priority:1" json:"entry_date"`
	CreatedAt    time.Time      `gorm:"not null;index:idx_rating_changes_created_user,priority:1" json:"created_at"`
}

// TableName sets the database table name.
func (RatingChange) TableName() string { return "rating_changes" }

// AppendInput describes a ledger row. EntryDate is the local calendar date
// the change counts towards.
type AppendInput struct {
	UserID       snowflake.ID
	SeasonNumber int
	Delta        int64
	Reason       string
	OccurredAt   time.Time
	EntryDate    time.Time
}

// DateRange is an inclusive range of calendar dates. A zero bound is open.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) Validate() error {
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return ErrInvalidDateRange
	}
	return nil
}
