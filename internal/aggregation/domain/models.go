package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// DailyRatingAggregate holds one user's summed rating points for one local date.
type DailyRatingAggregate struct {
	UserID    snowflake.ID   `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Date      datatypes.Date `gorm:"primaryKey;index:idx_daily_rating_aggregates_date" json:"date"`
	Points    int64          `gorm:"not null" json:"points"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (DailyRatingAggregate) TableName() string { return "daily_rating_aggregates" }

type SnapshotPeriod string

const (
	SnapshotPeriodWeek   SnapshotPeriod = "week"
	SnapshotPeriodMonth  SnapshotPeriod = "month"
	SnapshotPeriodSeason SnapshotPeriod = "season"
)

func ParseSnapshotPeriod(raw string) (SnapshotPeriod, error) {
	switch SnapshotPeriod(strings.ToLower(strings.TrimSpace(raw))) {
	case SnapshotPeriodWeek:
		return SnapshotPeriodWeek, nil
	case SnapshotPeriodMonth:
		return SnapshotPeriodMonth, nil
	case SnapshotPeriodSeason:
		return SnapshotPeriodSeason, nil
	default:
		return "", ErrInvalidPeriod
	}
}

// RatingSnapshot is an immutable capture of a leaderboard ordering.
type RatingSnapshot struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	Period    SnapshotPeriod `gorm:"type:text;not null;index:idx_rating_snapshots_period_created,priority:1" json:"period"`
	TopN      int            `gorm:"not null" json:"top_n"`
	Data      datatypes.JSON `gorm:"not null" json:"data"`
	CreatedAt time.Time      `gorm:"not null;index:idx_rating_snapshots_period_created,priority:2" json:"created_at"`
}

// TableName sets the database table name.
func (RatingSnapshot) TableName() string { return "rating_snapshots" }

// SnapshotEntry is one row of a snapshot payload. Windowed snapshots store
// the summed points under rating.
type SnapshotEntry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Rating   int64  `json:"rating"`
}

type RebuildStatus string

const (
	RebuildStatusPending    RebuildStatus = "pending"
	RebuildStatusProcessing RebuildStatus = "processing"
	RebuildStatusCompleted  RebuildStatus = "completed"
	RebuildStatusFailed     RebuildStatus = "failed"
)

// RebuildRequest queues a replay of an inclusive date range.
type RebuildRequest struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	DateFrom    datatypes.Date `gorm:"not null" json:"date_from"`
	DateTo      datatypes.Date `gorm:"not null" json:"date_to"`
	Status      RebuildStatus  `gorm:"type:text;not null;index:idx_aggregate_rebuild_requests_status,priority:1" json:"status"`
	Error       *string        `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index:idx_aggregate_rebuild_requests_status,priority:2" json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// TableName sets the database table name.
func (RebuildRequest) TableName() string { return "aggregate_rebuild_requests" }
