package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// User mirrors the identity owned by the auth collaborator.
type User struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Username  string       `gorm:"type:text;not null;uniqueIndex" json:"username"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Profile carries the cached rating projection of a user.
type Profile struct {
	UserID                      snowflake.ID    `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	RatingScore                 int64           `gorm:"not null" json:"rating_score"`
	SeasonNumber                int             `gorm:"not null" json:"season_number"`
	LoginStreak                 int             `gorm:"not null" json:"login_streak"`
	LastLoginStreakCheck        *datatypes.Date `json:"last_login_streak_check,omitempty"`
	IsPrivate                   bool            `gorm:"not null" json:"is_private"`
	BrowserNotificationsEnabled bool            `gorm:"not null" json:"browser_notifications_enabled"`
	CreatedAt                   time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt                   time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Profile) TableName() string { return "profiles" }

// LastCheck returns the last check-in date, or the zero time when never checked in.
func (p Profile) LastCheck() time.Time {
	if p.LastLoginStreakCheck == nil {
		return time.Time{}
	}
	return time.Time(*p.LastLoginStreakCheck)
}

type Follow struct {
	FollowerID snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"follower_id"`
	FolloweeID snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"followee_id"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Follow) TableName() string { return "profile_follows" }

// ProfileView is a profile together with its username.
type ProfileView struct {
	Profile
	Username string `json:"username"`
}

type EnsureProfileInput struct {
	UserID   snowflake.ID
	Username string
}

// RatingApplied describes a committed-to-be rating change. It is returned by
// AddRatingTx and handed to Announce once the transaction commits.
type RatingApplied struct {
	ChangeID     snowflake.ID
	UserID       snowflake.ID
	Delta        int64
	Reason       string
	NewTotal     int64
	SeasonNumber int
	EntryDate    time.Time
	OccurredAt   time.Time
	LoginStreak  int
}

type FollowResult struct {
	Following     bool  `json:"following"`
	FollowerCount int64 `json:"follower_count"`
}

type SeasonResult struct {
	SnapshotID    snowflake.ID `json:"snapshot_id"`
	SeasonNumber  int          `json:"season_number"`
	ProfilesReset int64        `json:"profiles_reset"`
}

// Reconciliation compares the cached total against the season's ledger sum.
type Reconciliation struct {
	UserID       snowflake.ID `json:"user_id"`
	SeasonNumber int          `json:"season_number"`
	Cached       int64        `json:"cached"`
	Ledger       int64        `json:"ledger"`
	Drift        int64        `json:"drift"`
	Repaired     bool         `json:"repaired"`
}

func (r Reconciliation) Consistent() bool {
	return r.Drift == 0
}
