package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type NotificationType string

const (
	NotificationTypeBoost       NotificationType = "BOOST"
	NotificationTypeAchievement NotificationType = "ACHIEVEMENT"
	NotificationTypeSystem      NotificationType = "SYSTEM"
	NotificationTypeFollow      NotificationType = "FOLLOW"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationTypeBoost, NotificationTypeAchievement, NotificationTypeSystem, NotificationTypeFollow:
		return true
	default:
		return false
	}
}

type Notification struct {
	ID               snowflake.ID     `gorm:"primaryKey" json:"id"`
	UserID           snowflake.ID     `gorm:"not null;index" json:"user_id"`
	Title            string           `gorm:"type:text;not null" json:"title"`
	Message          string           `gorm:"type:text;not null" json:"message"`
	NotificationType NotificationType `gorm:"type:text;not null" json:"notification_type"`
	Link             string           `gorm:"type:text;not null" json:"link"`
	IsRead           bool             `gorm:"not null" json:"is_read"`
	CreatedAt        time.Time        `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notifications" }

type CreateInput struct {
	UserID  snowflake.ID
	Type    NotificationType
	Title   string
	Message string
	Link    string
}

type RatingEventType string

const (
	RatingEventChanged     RatingEventType = "rating_changed"
	RatingEventStreakBonus RatingEventType = "streak_bonus_awarded"
)

// RatingEvent is the realtime fact published after a rating change commits.
type RatingEvent struct {
	EventID     string          `json:"event_id"`
	Type        RatingEventType `json:"type"`
	UserID      string          `json:"user_id"`
	Delta       int64           `json:"delta"`
	Reason      string          `json:"reason"`
	Rating      int64           `json:"rating"`
	LoginStreak int             `json:"login_streak,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
