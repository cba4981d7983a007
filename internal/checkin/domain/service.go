package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

const (
	ReasonDailyLogin          = "daily_login"
	ReasonAlreadyCheckedToday = "already_checked_today"
	StreakBonusReasonPrefix   = "streak_bonus_"
)

const (
	OutcomeAwarded     = "awarded"
	OutcomeStreakBonus = "streak_bonus"
	OutcomeAlready     = "already_checked_today"
	OutcomeError       = "error"
)

// Result is the outcome of a daily check-in. A repeated check-in on the same
// local date is reported with OK false rather than an error.
type Result struct {
	OK          bool   `json:"ok"`
	Reason      string `json:"reason,omitempty"`
	LoginStreak int    `json:"login_streak,omitempty"`
	Rating      int64  `json:"rating"`
	Awarded     int64  `json:"awarded,omitempty"`
}

type Service interface {
	HandleDailyCheckin(ctx context.Context, userID snowflake.ID) (*Result, error)
}
