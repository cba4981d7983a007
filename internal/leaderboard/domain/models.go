package domain

import (
	"strings"

	"github.com/bwmarrin/snowflake"
)

type Period string

const (
	PeriodAll   Period = "all"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ParsePeriod accepts all|week|month; an empty value means all.
func ParsePeriod(raw string) (Period, error) {
	switch Period(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PeriodAll:
		return PeriodAll, nil
	case PeriodWeek:
		return PeriodWeek, nil
	case PeriodMonth:
		return PeriodMonth, nil
	default:
		return "", ErrUnsupportedPeriod
	}
}

// WindowDays is the look-back of a windowed period. The window covers
// [today - WindowDays, today] inclusive.
func (p Period) WindowDays() (int, bool) {
	switch p {
	case PeriodWeek:
		return 7, true
	case PeriodMonth:
		return 30, true
	default:
		return 0, false
	}
}

// NormalizeLimit applies the default and the upper bound.
func NormalizeLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, ErrInvalidLimit
	case limit == 0:
		return DefaultLimit, nil
	case limit > MaxLimit:
		return MaxLimit, nil
	default:
		return limit, nil
	}
}

// Entry is one leaderboard row. Score is the cached rating for the all-time
// board and the summed points for windowed boards.
type Entry struct {
	Rank     int          `json:"rank"`
	UserID   snowflake.ID `json:"user_id"`
	Username string       `json:"username"`
	Score    int64        `json:"score"`
}
