package clock

import (
	"time"

	"github.com/smallbiznis/tradeboard/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
	fx.Provide(NewCalendar),
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func NewSystemClock() Clock {
	return SystemClock{}
}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Calendar maps instants onto calendar dates of a fixed timezone.
// Dates are represented as UTC midnight so they compare and persist uniformly.
type Calendar struct {
	loc *time.Location
}

func NewCalendar(cfg config.Config) Calendar {
	return Calendar{loc: cfg.Location()}
}

func NewCalendarIn(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{loc: loc}
}

func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// DateOf returns the local calendar date of t.
func (c Calendar) DateOf(t time.Time) time.Time {
	local := t.In(c.Location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the current local calendar date according to clk.
func (c Calendar) Today(clk Clock) time.Time {
	return c.DateOf(clk.Now())
}

// Normalize truncates an already-parsed date to UTC midnight.
func Normalize(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
}

// AddDays shifts a calendar date by n days.
func AddDays(date time.Time, n int) time.Time {
	return Normalize(date).AddDate(0, 0, n)
}
