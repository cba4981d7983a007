package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalendarDateOfUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	cal := NewCalendarIn(loc)

	// 2024-03-01 20:00 UTC is already 2024-03-02 in UTC+7.
	instant := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), cal.DateOf(instant))

	utc := NewCalendarIn(nil)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), utc.DateOf(instant))
}

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	clk := NewFakeClock(start)
	cal := NewCalendarIn(time.UTC)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), cal.Today(clk))
	clk.Advance(2 * time.Hour)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), cal.Today(clk))
	assert.Equal(t, time.Date(2023, 12, 26, 0, 0, 0, 0, time.UTC), AddDays(cal.Today(clk), -7))
}
