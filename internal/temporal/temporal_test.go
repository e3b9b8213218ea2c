package temporal_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipdesk/flipquery/internal/temporal"
)

func TestBuildOnWednesday(t *testing.T) {
	// 2024-03-13 is a Wednesday.
	now := time.Date(2024, 3, 13, 15, 30, 0, 0, time.UTC)
	tc := temporal.Build(now, time.UTC)

	assert.Equal(t, "2024-03-13", tc.CurrentDate)
	assert.Equal(t, 2024, tc.CurrentYear)
	assert.Equal(t, 3, tc.CurrentMonth)
	assert.Equal(t, 3, tc.CurrentDayOfWeek)
	assert.Equal(t, "Wednesday", tc.DayName)
	assert.Equal(t, "UTC", tc.Timezone)

	assert.Equal(t, map[string]string{
		"lastSunday":    "2024-03-10",
		"lastMonday":    "2024-03-11",
		"lastTuesday":   "2024-03-12",
		"lastWednesday": "2024-03-06",
		"lastThursday":  "2024-03-07",
		"lastFriday":    "2024-03-08",
		"lastSaturday":  "2024-03-09",
	}, tc.RecentDays)
}

func TestSourceUsesTimezone(t *testing.T) {
	// 23:30 UTC on the 31st is already the 1st in Tokyo.
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 31, 23, 30, 0, 0, time.UTC))
	src, err := temporal.NewSource(clock, "Asia/Tokyo")
	require.NoError(t, err)

	tc := src.Now()
	assert.Equal(t, "2024-02-01", tc.CurrentDate)
	assert.Equal(t, 2, tc.CurrentMonth)
	assert.Equal(t, "Asia/Tokyo", tc.Timezone)

	clock.Advance(24 * time.Hour)
	assert.Equal(t, "2024-02-02", src.Now().CurrentDate)
}

func TestNewSourceRejectsUnknownZone(t *testing.T) {
	_, err := temporal.NewSource(clockwork.NewFakeClock(), "Mars/Olympus")
	assert.Error(t, err)
}
