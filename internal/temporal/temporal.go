// Package temporal builds the date anchors sent along with SQL generation
// requests so relative phrases ("last monday", "this month") resolve against
// the caller's calendar rather than the model's.
package temporal

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/flipdesk/flipquery/internal/query"
)

const dateLayout = "2006-01-02"

// Source produces temporal contexts from a clock and a fixed location.
type Source struct {
	clock clockwork.Clock
	loc   *time.Location
}

// NewSource resolves tz (an IANA name, empty for UTC) once.
func NewSource(clock clockwork.Clock, tz string) (*Source, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	loc := time.UTC
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", tz, err)
		}
		loc = l
	}
	return &Source{clock: clock, loc: loc}, nil
}

// Now returns the context for the current instant.
func (s *Source) Now() query.TemporalContext {
	return Build(s.clock.Now(), s.loc)
}

// Build computes the context for instant now as seen in loc. Each
// recentDays entry is the latest matching weekday strictly before today.
func Build(now time.Time, loc *time.Location) query.TemporalContext {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	recent := make(map[string]string, 7)
	for back := 1; back <= 7; back++ {
		d := today.AddDate(0, 0, -back)
		recent["last"+d.Weekday().String()] = d.Format(dateLayout)
	}

	return query.TemporalContext{
		CurrentDate:      today.Format(dateLayout),
		CurrentYear:      today.Year(),
		CurrentMonth:     int(today.Month()),
		CurrentDayOfWeek: int(today.Weekday()),
		DayName:          today.Weekday().String(),
		Timezone:         loc.String(),
		RecentDays:       recent,
	}
}
