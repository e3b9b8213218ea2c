package lexicon_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipdesk/flipquery/internal/lexicon"
	"github.com/flipdesk/flipquery/internal/query"
)

func TestContainsPhrase(t *testing.T) {
	tests := []struct {
		text   string
		phrase string
		want   bool
	}{
		{"Show my ROI", "roi", true},
		{"heroic flips", "roi", false},
		{"sort by profit", "sort by", true},
		{"weekend", "week", false},
		{"top-10", "top", true},
		{"anything", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, lexicon.ContainsPhrase(tt.text, tt.phrase), "%q in %q", tt.phrase, tt.text)
	}
}

func TestAnySubstring(t *testing.T) {
	got, ok := lexicon.AnySubstring("Calculated margin", []string{"formula", "calculate"})
	assert.True(t, ok)
	assert.Equal(t, "calculate", got)

	_, ok = lexicon.AnyPhrase("calculated margin", []string{"calculate"})
	assert.False(t, ok)

	_, ok = lexicon.AnySubstring("top flips", []string{"formula", ""})
	assert.False(t, ok)
}

func TestMatchTimeRange(t *testing.T) {
	tests := []struct {
		text string
		want query.TimeRange
	}{
		{"profit in the last 7 days", query.TimeRange{Preset: query.PresetLast7d}},
		{"flips this month", query.TimeRange{Preset: query.PresetThisMonth}},
		{"roi from 2024-01-01 to 2024-02-01", query.TimeRange{From: "2024-01-01", To: "2024-02-01"}},
		{"weekend vs weekdays", query.TimeRange{Comparison: query.ComparisonWeekendWeekday}},
		{"compare profit on weekends vs weekdays", query.TimeRange{Comparison: query.ComparisonWeekendWeekday}},
		{"Weekends vs weekdays", query.TimeRange{Comparison: query.ComparisonWeekendWeekday}},
		{"weekday or weekend roi", query.TimeRange{Comparison: query.ComparisonWeekendWeekday}},
		{"profit on mondays", query.TimeRange{DayOfWeek: "monday"}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := lexicon.MatchTimeRange(tt.text)
			require.True(t, ok)
			assert.Equal(t, tt.want, *got)
		})
	}

	_, ok := lexicon.MatchTimeRange("top flips")
	assert.False(t, ok)
}

func TestMatchMetrics(t *testing.T) {
	got := lexicon.MatchMetrics("average profit and number of flips")
	assert.Equal(t, []query.MetricSpec{
		{Metric: query.MetricProfit, Operation: query.OpAvg},
		{Metric: query.MetricFlips, Operation: query.OpCount},
	}, got)

	got = lexicon.MatchMetrics("most profitable flips")
	assert.Equal(t, []query.MetricSpec{{Metric: query.MetricProfit, Operation: query.OpSum}}, got)
}

func TestDefaultOperation(t *testing.T) {
	assert.Equal(t, query.OpAvg, lexicon.DefaultOperation(query.MetricROI))
	assert.Equal(t, query.OpCount, lexicon.DefaultOperation(query.MetricFlips))
	assert.Equal(t, query.OpSum, lexicon.DefaultOperation("gold"))
	assert.Equal(t, []query.MetricSpec{{Metric: query.MetricROI, Operation: lexicon.DefaultOperation(query.MetricROI)}}, lexicon.MatchMetrics("roi"))
}

func TestMatchLimit(t *testing.T) {
	n, ok := lexicon.MatchLimit("Show me my top 10 most profitable flips")
	require.True(t, ok)
	assert.Equal(t, 10, n)

	n, ok = lexicon.MatchLimit("limit to 25")
	require.True(t, ok)
	assert.Equal(t, 25, n)

	_, ok = lexicon.MatchLimit("top flips")
	assert.False(t, ok)
}

func TestMatchItems(t *testing.T) {
	items := lexicon.MatchItems(`how did "Dragon bones" and my abyssal whip do`, []string{"abyssal whip", "whip"})
	assert.Equal(t, []string{"dragon bones", "abyssal whip"}, items)

	items = lexicon.MatchItems("profit on my whip", []string{"abyssal whip", "whip"})
	assert.Equal(t, []string{"whip"}, items)
}

func TestMatchDimensions(t *testing.T) {
	assert.Equal(t, []string{query.DimItem, query.DimHour}, lexicon.MatchDimensions("profit per item by hour"))
	assert.Empty(t, lexicon.MatchDimensions("profit"))
}
