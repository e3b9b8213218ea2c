// Package lexicon holds the phrase tables shared by the intent parser and the
// clarification merge. Matching is case-insensitive and word-bounded.
package lexicon

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/flipdesk/flipquery/internal/query"
)

// Phrase maps a surface phrase to a canonical value.
type Phrase struct {
	Text  string
	Value string
}

// timePhrases are checked in order; longer phrases come first.
var timePhrases = []Phrase{
	{"last 7 days", query.PresetLast7d},
	{"past 7 days", query.PresetLast7d},
	{"last seven days", query.PresetLast7d},
	{"past week", query.PresetLast7d},
	{"last week", query.PresetLast7d},
	{"last 30 days", query.PresetLast30d},
	{"past 30 days", query.PresetLast30d},
	{"last thirty days", query.PresetLast30d},
	{"past month", query.PresetLast30d},
	{"this week", query.PresetThisWeek},
	{"this month", query.PresetThisMonth},
	{"last month", query.PresetLastMonth},
	{"previous month", query.PresetLastMonth},
	{"all time", query.PresetAllTime},
	{"all-time", query.PresetAllTime},
	{"ever", query.PresetAllTime},
}

var metricPhrases = []Phrase{
	{"weighted roi", query.MetricWeightedROI},
	{"hold time", query.MetricAvgHoldTime},
	{"holding time", query.MetricAvgHoldTime},
	{"how long", query.MetricAvgHoldTime},
	{"return on investment", query.MetricROI},
	{"roi", query.MetricROI},
	{"margin", query.MetricROI},
	{"volume", query.MetricVolume},
	{"quantity", query.MetricVolume},
	{"profit", query.MetricProfit},
	{"profitable", query.MetricProfit},
	{"profits", query.MetricProfit},
	{"gp", query.MetricProfit},
	{"earned", query.MetricProfit},
	{"made", query.MetricProfit},
	{"number of flips", query.MetricFlips},
	{"how many flips", query.MetricFlips},
	{"flip count", query.MetricFlips},
	{"how many", query.MetricFlips},
	{"count", query.MetricFlips},
}

// defaultOperation is the aggregation used for a metric when the text names none.
var defaultOperation = map[string]string{
	query.MetricProfit:      query.OpSum,
	query.MetricROI:         query.OpAvg,
	query.MetricFlips:       query.OpCount,
	query.MetricAvgHoldTime: query.OpAvg,
	query.MetricVolume:      query.OpSum,
	query.MetricWeightedROI: query.OpCalculate,
}

var operationPhrases = []Phrase{
	{"average", query.OpAvg},
	{"avg", query.OpAvg},
	{"mean", query.OpAvg},
	{"total", query.OpSum},
	{"sum", query.OpSum},
	{"maximum", query.OpMax},
	{"max", query.OpMax},
	{"highest", query.OpMax},
	{"minimum", query.OpMin},
	{"min", query.OpMin},
	{"lowest", query.OpMin},
}

var dimensionPhrases = []Phrase{
	{"by item", query.DimItem},
	{"per item", query.DimItem},
	{"each item", query.DimItem},
	{"which items", query.DimItem},
	{"by date", query.DimDate},
	{"by day", query.DimDate},
	{"per day", query.DimDate},
	{"daily", query.DimDate},
	{"each day", query.DimDate},
	{"by hour", query.DimHour},
	{"per hour", query.DimHour},
	{"hourly", query.DimHour},
	{"time of day", query.DimHour},
	{"by weekday", query.DimWeekday},
	{"per weekday", query.DimWeekday},
	{"day of week", query.DimWeekday},
	{"day of the week", query.DimWeekday},
	{"by account", query.DimAccount},
	{"per account", query.DimAccount},
	{"each account", query.DimAccount},
	{"weekly", query.DimTimePeriod},
	{"monthly", query.DimTimePeriod},
	{"by week", query.DimTimePeriod},
	{"by month", query.DimTimePeriod},
}

var weekdays = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

var (
	reExplicitRange = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})\s*(?:to|until|through|and|-)\s*(\d{4}-\d{2}-\d{2})`)
	reLimit         = regexp.MustCompile(`\b(?:top|bottom|first|best|worst|limit(?:\s+to)?)\s+(\d{1,5})\b`)
	reQuoted        = regexp.MustCompile(`["']([^"']{2,60})["']`)
)

// ContainsPhrase reports whether text contains phrase on word boundaries.
// Both arguments are compared case-insensitively.
func ContainsPhrase(text, phrase string) bool {
	lower := strings.ToLower(text)
	p := strings.ToLower(phrase)
	if p == "" {
		return false
	}
	from := 0
	for {
		idx := strings.Index(lower[from:], p)
		if idx < 0 {
			return false
		}
		start := from + idx
		end := start + len(p)
		if boundaryBefore(lower, start) && boundaryAfter(lower, end) {
			return true
		}
		from = start + 1
	}
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r := rune(s[i-1])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r := rune(s[i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// CountPhrases returns how many of the given phrases appear in text.
func CountPhrases(text string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if ContainsPhrase(text, p) {
			n++
		}
	}
	return n
}

// AnyPhrase returns the first of phrases found in text.
func AnyPhrase(text string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if ContainsPhrase(text, p) {
			return p, true
		}
	}
	return "", false
}

// AnySubstring is AnyPhrase without word boundaries, so "sort" also matches
// "sorted". Matching ignores case.
func AnySubstring(text string, words []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, w := range words {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return w, true
		}
	}
	return "", false
}

// MatchTimeRange recognizes a time range in text: explicit dates, a
// weekend-vs-weekday comparison, a single weekday or a named preset.
func MatchTimeRange(text string) (*query.TimeRange, bool) {
	lower := strings.ToLower(text)
	if m := reExplicitRange.FindStringSubmatch(lower); m != nil {
		return &query.TimeRange{From: m[1], To: m[2]}, true
	}
	_, weekend := AnyPhrase(lower, []string{"weekend", "weekends"})
	_, weekday := AnyPhrase(lower, []string{"weekday", "weekdays"})
	if weekend && weekday {
		return &query.TimeRange{Comparison: query.ComparisonWeekendWeekday}, true
	}
	if day, ok := MatchDayOfWeek(lower); ok {
		return &query.TimeRange{DayOfWeek: day}, true
	}
	if preset, ok := MatchTimePreset(lower); ok {
		return query.PresetRange(preset), true
	}
	return nil, false
}

// MatchTimePreset returns the preset named by the first matching time phrase.
func MatchTimePreset(text string) (string, bool) {
	for _, p := range timePhrases {
		if ContainsPhrase(text, p.Text) {
			return p.Value, true
		}
	}
	return "", false
}

// MatchDayOfWeek recognizes a single weekday ("mondays", "on friday").
func MatchDayOfWeek(text string) (string, bool) {
	for _, d := range weekdays {
		if ContainsPhrase(text, d) || ContainsPhrase(text, d+"s") {
			return d, true
		}
	}
	return "", false
}

// MatchMetrics returns the metrics mentioned in text in first-seen order,
// each with its default operation unless an operation word overrides it.
func MatchMetrics(text string) []query.MetricSpec {
	op, hasOp := MatchOperation(text)
	seen := map[string]bool{}
	var out []query.MetricSpec
	for _, p := range metricPhrases {
		if seen[p.Value] || !ContainsPhrase(text, p.Text) {
			continue
		}
		seen[p.Value] = true
		operation := DefaultOperation(p.Value)
		if hasOp && p.Value != query.MetricFlips && p.Value != query.MetricWeightedROI {
			operation = op
		}
		out = append(out, query.MetricSpec{Metric: p.Value, Operation: operation})
	}
	return out
}

// DefaultOperation returns the natural aggregation for a metric.
func DefaultOperation(metric string) string {
	if op, ok := defaultOperation[metric]; ok {
		return op
	}
	return query.OpSum
}

// MatchOperation returns the first aggregation word found in text.
func MatchOperation(text string) (string, bool) {
	for _, p := range operationPhrases {
		if ContainsPhrase(text, p.Text) {
			return p.Value, true
		}
	}
	return "", false
}

// MatchDimensions returns grouping dimensions in table order, deduplicated.
func MatchDimensions(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range dimensionPhrases {
		if seen[p.Value] || !ContainsPhrase(text, p.Text) {
			continue
		}
		seen[p.Value] = true
		out = append(out, p.Value)
	}
	return out
}

// MatchLimit extracts "top 10" / "limit to 5" style row limits.
func MatchLimit(text string) (int, bool) {
	m := reLimit.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// MatchItems returns quoted item names and any known item names in text.
func MatchItems(text string, known []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range reQuoted.FindAllStringSubmatch(text, -1) {
		name := strings.ToLower(strings.TrimSpace(m[1]))
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	// Longer names win so "abyssal whip" does not also yield "whip".
	byLength := append([]string(nil), known...)
	sort.SliceStable(byLength, func(i, j int) bool { return len(byLength[i]) > len(byLength[j]) })
	for _, k := range byLength {
		name := strings.ToLower(k)
		if seen[name] || !ContainsPhrase(text, name) || coveredBy(name, out) {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func coveredBy(name string, found []string) bool {
	for _, f := range found {
		if ContainsPhrase(f, name) {
			return true
		}
	}
	return false
}
