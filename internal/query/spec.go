// Package query holds the structured representation of an analytical question
// about flip history and the outcomes the pipeline reports for it.
package query

// Intent tags produced by the parser and consumed by the builder and validator.
const (
	IntentTopFlips          = "top_flips"
	IntentItemAnalysis      = "item_analysis"
	IntentTimeAnalysis      = "time_analysis"
	IntentAccountComparison = "account_comparison"
	IntentSummary           = "summary"
	IntentPrediction        = "price_prediction"
	IntentMarketLookup      = "market_lookup"
)

// Metric names.
const (
	MetricProfit      = "profit"
	MetricROI         = "roi"
	MetricFlips       = "flips"
	MetricAvgHoldTime = "avg_hold_time"
	MetricVolume      = "volume"
	MetricWeightedROI = "weighted_roi"
)

// Aggregation operations.
const (
	OpSum       = "sum"
	OpAvg       = "avg"
	OpCount     = "count"
	OpMin       = "min"
	OpMax       = "max"
	OpCalculate = "calculate"
)

// Grouping dimensions.
const (
	DimItem       = "item"
	DimDate       = "date"
	DimHour       = "hour"
	DimWeekday    = "weekday"
	DimAccount    = "account"
	DimTimePeriod = "time_period"
)

// Time range presets.
const (
	PresetLast7d    = "last_7d"
	PresetLast30d   = "last_30d"
	PresetThisWeek  = "this_week"
	PresetThisMonth = "this_month"
	PresetLastMonth = "last_month"
	PresetAllTime   = "all_time"
)

// ComparisonWeekendWeekday marks a weekend-vs-weekday comparison range.
const ComparisonWeekendWeekday = "weekend_vs_weekday"

// Sort orders.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// MetricSpec pairs a metric with the aggregation applied to it.
type MetricSpec struct {
	Metric    string `json:"metric" yaml:"metric"`
	Operation string `json:"operation" yaml:"operation"`
}

// Filter restricts the rows a query considers.
type Filter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// SortSpec orders the result by one column.
type SortSpec struct {
	By    string `json:"by"`
	Order string `json:"order"`
}

// TimeRangeKind identifies which form of a TimeRange is active.
type TimeRangeKind string

const (
	TimeRangeNone       TimeRangeKind = ""
	TimeRangePreset     TimeRangeKind = "preset"
	TimeRangeExplicit   TimeRangeKind = "explicit"
	TimeRangeDayOfWeek  TimeRangeKind = "day_of_week"
	TimeRangeComparison TimeRangeKind = "comparison"
	TimeRangeConflict   TimeRangeKind = "conflict"
)

// TimeRange selects the period a query covers. Exactly one of the forms
// (preset, from/to, day of week, comparison) may be set.
type TimeRange struct {
	Preset     string `json:"preset,omitempty"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	DayOfWeek  string `json:"dayOfWeek,omitempty"`
	Comparison string `json:"comparison,omitempty"`
}

// Kind reports the active form, or TimeRangeConflict when more than one is set.
func (t *TimeRange) Kind() TimeRangeKind {
	if t == nil {
		return TimeRangeNone
	}
	var kinds []TimeRangeKind
	if t.Preset != "" {
		kinds = append(kinds, TimeRangePreset)
	}
	if t.From != "" || t.To != "" {
		kinds = append(kinds, TimeRangeExplicit)
	}
	if t.DayOfWeek != "" {
		kinds = append(kinds, TimeRangeDayOfWeek)
	}
	if t.Comparison != "" {
		kinds = append(kinds, TimeRangeComparison)
	}
	switch len(kinds) {
	case 0:
		return TimeRangeNone
	case 1:
		return kinds[0]
	default:
		return TimeRangeConflict
	}
}

// PresetRange returns a time range holding only the given preset.
func PresetRange(preset string) *TimeRange {
	return &TimeRange{Preset: preset}
}

// Spec is the canonical structured form of a user's analytical question.
type Spec struct {
	Intent               string       `json:"intent"`
	Confidence           float64      `json:"confidence"`
	TimeRange            *TimeRange   `json:"timeRange,omitempty"`
	Metrics              []MetricSpec `json:"metrics"`
	Dimensions           []string     `json:"dimensions,omitempty"`
	Filters              []Filter     `json:"filters,omitempty"`
	Sort                 []SortSpec   `json:"sort,omitempty"`
	Limit                int          `json:"limit,omitempty"`
	IncludeColumns       []string     `json:"includeColumns,omitempty"`
	RequiresConfirmation bool         `json:"requiresConfirmation"`
}

// Clone returns a deep copy so merges never alias the caller's slices.
func (s *Spec) Clone() *Spec {
	if s == nil {
		return nil
	}
	out := *s
	if s.TimeRange != nil {
		tr := *s.TimeRange
		out.TimeRange = &tr
	}
	out.Metrics = append([]MetricSpec(nil), s.Metrics...)
	out.Dimensions = append([]string(nil), s.Dimensions...)
	out.Filters = append([]Filter(nil), s.Filters...)
	out.Sort = append([]SortSpec(nil), s.Sort...)
	out.IncludeColumns = append([]string(nil), s.IncludeColumns...)
	return &out
}

// ItemFilters returns the filters applied to the item field.
func (s *Spec) ItemFilters() []Filter {
	var out []Filter
	for _, f := range s.Filters {
		if f.Field == DimItem {
			out = append(out, f)
		}
	}
	return out
}
