// Package builder assembles Query Specifications from parser output and
// renders them as short previews for confirmation prompts.
package builder

import (
	"fmt"
	"strings"

	"github.com/flipdesk/flipquery/internal/query"
)

// SpecBuilder is the contract the processor depends on.
type SpecBuilder interface {
	Build(pr query.ParseResult) *query.Spec
	Preview(spec *query.Spec) string
}

// ItemAnalysisMetrics is the standard metric set for per-item questions.
func ItemAnalysisMetrics() []query.MetricSpec {
	return []query.MetricSpec{
		{Metric: query.MetricProfit, Operation: query.OpSum},
		{Metric: query.MetricROI, Operation: query.OpAvg},
		{Metric: query.MetricFlips, Operation: query.OpCount},
	}
}

// defaultMetrics fills in metrics when the text named none.
func defaultMetrics(intent string) []query.MetricSpec {
	switch intent {
	case query.IntentItemAnalysis:
		return ItemAnalysisMetrics()
	case query.IntentTimeAnalysis, query.IntentAccountComparison:
		return []query.MetricSpec{
			{Metric: query.MetricProfit, Operation: query.OpSum},
			{Metric: query.MetricFlips, Operation: query.OpCount},
		}
	default:
		return []query.MetricSpec{{Metric: query.MetricProfit, Operation: query.OpSum}}
	}
}

var rowColumns = []string{"item", "profit", "roi", "quantity", "date"}

// Builder is deterministic and keeps no state.
type Builder struct{}

// New returns a Builder.
func New() *Builder {
	return &Builder{}
}

// Build maps a ParseResult onto a Spec. Slices are copied so the spec never
// aliases the parse result.
func (b *Builder) Build(pr query.ParseResult) *query.Spec {
	c := pr.Components
	spec := &query.Spec{
		Intent:     pr.Intent,
		Confidence: pr.Confidence,
		Metrics:    append([]query.MetricSpec(nil), c.Metrics...),
		Dimensions: append([]string(nil), c.Dimensions...),
		Filters:    append([]query.Filter(nil), c.Filters...),
		Sort:       append([]query.SortSpec(nil), c.Sort...),
		Limit:      c.Limit,
	}
	if c.TimeRange != nil {
		tr := *c.TimeRange
		spec.TimeRange = &tr
	}
	if len(c.Columns) > 0 {
		spec.IncludeColumns = append([]string(nil), c.Columns...)
	}

	if len(spec.Metrics) == 0 && spec.Intent != "" {
		spec.Metrics = defaultMetrics(spec.Intent)
	}

	switch spec.Intent {
	case query.IntentTopFlips:
		if len(spec.IncludeColumns) == 0 && len(spec.Dimensions) == 0 {
			spec.IncludeColumns = append([]string(nil), rowColumns...)
		}
	case query.IntentItemAnalysis:
		if len(spec.Dimensions) == 0 {
			spec.Dimensions = []string{query.DimItem}
		}
	case query.IntentAccountComparison:
		if len(spec.Dimensions) == 0 {
			spec.Dimensions = []string{query.DimAccount}
		}
	case query.IntentTimeAnalysis:
		if len(spec.Dimensions) == 0 {
			if spec.TimeRange.Kind() == query.TimeRangeComparison {
				spec.Dimensions = []string{query.DimTimePeriod}
			} else {
				spec.Dimensions = []string{query.DimDate}
			}
		}
	}

	if len(spec.Sort) == 0 && spec.Limit > 0 && len(spec.Metrics) > 0 {
		spec.Sort = []query.SortSpec{{By: spec.Metrics[0].Metric, Order: query.OrderDesc}}
	}

	spec.RequiresConfirmation = len(c.Ambiguities) > 0
	return spec
}

var metricLabels = map[string]string{
	query.MetricProfit:      "profit",
	query.MetricROI:         "ROI",
	query.MetricFlips:       "flips",
	query.MetricAvgHoldTime: "hold time",
	query.MetricVolume:      "volume",
	query.MetricWeightedROI: "weighted ROI",
}

var opLabels = map[string]string{
	query.OpSum:       "total",
	query.OpAvg:       "average",
	query.OpCount:     "number of",
	query.OpMin:       "lowest",
	query.OpMax:       "highest",
	query.OpCalculate: "calculated",
}

var presetLabels = map[string]string{
	query.PresetLast7d:    "the last 7 days",
	query.PresetLast30d:   "the last 30 days",
	query.PresetThisWeek:  "this week",
	query.PresetThisMonth: "this month",
	query.PresetLastMonth: "last month",
	query.PresetAllTime:   "all time",
}

// Preview renders a one-line summary, e.g.
// "total profit, average ROI by item for the last 7 days where item contains "whip", top 10 by profit".
func (b *Builder) Preview(spec *query.Spec) string {
	if spec == nil {
		return ""
	}
	var sb strings.Builder

	metrics := make([]string, 0, len(spec.Metrics))
	for _, m := range spec.Metrics {
		label := metricLabels[m.Metric]
		if label == "" {
			label = m.Metric
		}
		if op := opLabels[m.Operation]; op != "" {
			label = op + " " + label
		}
		metrics = append(metrics, label)
	}
	if len(metrics) == 0 {
		sb.WriteString("flips")
	} else {
		sb.WriteString(strings.Join(metrics, ", "))
	}

	if len(spec.Dimensions) > 0 {
		sb.WriteString(" by " + strings.Join(spec.Dimensions, ", "))
	}

	if tr := describeTimeRange(spec.TimeRange); tr != "" {
		sb.WriteString(" " + tr)
	}

	if len(spec.Filters) > 0 {
		parts := make([]string, 0, len(spec.Filters))
		for _, f := range spec.Filters {
			parts = append(parts, fmt.Sprintf("%s %s %q", f.Field, f.Operator, fmt.Sprint(f.Value)))
		}
		sb.WriteString(" where " + strings.Join(parts, " and "))
	}

	switch {
	case spec.Limit > 0 && len(spec.Sort) > 0:
		dir := "top"
		if spec.Sort[0].Order == query.OrderAsc {
			dir = "bottom"
		}
		fmt.Fprintf(&sb, ", %s %d by %s", dir, spec.Limit, spec.Sort[0].By)
	case spec.Limit > 0:
		fmt.Fprintf(&sb, ", limited to %d rows", spec.Limit)
	case len(spec.Sort) > 0:
		fmt.Fprintf(&sb, ", sorted by %s %s", spec.Sort[0].By, spec.Sort[0].Order)
	}

	return sb.String()
}

func describeTimeRange(tr *query.TimeRange) string {
	switch tr.Kind() {
	case query.TimeRangePreset:
		if label, ok := presetLabels[tr.Preset]; ok {
			return "for " + label
		}
		return "for " + tr.Preset
	case query.TimeRangeExplicit:
		return fmt.Sprintf("from %s to %s", tr.From, tr.To)
	case query.TimeRangeDayOfWeek:
		return "on " + tr.DayOfWeek + "s"
	case query.TimeRangeComparison:
		return "comparing weekends with weekdays"
	default:
		return ""
	}
}
