package processor

import (
	"strings"

	"github.com/flipdesk/flipquery/internal/builder"
	"github.com/flipdesk/flipquery/internal/lexicon"
	"github.com/flipdesk/flipquery/internal/query"
)

// MergeClarification folds a clarification answer into a copy of spec.
// A time phrase replaces the time range, a metric phrase replaces the
// metrics, and anything else is taken as an item name. Confidence rises by
// boost, capped at 1. The input spec is not modified.
func MergeClarification(spec *query.Spec, answer string, boost float64) *query.Spec {
	merged := spec.Clone()
	lower := strings.ToLower(strings.TrimSpace(answer))

	if tr, ok := lexicon.MatchTimeRange(lower); ok {
		merged.TimeRange = tr
	} else if metrics := lexicon.MatchMetrics(lower); len(metrics) > 0 {
		merged.Metrics = metrics
	} else if lower != "" {
		mergeItem(merged, lower)
	}

	merged.Confidence = min(1, merged.Confidence+boost)
	merged.RequiresConfirmation = false
	return merged
}

func mergeItem(spec *query.Spec, item string) {
	filters := spec.Filters[:0]
	for _, f := range spec.Filters {
		if f.Field != query.DimItem {
			filters = append(filters, f)
		}
	}
	spec.Filters = append(filters, query.Filter{Field: query.DimItem, Operator: "contains", Value: item})
	spec.Intent = query.IntentItemAnalysis
	spec.Metrics = builder.ItemAnalysisMetrics()
	spec.Dimensions = []string{query.DimItem}
}
