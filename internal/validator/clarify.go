package validator

import (
	"github.com/flipdesk/flipquery/internal/capability"
	"github.com/flipdesk/flipquery/internal/lexicon"
	"github.com/flipdesk/flipquery/internal/query"
)

const (
	defaultTimeWordThreshold = 2
	defaultMetricThreshold   = 3
	maxDynamicOptions        = 5
)

var (
	comparisonWords  = []string{"vs", "vs.", "versus", "compare", "compared", "comparing"}
	genericRankWords = []string{"top", "best", "most", "worst", "least", "highest", "lowest"}
)

// predicate decides whether a trigger fires for a spec and its source text.
type predicate func(t capability.ClarificationTrigger, spec *query.Spec, text string) bool

// conditions maps a trigger's condition name to its predicate. Triggers are
// evaluated in the order the rules document lists them.
var conditions = map[string]predicate{
	capability.ConditionMultipleTimeRanges: multipleTimeRanges,
	capability.ConditionAmbiguousItem:      ambiguousItem,
	capability.ConditionMultipleMetrics:    multipleMetrics,
	capability.ConditionUnclearComparison:  unclearComparison,
}

// NeedsClarification returns the first configured trigger that fires, or nil.
func (v *Validator) NeedsClarification(spec *query.Spec, originalQuery string) *query.Clarification {
	if spec == nil {
		return nil
	}
	for _, t := range v.set.Rules.ClarificationTriggers {
		pred, ok := conditions[t.Condition]
		if t.Condition == capability.ConditionMultipleMetrics && t.Threshold <= 0 {
			t.Threshold = v.set.Rules.Limits.MaxMetrics
		}
		if !ok || !pred(t, spec, originalQuery) {
			continue
		}
		c := &query.Clarification{
			Condition:      t.Condition,
			Question:       t.Question,
			Options:        append([]string(nil), t.Options...),
			DynamicOptions: t.DynamicOptions,
		}
		if t.DynamicOptions && len(c.Options) == 0 {
			c.Options = v.itemOptions()
		}
		return c
	}
	return nil
}

func (v *Validator) itemOptions() []string {
	items := v.set.Capabilities.KnownItems
	if len(items) > maxDynamicOptions {
		items = items[:maxDynamicOptions]
	}
	return append([]string(nil), items...)
}

func multipleTimeRanges(t capability.ClarificationTrigger, _ *query.Spec, text string) bool {
	threshold := t.Threshold
	if threshold <= 0 {
		threshold = defaultTimeWordThreshold
	}
	return lexicon.CountPhrases(text, t.Keywords) > threshold
}

// ambiguousItem fires when item-ish words appear without a specific item.
// Ranking questions over all items ("top 5 items") are left alone.
func ambiguousItem(t capability.ClarificationTrigger, spec *query.Spec, text string) bool {
	if len(spec.ItemFilters()) > 0 {
		return false
	}
	if _, ok := lexicon.AnyPhrase(text, t.Keywords); !ok {
		return false
	}
	_, generic := lexicon.AnyPhrase(text, genericRankWords)
	return !generic
}

func multipleMetrics(t capability.ClarificationTrigger, spec *query.Spec, _ string) bool {
	threshold := t.Threshold
	if threshold <= 0 {
		threshold = defaultMetricThreshold
	}
	return len(spec.Metrics) > threshold
}

// unclearComparison fires on comparison language unless the spec already
// carries a weekend-vs-weekday comparison.
func unclearComparison(t capability.ClarificationTrigger, spec *query.Spec, text string) bool {
	if spec.TimeRange.Kind() == query.TimeRangeComparison {
		return false
	}
	words := t.Keywords
	if len(words) == 0 {
		words = comparisonWords
	}
	_, ok := lexicon.AnyPhrase(text, words)
	return ok
}
