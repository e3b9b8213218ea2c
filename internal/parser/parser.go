// Package parser turns raw question text into a best-guess ParseResult.
//
// Intent detection scores keyword tables the same way the data-source router
// does; component extraction uses the shared lexicon.
package parser

import (
	"context"
	"regexp"
	"strings"

	"github.com/flipdesk/flipquery/internal/lexicon"
	"github.com/flipdesk/flipquery/internal/query"
)

// IntentParser is the contract the processor depends on.
type IntentParser interface {
	Parse(ctx context.Context, text string, recent query.Conversation) (query.ParseResult, error)
}

type intentRule struct {
	intent   string
	keywords []string
}

// intentRules are scored in order; ties go to the earlier rule.
var intentRules = []intentRule{
	{query.IntentPrediction, []string{"predict", "prediction", "forecast", "will be worth", "going to be", "future", "next week's"}},
	{query.IntentMarketLookup, []string{"current price", "market price", "ge price", "grand exchange price", "live price", "price right now"}},
	{query.IntentTopFlips, []string{"top", "best", "most profitable", "biggest", "largest", "worst", "least profitable"}},
	{query.IntentAccountComparison, []string{"account", "accounts", "alt", "main"}},
	{query.IntentTimeAnalysis, []string{"trend", "over time", "per day", "daily", "hourly", "by hour", "weekday", "weekend", "weekly", "monthly", "time of day", "day of week"}},
	{query.IntentItemAnalysis, []string{"item", "items", "weapon", "weapons", "armour", "armor", "potion", "potions", "rune", "runes", "gear", "bones"}},
	{query.IntentSummary, []string{"total", "overall", "summary", "how much", "how many", "average", "made", "earned"}},
}

var reSortAsc = regexp.MustCompile(`\b(least|worst|lowest|bottom|smallest)\b`)

const (
	baseConfidence     = 0.4
	intentBonus        = 0.2
	metricBonus        = 0.15
	timeBonus          = 0.1
	shapeBonus         = 0.1
	itemBonus          = 0.1
	maxParseConfidence = 0.95
	historyTurns       = 3
)

// RuleParser is a deterministic keyword parser.
type RuleParser struct {
	knownItems []string
}

// New returns a parser that recognizes the given item names.
func New(knownItems []string) *RuleParser {
	return &RuleParser{knownItems: append([]string(nil), knownItems...)}
}

// Parse extracts intent, components and a confidence score from text.
// The recent conversation only supplies an intent when the text has none.
func (p *RuleParser) Parse(ctx context.Context, text string, recent query.Conversation) (query.ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return query.ParseResult{}, err
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return query.ParseResult{}, &query.ParsingError{Query: text}
	}
	lower := strings.ToLower(trimmed)

	intent, intentHits := p.detectIntent(lower)
	comps := p.extract(trimmed, lower)

	if intent == "" {
		intent = inferIntent(comps, recent.Recent(historyTurns))
	}
	if intent == "" && len(comps.Metrics) == 0 && comps.TimeRange == nil && len(comps.Items) == 0 {
		return query.ParseResult{}, &query.ParsingError{Query: text}
	}

	confidence := baseConfidence
	if intentHits > 0 {
		confidence += intentBonus
	}
	if len(comps.Metrics) > 0 {
		confidence += metricBonus
	}
	if comps.TimeRange != nil {
		confidence += timeBonus
	}
	if comps.Limit > 0 || len(comps.Sort) > 0 || len(comps.Dimensions) > 0 {
		confidence += shapeBonus
	}
	if len(comps.Items) > 0 {
		confidence += itemBonus
	}
	confidence -= 0.05 * float64(len(comps.Ambiguities))
	confidence = clamp(confidence, 0, maxParseConfidence)

	return query.ParseResult{
		Query:      trimmed,
		Intent:     intent,
		Components: comps,
		Confidence: confidence,
	}, nil
}

func (p *RuleParser) detectIntent(lower string) (string, int) {
	best, bestScore := "", 0
	for _, rule := range intentRules {
		score := lexicon.CountPhrases(lower, rule.keywords)
		if score > bestScore {
			best, bestScore = rule.intent, score
		}
	}
	return best, bestScore
}

func (p *RuleParser) extract(text, lower string) query.Components {
	var c query.Components

	c.Metrics = lexicon.MatchMetrics(lower)
	c.Dimensions = lexicon.MatchDimensions(lower)
	if tr, ok := lexicon.MatchTimeRange(lower); ok {
		c.TimeRange = tr
	}
	if n, ok := lexicon.MatchLimit(lower); ok {
		c.Limit = n
	}

	c.Items = lexicon.MatchItems(text, p.knownItems)
	for _, item := range c.Items {
		c.Filters = append(c.Filters, query.Filter{Field: query.DimItem, Operator: "contains", Value: item})
	}

	if sortBy := sortTarget(c.Metrics); sortBy != "" && (c.Limit > 0 || superlative(lower)) {
		order := query.OrderDesc
		if reSortAsc.MatchString(lower) {
			order = query.OrderAsc
		}
		c.Sort = []query.SortSpec{{By: sortBy, Order: order}}
	}

	if len(c.Items) > 1 {
		c.Ambiguities = append(c.Ambiguities, "multiple items mentioned")
	}
	if _, ok := lexicon.MatchOperation(lower); !ok && len(c.Metrics) > 1 {
		c.Ambiguities = append(c.Ambiguities, "aggregation not stated for several metrics")
	}
	return c
}

func superlative(lower string) bool {
	_, ok := lexicon.AnyPhrase(lower, []string{"most", "best", "top", "highest", "biggest", "least", "worst", "lowest", "bottom"})
	return ok
}

func sortTarget(metrics []query.MetricSpec) string {
	if len(metrics) == 0 {
		return ""
	}
	return metrics[0].Metric
}

// inferIntent picks an intent from components, then from the previous turn.
func inferIntent(c query.Components, recent query.Conversation) string {
	switch {
	case len(c.Items) > 0:
		return query.IntentItemAnalysis
	case len(c.Dimensions) > 0 && c.Dimensions[0] != query.DimItem:
		return query.IntentTimeAnalysis
	case len(c.Metrics) > 0 || c.TimeRange != nil:
		return query.IntentSummary
	}
	if last, ok := recent.Last(); ok && last.Spec != nil && last.Spec.Intent != "" {
		return last.Spec.Intent
	}
	return ""
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
