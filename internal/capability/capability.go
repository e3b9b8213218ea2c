// Package capability models the two configuration documents the query
// pipeline is driven by: the engine capabilities (schema and supported
// operations) and the validation rules (bounds, whitelists, impossible
// patterns, clarification triggers, fallback thresholds).
package capability

import (
	"fmt"
	"slices"
	"strings"
)

// Column types declared in the schema.
const (
	TypeText    = "text"
	TypeNumeric = "numeric"
	TypeDate    = "date"
)

// Column describes one queryable field.
type Column struct {
	Type         string `json:"type" yaml:"type"`
	Searchable   bool   `json:"searchable,omitempty" yaml:"searchable,omitempty"`
	Fuzzy        bool   `json:"fuzzy,omitempty" yaml:"fuzzy,omitempty"`
	Aggregatable bool   `json:"aggregatable,omitempty" yaml:"aggregatable,omitempty"`
	Derived      bool   `json:"derived,omitempty" yaml:"derived,omitempty"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Schema is the logical table the generated SQL targets.
type Schema struct {
	Table   string            `json:"table" yaml:"table"`
	Columns map[string]Column `json:"columns" yaml:"columns"`
}

// Capabilities describes what the local SQL engine can do.
type Capabilities struct {
	Engine              string   `json:"engine" yaml:"engine"`
	SupportedOperations []string `json:"supported_operations" yaml:"supported_operations"`
	ForbiddenOperations []string `json:"forbidden_operations" yaml:"forbidden_operations"`
	Schema              Schema   `json:"schema" yaml:"schema"`
	KnownItems          []string `json:"known_items,omitempty" yaml:"known_items,omitempty"`
}

// Limits are the numeric bounds enforced by the validator and processor.
type Limits struct {
	MaxQueryLength    int     `json:"max_query_length" yaml:"max_query_length"`
	TimeRangeMaxDays  int     `json:"time_range_max_days" yaml:"time_range_max_days"`
	LimitMax          int     `json:"limit_max" yaml:"limit_max"`
	MinConfidence     float64 `json:"min_confidence" yaml:"min_confidence"`
	ConfirmConfidence float64 `json:"confirm_confidence" yaml:"confirm_confidence"`
	MaxDimensions     int     `json:"max_dimensions" yaml:"max_dimensions"`
	MaxFilters        int     `json:"max_filters" yaml:"max_filters"`
	MaxMetrics        int     `json:"max_metrics" yaml:"max_metrics"`
}

// ImpossiblePattern rejects specs whose intent text contains Pattern and,
// when RequiresContext is non-empty, at least one of those words.
type ImpossiblePattern struct {
	Pattern         string   `json:"pattern" yaml:"pattern"`
	RequiresContext []string `json:"requires_context,omitempty" yaml:"requires_context,omitempty"`
	Reason          string   `json:"reason" yaml:"reason"`
	Suggestions     []string `json:"suggestions,omitempty" yaml:"suggestions,omitempty"`
}

// ClarificationTrigger asks Question when Condition holds.
type ClarificationTrigger struct {
	Condition      string   `json:"condition" yaml:"condition"`
	Question       string   `json:"question" yaml:"question"`
	Options        []string `json:"options,omitempty" yaml:"options,omitempty"`
	DynamicOptions bool     `json:"dynamic_options,omitempty" yaml:"dynamic_options,omitempty"`
	Keywords       []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Threshold      int      `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// FallbackRules tune when a query bypasses the structured pipeline.
type FallbackRules struct {
	MaxLocalQueryLength   int      `json:"max_local_query_length" yaml:"max_local_query_length"`
	ShortRefinementLength int      `json:"short_refinement_length" yaml:"short_refinement_length"`
	RefinementPhrases     []string `json:"refinement_phrases" yaml:"refinement_phrases"`
	RefinementKeywords    []string `json:"refinement_keywords" yaml:"refinement_keywords"`
	CalculationKeywords   []string `json:"calculation_keywords" yaml:"calculation_keywords"`
}

// ValidationRules is the declarative rulebook.
type ValidationRules struct {
	Limits                       Limits                 `json:"limits" yaml:"limits"`
	ValidTimePresets             []string               `json:"valid_time_presets" yaml:"valid_time_presets"`
	ValidMetrics                 []string               `json:"valid_metrics" yaml:"valid_metrics"`
	ValidOperations              []string               `json:"valid_operations" yaml:"valid_operations"`
	ValidDimensions              []string               `json:"valid_dimensions" yaml:"valid_dimensions"`
	ValidFilterOperators         []string               `json:"valid_filter_operators" yaml:"valid_filter_operators"`
	ImprovementSuggestions       []string               `json:"improvement_suggestions,omitempty" yaml:"improvement_suggestions,omitempty"`
	ImpossiblePatterns           []ImpossiblePattern    `json:"impossible_patterns" yaml:"impossible_patterns"`
	ClarificationTriggers        []ClarificationTrigger `json:"clarification_triggers" yaml:"clarification_triggers"`
	ClarificationConfidenceBoost float64                `json:"clarification_confidence_boost" yaml:"clarification_confidence_boost"`
	Fallback                     FallbackRules          `json:"fallback" yaml:"fallback"`
}

// Set bundles both documents. It is immutable once loaded.
type Set struct {
	Capabilities Capabilities    `json:"capabilities"`
	Rules        ValidationRules `json:"validation_rules"`
}

// Column returns the declared column for a field name.
func (s *Set) Column(field string) (Column, bool) {
	c, ok := s.Capabilities.Schema.Columns[field]
	return c, ok
}

// Validate fails fast on documents the pipeline cannot run with.
func (s *Set) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	caps := s.Capabilities
	if caps.Schema.Table == "" {
		add("capabilities: schema.table is required")
	}
	if len(caps.Schema.Columns) == 0 {
		add("capabilities: schema.columns is empty")
	}
	for name, col := range caps.Schema.Columns {
		switch col.Type {
		case TypeText, TypeNumeric, TypeDate:
		default:
			add("capabilities: column %q has unknown type %q", name, col.Type)
		}
	}

	r := s.Rules
	l := r.Limits
	if l.TimeRangeMaxDays <= 0 {
		add("rules: limits.time_range_max_days must be positive")
	}
	if l.LimitMax <= 0 {
		add("rules: limits.limit_max must be positive")
	}
	if l.MinConfidence < 0 || l.MinConfidence > 1 {
		add("rules: limits.min_confidence must be within [0, 1]")
	}
	if l.ConfirmConfidence < l.MinConfidence || l.ConfirmConfidence > 1 {
		add("rules: limits.confirm_confidence must be within [min_confidence, 1]")
	}
	if l.MaxDimensions <= 0 || l.MaxFilters <= 0 {
		add("rules: limits.max_dimensions and limits.max_filters must be positive")
	}
	if len(r.ValidMetrics) == 0 || len(r.ValidOperations) == 0 {
		add("rules: valid_metrics and valid_operations are required")
	}
	if len(r.ValidFilterOperators) == 0 {
		add("rules: valid_filter_operators is required")
	}
	for _, p := range r.ImpossiblePatterns {
		if strings.TrimSpace(p.Pattern) == "" || p.Reason == "" {
			add("rules: impossible pattern needs pattern and reason")
		}
	}
	for _, t := range r.ClarificationTriggers {
		if !slices.Contains(KnownConditions, t.Condition) {
			add("rules: unknown clarification condition %q", t.Condition)
		}
		if t.Question == "" {
			add("rules: clarification trigger %q has no question", t.Condition)
		}
	}
	if r.ClarificationConfidenceBoost < 0 || r.ClarificationConfidenceBoost > 1 {
		add("rules: clarification_confidence_boost must be within [0, 1]")
	}
	f := r.Fallback
	if f.MaxLocalQueryLength <= 0 || f.ShortRefinementLength <= 0 {
		add("rules: fallback lengths must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid capability config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Clarification condition names understood by the validator.
const (
	ConditionMultipleTimeRanges = "multiple_time_ranges"
	ConditionAmbiguousItem      = "ambiguous_item"
	ConditionMultipleMetrics    = "multiple_metrics"
	ConditionUnclearComparison  = "unclear_comparison"
)

// KnownConditions lists every condition a trigger may name.
var KnownConditions = []string{
	ConditionMultipleTimeRanges,
	ConditionAmbiguousItem,
	ConditionMultipleMetrics,
	ConditionUnclearComparison,
}
