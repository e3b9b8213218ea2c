// Package validator enforces the declarative capability rulebook against a
// Query Specification and decides when a question needs clarification.
package validator

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flipdesk/flipquery/internal/capability"
	"github.com/flipdesk/flipquery/internal/query"
)

// SpecValidator is the contract the processor depends on.
type SpecValidator interface {
	Validate(spec *query.Spec) query.ValidationResult
	NeedsClarification(spec *query.Spec, originalQuery string) *query.Clarification
}

// Failure is what a rule returns when the spec breaks it.
type Failure struct {
	Rule         string
	Reason       string
	Suggestions  []string
	Missing      []string
	Alternatives []string
	Impossible   bool
}

func (f *Failure) result() query.ValidationResult {
	return query.ValidationResult{
		OK:           false,
		Rule:         f.Rule,
		Reason:       f.Reason,
		Suggestions:  f.Suggestions,
		Missing:      f.Missing,
		Alternatives: f.Alternatives,
		Impossible:   f.Impossible,
	}
}

type rule struct {
	name  string
	check func(v *Validator, spec *query.Spec) *Failure
}

// rules run in order and stop at the first failure.
var rules = []rule{
	{"confidence", (*Validator).checkConfidence},
	{"structure", (*Validator).checkStructure},
	{"time_range", (*Validator).checkTimeRange},
	{"metrics", (*Validator).checkMetrics},
	{"dimensions", (*Validator).checkDimensions},
	{"filters", (*Validator).checkFilters},
	{"limit", (*Validator).checkLimit},
	{"impossible", (*Validator).checkImpossible},
}

const dateLayout = "2006-01-02"

// Validator holds a read-only view of the capability set.
type Validator struct {
	set *capability.Set
}

// New returns a validator over set. The set must not be mutated afterwards.
func New(set *capability.Set) *Validator {
	return &Validator{set: set}
}

// Validate runs every rule in order. A panicking rule becomes a generic
// failure instead of escaping.
func (v *Validator) Validate(spec *query.Spec) (res query.ValidationResult) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("validation rule panicked")
			res = query.ValidationResult{OK: false, Rule: "internal", Reason: fmt.Sprintf("validation failed: %v", rec)}
		}
	}()

	if spec == nil {
		return query.ValidationResult{OK: false, Rule: "structure", Reason: "no query specification", Missing: []string{"spec"}}
	}
	for _, r := range rules {
		if f := r.check(v, spec); f != nil {
			f.Rule = r.name
			log.Debug().Str("rule", r.name).Str("reason", f.Reason).Msg("spec rejected")
			return f.result()
		}
	}
	return query.Valid()
}

func (v *Validator) checkConfidence(spec *query.Spec) *Failure {
	min := v.set.Rules.Limits.MinConfidence
	if spec.Confidence < min {
		return &Failure{
			Reason:      fmt.Sprintf("confidence %.2f is below the minimum of %.2f", spec.Confidence, min),
			Suggestions: v.set.Rules.ImprovementSuggestions,
		}
	}
	return nil
}

func (v *Validator) checkStructure(spec *query.Spec) *Failure {
	if strings.TrimSpace(spec.Intent) == "" {
		return &Failure{Reason: "query intent is missing", Missing: []string{"intent"}}
	}
	if len(spec.Metrics) == 0 {
		return &Failure{
			Reason:      "no metrics specified",
			Missing:     []string{"metrics"},
			Suggestions: v.set.Rules.ImprovementSuggestions,
		}
	}
	return nil
}

func (v *Validator) checkTimeRange(spec *query.Spec) *Failure {
	tr := spec.TimeRange
	switch tr.Kind() {
	case query.TimeRangeNone:
		return nil
	case query.TimeRangeConflict:
		return &Failure{Reason: "time range must use exactly one form"}
	case query.TimeRangePreset:
		if !slices.Contains(v.set.Rules.ValidTimePresets, tr.Preset) {
			return &Failure{
				Reason:       fmt.Sprintf("unsupported time range %q", tr.Preset),
				Alternatives: v.set.Rules.ValidTimePresets,
			}
		}
	case query.TimeRangeExplicit:
		from, err := time.Parse(dateLayout, tr.From)
		if err != nil {
			return &Failure{Reason: fmt.Sprintf("invalid start date %q", tr.From), Missing: []string{"timeRange.from"}}
		}
		to, err := time.Parse(dateLayout, tr.To)
		if err != nil {
			return &Failure{Reason: fmt.Sprintf("invalid end date %q", tr.To), Missing: []string{"timeRange.to"}}
		}
		if to.Before(from) {
			return &Failure{Reason: fmt.Sprintf("end date %s is before start date %s", tr.To, tr.From)}
		}
		days := int(to.Sub(from).Hours() / 24)
		if max := v.set.Rules.Limits.TimeRangeMaxDays; days > max {
			return &Failure{
				Reason:      fmt.Sprintf("time range spans %d days, maximum is %d days", days, max),
				Suggestions: []string{fmt.Sprintf("Narrow the range to %d days or fewer", max)},
			}
		}
	case query.TimeRangeDayOfWeek:
		if _, ok := weekdayIndex[strings.ToLower(tr.DayOfWeek)]; !ok {
			return &Failure{Reason: fmt.Sprintf("unknown day of week %q", tr.DayOfWeek)}
		}
	case query.TimeRangeComparison:
		if tr.Comparison != query.ComparisonWeekendWeekday {
			return &Failure{Reason: fmt.Sprintf("unsupported comparison %q", tr.Comparison)}
		}
	}
	return nil
}

var weekdayIndex = map[string]int{
	"sunday": 0, "monday": 1, "tuesday": 2, "wednesday": 3, "thursday": 4, "friday": 5, "saturday": 6,
}

func (v *Validator) checkMetrics(spec *query.Spec) *Failure {
	for _, m := range spec.Metrics {
		if !slices.Contains(v.set.Rules.ValidMetrics, m.Metric) {
			return &Failure{
				Reason:       fmt.Sprintf("unsupported metric %q", m.Metric),
				Alternatives: v.set.Rules.ValidMetrics,
			}
		}
		if !slices.Contains(v.set.Rules.ValidOperations, m.Operation) {
			return &Failure{
				Reason:       fmt.Sprintf("unsupported operation %q for metric %q", m.Operation, m.Metric),
				Alternatives: v.set.Rules.ValidOperations,
			}
		}
	}
	return nil
}

func (v *Validator) checkDimensions(spec *query.Spec) *Failure {
	if max := v.set.Rules.Limits.MaxDimensions; len(spec.Dimensions) > max {
		return &Failure{Reason: fmt.Sprintf("too many groupings: %d (max %d)", len(spec.Dimensions), max)}
	}
	for _, d := range spec.Dimensions {
		if !slices.Contains(v.set.Rules.ValidDimensions, d) {
			return &Failure{
				Reason:       fmt.Sprintf("cannot group by %q", d),
				Alternatives: v.set.Rules.ValidDimensions,
			}
		}
	}
	return nil
}

func (v *Validator) checkFilters(spec *query.Spec) *Failure {
	if max := v.set.Rules.Limits.MaxFilters; len(spec.Filters) > max {
		return &Failure{Reason: fmt.Sprintf("too many filters: %d (max %d)", len(spec.Filters), max)}
	}
	for _, f := range spec.Filters {
		if !slices.Contains(v.set.Rules.ValidFilterOperators, f.Operator) {
			return &Failure{
				Reason:       fmt.Sprintf("unsupported filter operator %q", f.Operator),
				Alternatives: v.set.Rules.ValidFilterOperators,
			}
		}
		col, ok := v.set.Column(f.Field)
		if !ok {
			return &Failure{Reason: fmt.Sprintf("unknown filter field %q", f.Field)}
		}
		if reason := checkFilterValue(col, f); reason != "" {
			return &Failure{Reason: reason}
		}
	}
	return nil
}

func checkFilterValue(col capability.Column, f query.Filter) string {
	switch col.Type {
	case capability.TypeNumeric:
		if !isNumber(f.Value) && !isArray(f.Value) {
			return fmt.Sprintf("filter on %q needs a number, got %T", f.Field, f.Value)
		}
	case capability.TypeDate:
		if f.Operator == "between" {
			vals, ok := asArray(f.Value)
			if !ok || len(vals) != 2 {
				return fmt.Sprintf("date range filter on %q needs exactly two values", f.Field)
			}
		} else if _, ok := f.Value.(string); !ok && !isArray(f.Value) {
			return fmt.Sprintf("filter on %q needs a date string, got %T", f.Field, f.Value)
		}
	case capability.TypeText:
		if _, ok := f.Value.(string); !ok && !isArray(f.Value) {
			return fmt.Sprintf("filter on %q needs text, got %T", f.Field, f.Value)
		}
	}
	return ""
}

func (v *Validator) checkLimit(spec *query.Spec) *Failure {
	if spec.Limit == 0 {
		return nil
	}
	max := v.set.Rules.Limits.LimitMax
	if spec.Limit < 1 || spec.Limit > max {
		return &Failure{Reason: fmt.Sprintf("limit must be between 1 and %d, got %d", max, spec.Limit)}
	}
	return nil
}

// intentText is what impossible patterns are matched against: the intent tag
// followed by the metric and dimension names.
func intentText(spec *query.Spec) string {
	parts := []string{spec.Intent}
	for _, m := range spec.Metrics {
		parts = append(parts, m.Metric)
	}
	parts = append(parts, spec.Dimensions...)
	return strings.ToLower(strings.Join(parts, " "))
}

func (v *Validator) checkImpossible(spec *query.Spec) *Failure {
	text := intentText(spec)
	for _, p := range v.set.Rules.ImpossiblePatterns {
		if !strings.Contains(text, strings.ToLower(p.Pattern)) {
			continue
		}
		if len(p.RequiresContext) > 0 && !containsAny(text, p.RequiresContext) {
			continue
		}
		return &Failure{
			Reason:       p.Reason,
			Alternatives: p.Suggestions,
			Impossible:   true,
		}
	}
	return nil
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64, uint, uint32, uint64:
		return true
	}
	return false
}

func isArray(v any) bool {
	_, ok := asArray(v)
	return ok
}

func asArray(v any) ([]any, bool) {
	switch vals := v.(type) {
	case []any:
		return vals, true
	case []string:
		out := make([]any, len(vals))
		for i, s := range vals {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(vals))
		for i, f := range vals {
			out[i] = f
		}
		return out, true
	case []int:
		out := make([]any, len(vals))
		for i, n := range vals {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}
