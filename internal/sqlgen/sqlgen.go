// Package sqlgen is the client side of the SQL-generation endpoint: the
// request shapes for the hybrid and legacy paths, the structured prompt
// builder, an HTTP client and a caching decorator.
package sqlgen

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/flipdesk/flipquery/internal/query"
)

// Path names used in logs and metrics.
const (
	PathHybrid = "hybrid"
	PathLegacy = "legacy"
)

// Request is the body of POST /api/generate-sql. Hybrid requests carry the
// validated spec and its structured prompt; legacy requests carry the raw
// question plus the previous turn.
type Request struct {
	Query string `json:"query"`

	StructuredSpec   *query.Spec `json:"structuredSpec,omitempty"`
	StructuredPrompt string      `json:"structuredPrompt,omitempty"`
	IsHybridQuery    bool        `json:"isHybridQuery,omitempty"`

	PreviousQuery string `json:"previousQuery,omitempty"`
	PreviousSQL   string `json:"previousSQL,omitempty"`
	SessionID     string `json:"sessionId,omitempty"`
	IsOwner       bool   `json:"isOwner,omitempty"`

	TemporalContext *query.TemporalContext `json:"temporalContext,omitempty"`
}

// Path reports which generation path the request takes.
func (r Request) Path() string {
	if r.IsHybridQuery {
		return PathHybrid
	}
	return PathLegacy
}

// Response is the endpoint's reply: sql on success, error otherwise.
type Response struct {
	SQL   string `json:"sql,omitempty"`
	Error string `json:"error,omitempty"`
}

// Generator turns a request into SQL text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// NewHybridRequest builds the structured request for a validated spec.
// summary is a short human-readable description, never the raw question.
func NewHybridRequest(spec *query.Spec, summary string, tc *query.TemporalContext) Request {
	return Request{
		Query:            summary,
		StructuredSpec:   spec,
		StructuredPrompt: BuildPrompt(spec, tc),
		IsHybridQuery:    true,
		TemporalContext:  tc,
	}
}

// NewLegacyRequest builds the full-context request used by the fallback path.
func NewLegacyRequest(text string, conv query.Conversation, caller query.Caller, tc *query.TemporalContext) Request {
	req := Request{
		Query:           text,
		SessionID:       caller.SessionID,
		IsOwner:         caller.IsOwner,
		TemporalContext: tc,
	}
	if last, ok := conv.Last(); ok {
		req.PreviousQuery = last.Query
		req.PreviousSQL = last.SQL
	}
	return req
}

// BuildPrompt renders a spec as the compact line-oriented prompt sent on the
// hybrid path. Only the trimmed temporal fields are included.
func BuildPrompt(spec *query.Spec, tc *query.TemporalContext) string {
	if spec == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "INTENT: %s\n", spec.Intent)

	metrics := make([]string, len(spec.Metrics))
	for i, m := range spec.Metrics {
		metrics[i] = m.Operation + "(" + m.Metric + ")"
	}
	fmt.Fprintf(&sb, "METRICS: %s\n", strings.Join(metrics, ", "))

	if len(spec.Dimensions) > 0 {
		fmt.Fprintf(&sb, "GROUP BY: %s\n", strings.Join(spec.Dimensions, ", "))
	}
	for _, f := range spec.Filters {
		fmt.Fprintf(&sb, "FILTER: %s %s %v\n", f.Field, f.Operator, f.Value)
	}
	if tr := timeRangeLine(spec.TimeRange); tr != "" {
		fmt.Fprintf(&sb, "TIME RANGE: %s\n", tr)
	}
	for _, s := range spec.Sort {
		fmt.Fprintf(&sb, "SORT: %s %s\n", s.By, strings.ToUpper(s.Order))
	}
	if spec.Limit > 0 {
		fmt.Fprintf(&sb, "LIMIT: %d\n", spec.Limit)
	}
	if len(spec.IncludeColumns) > 0 {
		fmt.Fprintf(&sb, "COLUMNS: %s\n", strings.Join(spec.IncludeColumns, ", "))
	}

	sb.WriteString(TemporalLines(tc))
	return strings.TrimRight(sb.String(), "\n")
}

// TemporalLines renders the TODAY and RECENT DAYS lines for tc, each
// newline-terminated. A nil context renders nothing.
func TemporalLines(tc *query.TemporalContext) string {
	if tc == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "TODAY: %s (%s, %s)\n", tc.CurrentDate, tc.DayName, tc.Timezone)
	if len(tc.RecentDays) > 0 {
		keys := make([]string, 0, len(tc.RecentDays))
		for k := range tc.RecentDays {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		days := make([]string, len(keys))
		for i, k := range keys {
			days[i] = k + "=" + tc.RecentDays[k]
		}
		fmt.Fprintf(&sb, "RECENT DAYS: %s\n", strings.Join(days, ", "))
	}
	return sb.String()
}

func timeRangeLine(tr *query.TimeRange) string {
	switch tr.Kind() {
	case query.TimeRangePreset:
		return tr.Preset
	case query.TimeRangeExplicit:
		return tr.From + " to " + tr.To
	case query.TimeRangeDayOfWeek:
		return "every " + tr.DayOfWeek
	case query.TimeRangeComparison:
		return tr.Comparison
	}
	return ""
}
