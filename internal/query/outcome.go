package query

// State is the processing state of a single processor instance.
type State string

const (
	StateReady                 State = "ready"
	StateParsing               State = "parsing"
	StateValidating            State = "validating"
	StateAwaitingConfirmation  State = "awaiting_confirmation"
	StateAwaitingClarification State = "awaiting_clarification"
	StateGeneratingSQL         State = "generating_sql"
	StateImpossible            State = "impossible"
	StateError                 State = "error"
)

// OutcomeType tags the terminal result of one processing call.
type OutcomeType string

const (
	OutcomeParsed          OutcomeType = "parsed"
	OutcomeConfirm         OutcomeType = "confirm"
	OutcomeClarify         OutcomeType = "clarify"
	OutcomeImpossible      OutcomeType = "impossible"
	OutcomeError           OutcomeType = "error"
	OutcomeFallbackSuccess OutcomeType = "fallback_success"
)

// ValidationResult is all-or-nothing: OK, or a reason with optional hints.
type ValidationResult struct {
	OK           bool     `json:"ok"`
	Rule         string   `json:"rule,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	Suggestions  []string `json:"suggestions,omitempty"`
	Missing      []string `json:"missing,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
	Impossible   bool     `json:"impossible,omitempty"`
}

// Valid is the passing result.
func Valid() ValidationResult {
	return ValidationResult{OK: true}
}

// Clarification is a follow-up question shown to the user.
type Clarification struct {
	Condition      string   `json:"condition"`
	Question       string   `json:"question"`
	Options        []string `json:"options,omitempty"`
	DynamicOptions bool     `json:"dynamicOptions,omitempty"`
}

// Components are the pieces the parser extracted from the raw text.
type Components struct {
	Metrics     []MetricSpec `json:"metrics,omitempty"`
	TimeRange   *TimeRange   `json:"timeRange,omitempty"`
	Dimensions  []string     `json:"dimensions,omitempty"`
	Items       []string     `json:"items,omitempty"`
	Filters     []Filter     `json:"filters,omitempty"`
	Sort        []SortSpec   `json:"sort,omitempty"`
	Limit       int          `json:"limit,omitempty"`
	Columns     []string     `json:"columns,omitempty"`
	Ambiguities []string     `json:"ambiguities,omitempty"`
}

// ParseResult is the parser's best guess at the user's intent.
type ParseResult struct {
	Query      string     `json:"query"`
	Intent     string     `json:"intent"`
	Components Components `json:"components"`
	Confidence float64    `json:"confidence"`
}

// ClarificationContext carries suspended state between a clarify outcome and
// the user's answer.
type ClarificationContext struct {
	Spec          *Spec       `json:"spec"`
	ParseResult   ParseResult `json:"parseResult"`
	OriginalQuery string      `json:"originalQuery"`
}

// Outcome is the single terminal result of a processing call. State is the
// processor state at the moment the outcome was produced.
type Outcome struct {
	Type  OutcomeType `json:"type"`
	State State       `json:"state"`

	Spec       *Spec   `json:"spec,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Preview    string  `json:"preview,omitempty"`

	Question       string                `json:"question,omitempty"`
	Options        []string              `json:"options,omitempty"`
	DynamicOptions bool                  `json:"dynamicOptions,omitempty"`
	Context        *ClarificationContext `json:"context,omitempty"`

	Reason       string   `json:"reason,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
	Suggestions  []string `json:"suggestions,omitempty"`

	Message       string `json:"message,omitempty"`
	FallbackToAPI bool   `json:"fallbackToAPI,omitempty"`

	SQL          string `json:"sql,omitempty"`
	UsedFallback bool   `json:"usedFallback,omitempty"`

	// Err is the cause behind an error outcome. It is not serialized.
	Err error `json:"-"`
}
