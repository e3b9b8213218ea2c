// Package processor runs the hybrid query pipeline: parse, build, validate,
// then either ask for clarification or confirmation, or hand a validated spec
// to SQL generation. Queries the structured path cannot serve are routed to
// the legacy full-context endpoint.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flipdesk/flipquery/internal/builder"
	"github.com/flipdesk/flipquery/internal/capability"
	"github.com/flipdesk/flipquery/internal/metrics"
	"github.com/flipdesk/flipquery/internal/parser"
	"github.com/flipdesk/flipquery/internal/query"
	"github.com/flipdesk/flipquery/internal/sqlgen"
	"github.com/flipdesk/flipquery/internal/temporal"
	"github.com/flipdesk/flipquery/internal/validator"
)

const defaultSQLTimeout = 30 * time.Second

// ErrNoGenerator is returned when SQL generation is requested but no
// generator was configured.
var ErrNoGenerator = errors.New("no SQL generator configured")

// Options wires a Processor. Parser, Builder and Validator default to the
// rule-based implementations built from the loaded capability set.
type Options struct {
	Loader    capability.Loader
	Parser    parser.IntentParser
	Builder   builder.SpecBuilder
	Validator validator.SpecValidator

	// Generator serves hybrid requests; Legacy serves the fallback path and
	// defaults to Generator.
	Generator sqlgen.Generator
	Legacy    sqlgen.Generator

	Temporal   *temporal.Source
	Caller     query.Caller
	SQLTimeout time.Duration
}

// Processor owns the processing state for one caller at a time. Calls on a
// single instance are serialized; use Clone to serve concurrent requests.
type Processor struct {
	opts Options

	mu          sync.Mutex
	state       query.State
	initialized bool

	set       *capability.Set
	parser    parser.IntentParser
	builder   builder.SpecBuilder
	validator validator.SpecValidator
	temporal  *temporal.Source
}

// New returns an uninitialized processor.
func New(opts Options) *Processor {
	if opts.SQLTimeout <= 0 {
		opts.SQLTimeout = defaultSQLTimeout
	}
	if opts.Legacy == nil {
		opts.Legacy = opts.Generator
	}
	return &Processor{opts: opts, state: query.StateReady}
}

// Initialize loads the capability set and builds the default components.
func (p *Processor) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	loader := p.opts.Loader
	if loader == nil {
		loader = capability.NewFileLoader("", "")
	}
	set, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("initialize query processor: %w", err)
	}

	p.set = set
	p.parser = p.opts.Parser
	if p.parser == nil {
		p.parser = parser.New(set.Capabilities.KnownItems)
	}
	p.builder = p.opts.Builder
	if p.builder == nil {
		p.builder = builder.New()
	}
	p.validator = p.opts.Validator
	if p.validator == nil {
		p.validator = validator.New(set)
	}
	p.temporal = p.opts.Temporal
	if p.temporal == nil {
		src, err := temporal.NewSource(nil, "")
		if err != nil {
			return fmt.Errorf("initialize query processor: %w", err)
		}
		p.temporal = src
	}
	p.initialized = true
	p.state = query.StateReady

	log.Info().
		Int("known_items", len(set.Capabilities.KnownItems)).
		Float64("confirm_confidence", set.Rules.Limits.ConfirmConfidence).
		Msg("query processor initialized")
	return nil
}

// Clone returns a processor sharing this one's immutable configuration with
// its own state. The clone is initialized iff the receiver is.
func (p *Processor) Clone() *Processor {
	return p.CloneFor(p.opts.Caller)
}

// CloneFor is Clone with a different caller identity for the legacy path.
func (p *Processor) CloneFor(caller query.Caller) *Processor {
	p.mu.Lock()
	defer p.mu.Unlock()
	opts := p.opts
	opts.Caller = caller
	return &Processor{
		opts:        opts,
		state:       query.StateReady,
		initialized: p.initialized,
		set:         p.set,
		parser:      p.parser,
		builder:     p.builder,
		validator:   p.validator,
		temporal:    p.temporal,
	}
}

// State returns the current processing state.
func (p *Processor) State() query.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Reset forces the state back to ready.
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = query.StateReady
}

// Capabilities returns the loaded capability set, or nil before Initialize.
func (p *Processor) Capabilities() *capability.Set {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.set
}

// Initialized reports whether Initialize has completed.
func (p *Processor) Initialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}

// ProcessQuery runs the structured pipeline for one question and reports a
// single terminal outcome. The only error returned is ErrUninitialized;
// every other failure becomes an error outcome with FallbackToAPI set.
func (p *Processor) ProcessQuery(ctx context.Context, text string, conv query.Conversation) (query.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return query.Outcome{}, query.ErrUninitialized
	}
	out := p.processLocked(ctx, text, conv)
	metrics.Outcomes.WithLabelValues(string(out.Type)).Inc()
	return out, nil
}

func (p *Processor) processLocked(ctx context.Context, text string, conv query.Conversation) (out query.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("query", text).Msg("query processing panicked")
			out = p.errorOutcome(fmt.Errorf("query processing failed: %v", rec))
		}
	}()

	p.state = query.StateParsing
	pr, err := p.parser.Parse(ctx, text, conv)
	if err != nil {
		return p.errorOutcome(err)
	}
	spec := p.builder.Build(pr)

	p.state = query.StateValidating
	res := p.validator.Validate(spec)
	if !res.OK {
		metrics.ValidationFailures.WithLabelValues(failureKind(res)).Inc()
		p.state = query.StateImpossible
		return query.Outcome{
			Type:         query.OutcomeImpossible,
			State:        p.state,
			Spec:         spec,
			Confidence:   pr.Confidence,
			Reason:       res.Reason,
			Alternatives: res.Alternatives,
			Suggestions:  res.Suggestions,
		}
	}

	if c := p.validator.NeedsClarification(spec, text); c != nil {
		p.state = query.StateAwaitingClarification
		return query.Outcome{
			Type:           query.OutcomeClarify,
			State:          p.state,
			Confidence:     pr.Confidence,
			Question:       c.Question,
			Options:        c.Options,
			DynamicOptions: c.DynamicOptions,
			Context: &query.ClarificationContext{
				Spec:          spec,
				ParseResult:   pr,
				OriginalQuery: text,
			},
		}
	}

	preview := p.builder.Preview(spec)
	if spec.RequiresConfirmation || pr.Confidence < p.set.Rules.Limits.ConfirmConfidence {
		p.state = query.StateAwaitingConfirmation
		return query.Outcome{
			Type:       query.OutcomeConfirm,
			State:      p.state,
			Spec:       spec,
			Confidence: pr.Confidence,
			Preview:    preview,
		}
	}

	p.state = query.StateReady
	return query.Outcome{
		Type:       query.OutcomeParsed,
		State:      p.state,
		Spec:       spec,
		Confidence: pr.Confidence,
		Preview:    preview,
	}
}

func (p *Processor) errorOutcome(err error) query.Outcome {
	p.state = query.StateError
	log.Warn().Err(err).Msg("query processing failed")
	return query.Outcome{
		Type:          query.OutcomeError,
		State:         p.state,
		Message:       err.Error(),
		FallbackToAPI: true,
		Err:           err,
	}
}

func failureKind(res query.ValidationResult) string {
	if res.Impossible {
		return "impossible"
	}
	if res.Rule == "" {
		return "unknown"
	}
	return res.Rule
}

// GenerateSQL sends a confirmed spec to the SQL-generation endpoint. The spec
// is re-validated first so nothing unvalidated leaves the process. A nil tc
// uses the processor's clock. Only the structured prompt is sent.
func (p *Processor) GenerateSQL(ctx context.Context, spec *query.Spec, tc *query.TemporalContext) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return "", query.ErrUninitialized
	}
	if p.opts.Generator == nil {
		p.state = query.StateError
		return "", ErrNoGenerator
	}

	p.state = query.StateValidating
	if res := p.validator.Validate(spec); !res.OK {
		metrics.ValidationFailures.WithLabelValues(failureKind(res)).Inc()
		p.state = query.StateError
		if res.Impossible {
			return "", &query.ImpossibleQueryError{Reason: res.Reason, Alternatives: res.Alternatives}
		}
		return "", &query.ValidationError{Reason: res.Reason, Suggestions: res.Suggestions}
	}

	if tc == nil {
		now := p.temporal.Now()
		tc = &now
	}

	p.state = query.StateGeneratingSQL
	req := sqlgen.NewHybridRequest(spec, p.builder.Preview(spec), tc)

	genCtx, cancel := context.WithTimeout(ctx, p.opts.SQLTimeout)
	defer cancel()

	start := time.Now()
	sql, err := p.opts.Generator.Generate(genCtx, req)
	metrics.SQLGenDuration.WithLabelValues(sqlgen.PathHybrid).Observe(time.Since(start).Seconds())
	if err != nil {
		p.state = query.StateError
		log.Error().Err(err).Str("intent", spec.Intent).Msg("sql generation failed")
		return "", fmt.Errorf("generate sql: %w", err)
	}

	p.state = query.StateReady
	log.Info().
		Str("intent", spec.Intent).
		Dur("duration", time.Since(start)).
		Msg("sql generated from structured spec")
	return sql, nil
}

// ProcessClarificationResponse merges the user's answer into the suspended
// spec and re-validates it. The parser is not consulted.
func (p *Processor) ProcessClarificationResponse(ctx context.Context, answer string, cc *query.ClarificationContext) (query.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return query.Outcome{}, query.ErrUninitialized
	}
	out := p.clarifyLocked(answer, cc)
	metrics.Outcomes.WithLabelValues(string(out.Type)).Inc()
	return out, nil
}

func (p *Processor) clarifyLocked(answer string, cc *query.ClarificationContext) (out query.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			out = p.errorOutcome(fmt.Errorf("clarification failed: %v", rec))
		}
	}()

	if cc == nil || cc.Spec == nil {
		return p.errorOutcome(errors.New("clarification context is missing"))
	}

	p.state = query.StateValidating
	merged := MergeClarification(cc.Spec, answer, p.set.Rules.ClarificationConfidenceBoost)

	res := p.validator.Validate(merged)
	if !res.OK {
		metrics.ValidationFailures.WithLabelValues(failureKind(res)).Inc()
		p.state = query.StateImpossible
		return query.Outcome{
			Type:         query.OutcomeImpossible,
			State:        p.state,
			Spec:         merged,
			Confidence:   merged.Confidence,
			Reason:       res.Reason,
			Alternatives: res.Alternatives,
			Suggestions:  res.Suggestions,
		}
	}

	p.state = query.StateAwaitingConfirmation
	return query.Outcome{
		Type:       query.OutcomeConfirm,
		State:      p.state,
		Spec:       merged,
		Confidence: merged.Confidence,
		Preview:    p.builder.Preview(merged),
	}
}
