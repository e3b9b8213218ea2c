package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flipdesk/flipquery/internal/capability"
	"github.com/flipdesk/flipquery/internal/lexicon"
	"github.com/flipdesk/flipquery/internal/metrics"
	"github.com/flipdesk/flipquery/internal/query"
	"github.com/flipdesk/flipquery/internal/sqlgen"
)

// defaultFallback applies before a rules document has been loaded.
var defaultFallback = capability.FallbackRules{
	MaxLocalQueryLength:   400,
	ShortRefinementLength: 50,
	RefinementPhrases: []string{
		"also include", "add to that", "sort by", "order by", "exclude",
		"only show", "limit to", "top", "bottom", "instead", "same but",
		"remove", "filter out", "show more", "show less",
	},
	RefinementKeywords:  []string{"roi", "count", "sort", "limit", "exclude", "include"},
	CalculationKeywords: []string{"calculate", "formula"},
}

func (p *Processor) fallbackRules() capability.FallbackRules {
	if p.set == nil {
		return defaultFallback
	}
	return p.set.Rules.Fallback
}

// ShouldFallbackToAPI decides whether a query should be served by the legacy
// endpoint. Checks apply in order: an uninitialized processor always falls
// back; validation errors never do; parsing errors always do; then
// refinements of the prior turn, overlong text, mixed and/or logic, and
// calculation requests.
func (p *Processor) ShouldFallbackToAPI(text string, err error, conv query.Conversation) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.fallbackReasonLocked(text, err, conv)
	return ok
}

func (p *Processor) fallbackReasonLocked(text string, err error, conv query.Conversation) (string, bool) {
	if !p.initialized {
		return metrics.FallbackOutcomeError, true
	}
	if err != nil && query.IsValidation(err) {
		return "", false
	}
	if err != nil && query.IsParsing(err) {
		return metrics.FallbackParsing, true
	}
	rules := p.fallbackRules()
	if isRefinement(rules, text, conv) {
		return metrics.FallbackRefinement, true
	}
	lower := strings.ToLower(text)
	if len([]rune(text)) > rules.MaxLocalQueryLength {
		return metrics.FallbackHeuristic, true
	}
	if strings.Contains(lower, " and ") && strings.Contains(lower, " or ") {
		return metrics.FallbackHeuristic, true
	}
	if _, ok := lexicon.AnySubstring(lower, rules.CalculationKeywords); ok {
		return metrics.FallbackHeuristic, true
	}
	return "", false
}

// IsRefinementQuery reports whether text modifies the previous turn. It is
// always false without conversation history.
func (p *Processor) IsRefinementQuery(text string, conv query.Conversation) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return isRefinement(p.fallbackRules(), text, conv)
}

func isRefinement(rules capability.FallbackRules, text string, conv query.Conversation) bool {
	if len(conv) == 0 {
		return false
	}
	lower := strings.ToLower(strings.TrimSpace(text))
	if _, ok := lexicon.AnyPhrase(lower, rules.RefinementPhrases); ok {
		return true
	}
	if len([]rune(lower)) < rules.ShortRefinementLength {
		_, ok := lexicon.AnySubstring(lower, rules.RefinementKeywords)
		return ok
	}
	return false
}

// ProcessQueryWithFallback sends refinements straight to the legacy endpoint
// and otherwise runs ProcessQuery, delegating to the legacy endpoint when
// the structured path reports an error it cannot recover from.
func (p *Processor) ProcessQueryWithFallback(ctx context.Context, text string, conv query.Conversation) (query.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return query.Outcome{}, query.ErrUninitialized
	}

	if isRefinement(p.fallbackRules(), text, conv) {
		log.Info().Str("query", text).Msg("refinement query, using full-context generation")
		return p.fallbackLocked(ctx, metrics.FallbackRefinement, text, conv)
	}

	out := p.processLocked(ctx, text, conv)
	if out.Type != query.OutcomeError {
		metrics.Outcomes.WithLabelValues(string(out.Type)).Inc()
		return out, nil
	}

	reason, ok := p.fallbackReasonLocked(text, out.Err, conv)
	if !ok && !out.FallbackToAPI {
		metrics.Outcomes.WithLabelValues(string(out.Type)).Inc()
		return out, nil
	}
	if reason == "" {
		reason = metrics.FallbackOutcomeError
	}
	log.Info().Str("query", text).Str("reason", reason).Msg("structured path failed, using full-context generation")
	return p.fallbackLocked(ctx, reason, text, conv)
}

// fallbackLocked generates SQL from the raw question plus the last turn.
func (p *Processor) fallbackLocked(ctx context.Context, reason, text string, conv query.Conversation) (query.Outcome, error) {
	metrics.Fallbacks.WithLabelValues(reason).Inc()

	if p.opts.Legacy == nil {
		p.state = query.StateError
		out := query.Outcome{Type: query.OutcomeError, State: p.state, Message: ErrNoGenerator.Error(), Err: ErrNoGenerator}
		metrics.Outcomes.WithLabelValues(string(out.Type)).Inc()
		return out, ErrNoGenerator
	}

	tc := p.temporal.Now()
	req := sqlgen.NewLegacyRequest(text, conv, p.opts.Caller, &tc)

	p.state = query.StateGeneratingSQL
	genCtx, cancel := context.WithTimeout(ctx, p.opts.SQLTimeout)
	defer cancel()

	start := time.Now()
	sql, err := p.opts.Legacy.Generate(genCtx, req)
	metrics.SQLGenDuration.WithLabelValues(sqlgen.PathLegacy).Observe(time.Since(start).Seconds())
	if err != nil {
		p.state = query.StateError
		err = fmt.Errorf("full-context generation: %w", err)
		out := query.Outcome{Type: query.OutcomeError, State: p.state, Message: err.Error(), Err: err}
		metrics.Outcomes.WithLabelValues(string(out.Type)).Inc()
		return out, err
	}

	p.state = query.StateReady
	out := query.Outcome{
		Type:         query.OutcomeFallbackSuccess,
		State:        p.state,
		SQL:          sql,
		UsedFallback: true,
	}
	metrics.Outcomes.WithLabelValues(string(out.Type)).Inc()
	return out, nil
}

// IsEndpointError reports whether err came from a SQL-generation endpoint.
func IsEndpointError(err error) bool {
	var ee *query.EndpointError
	return errors.As(err, &ee)
}
