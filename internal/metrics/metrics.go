// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flipquery_build_info",
		Help: "Build information of the flipquery server.",
	}, []string{"version", "commit", "date"})

	Outcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flipquery_outcomes_total", Help: "Terminal outcomes of query processing calls.",
	}, []string{"type"})

	Fallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flipquery_fallbacks_total", Help: "Queries routed to the legacy full-context endpoint.",
	}, []string{"reason"})

	ValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flipquery_validation_failures_total", Help: "Specs rejected by the capability validator.",
	}, []string{"kind"})

	SQLGenDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flipquery_sqlgen_duration_seconds",
		Help:    "Latency of SQL generation calls.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"path"})

	SQLCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flipquery_sql_cache_lookups_total", Help: "Generated SQL cache lookups.",
	}, []string{"result"})

	PanicsRecovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flipquery_http_panics_total", Help: "Handler panics recovered by the HTTP middleware.",
	}, []string{"path"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flipquery_http_requests_total", Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})
)

// Fallback reasons.
const (
	FallbackRefinement   = "refinement"
	FallbackParsing      = "parsing"
	FallbackHeuristic    = "heuristic"
	FallbackOutcomeError = "outcome_error"
)
