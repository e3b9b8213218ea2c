package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/flipdesk/flipquery/internal/handler"
	"github.com/flipdesk/flipquery/internal/middleware"
	"github.com/flipdesk/flipquery/internal/security"
)

func (s *Server) setupRoutes() http.Handler {
	cfg := s.cfg
	p := s.pipeline

	log.Info().
		Bool("generate_endpoint", p.Writer != nil).
		Bool("executor", p.Executor != nil).
		Bool("auth_enabled", cfg.EnableAuth && len(cfg.APIKeys) > 0).
		Bool("data_masking", cfg.EnableDataMasking).
		Bool("audit_logging", cfg.EnableAuditLogging).
		Bool("pii_detection", cfg.EnablePIIDetection).
		Msg("service configuration")

	if cfg.EnableAuth && len(cfg.APIKeys) == 0 {
		log.Warn().Msg("WARNING: auth enabled but no API keys configured - API routes are open")
	}

	// ─── Security ───────────────────────────────────────────────────────────────
	var piiDetector *security.PIIDetector
	if cfg.EnablePIIDetection {
		keywords := cfg.PIIKeywords
		if len(keywords) == 0 {
			keywords = security.DefaultCredentialKeywords
		}
		piiDetector = security.NewPIIDetector(keywords)
	}
	maxLen := cfg.MaxQueryLength
	if set := p.Processor.Capabilities(); set != nil && set.Rules.Limits.MaxQueryLength > 0 {
		maxLen = set.Rules.Limits.MaxQueryLength
	}
	promptVal := security.NewPromptValidator(maxLen)
	costTracker := security.NewCostTracker(cfg.MaxGenerationsPerDay, nil)
	dataMasker := security.NewDataMasker(cfg.SensitiveColumns)
	auditLogger := security.NewAuditLogger(cfg.EnableAuditLogging)

	// ─── Handlers ────────────────────────────────────────────────────────────────
	healthH := handler.NewHealthHandler(p.Processor, p.Executor, p.Cache)
	capsH := handler.NewCapabilitiesHandler(p.Processor)
	queryH := handler.NewQueryHandler(handler.QueryOptions{
		Processor:     p.Processor,
		Executor:      p.Executor,
		SQLValidator:  p.SQLVal,
		PromptVal:     promptVal,
		PIIDetector:   piiDetector,
		DataMasker:    dataMasker,
		AuditLogger:   auditLogger,
		APIKeyHeader:  cfg.APIKeyHeader,
		OwnerKeys:     cfg.OwnerAPIKeys,
		EnableMasking: cfg.EnableDataMasking,
	})

	var generateH *handler.GenerateHandler
	if p.Writer != nil {
		generateH = handler.NewGenerateHandler(p.Writer, costTracker, auditLogger, cfg.APIKeyHeader)
	}

	// ─── Router ──────────────────────────────────────────────────────────────────
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
	r.Use(chiMiddleware.RealIP)

	// Public routes
	r.Get("/health", healthH.Health)
	r.Get("/", healthH.Health)
	r.Handle("/metrics", promhttp.Handler())

	apiMiddleware := []func(http.Handler) http.Handler{
		middleware.RateLimit(cfg.RateLimitPerMinute),
	}
	if cfg.EnableAuth && len(cfg.APIKeys) > 0 {
		apiMiddleware = append(apiMiddleware, middleware.Auth(cfg.APIKeys, cfg.APIKeyHeader))
	}

	r.Group(func(r chi.Router) {
		for _, m := range apiMiddleware {
			r.Use(m)
		}

		r.Route(cfg.APIPrefix, func(r chi.Router) {
			r.Post("/query", queryH.Query)
			r.Post("/query/clarify", queryH.Clarify)
			r.Post("/query/confirm", queryH.Confirm)
			r.Get("/capabilities", capsH.Get)
		})

		if generateH != nil {
			r.Post("/api/generate-sql", generateH.Generate)
		}
	})

	return r
}
