package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/flipdesk/flipquery/internal/agent"
	"github.com/flipdesk/flipquery/internal/models"
	"github.com/flipdesk/flipquery/internal/security"
	"github.com/flipdesk/flipquery/internal/sqlgen"
)

// GenerateHandler serves POST /api/generate-sql. Errors are reported in the
// endpoint's own {"error": ...} shape rather than models.ErrorResponse.
type GenerateHandler struct {
	gen          sqlgen.Generator
	costTracker  *security.CostTracker
	auditLogger  *security.AuditLogger
	apiKeyHeader string
}

func NewGenerateHandler(gen sqlgen.Generator, costTracker *security.CostTracker, auditLogger *security.AuditLogger, apiKeyHeader string) *GenerateHandler {
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	if costTracker == nil {
		costTracker = security.NewCostTracker(0, nil)
	}
	if auditLogger == nil {
		auditLogger = security.NewAuditLogger(false)
	}
	return &GenerateHandler{gen: gen, costTracker: costTracker, auditLogger: auditLogger, apiKeyHeader: apiKeyHeader}
}

// Generate handles POST /api/generate-sql
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req sqlgen.Request
	if err := models.DecodeJSON(w, r, &req); err != nil {
		models.WriteJSON(w, http.StatusBadRequest, sqlgen.Response{Error: err.Error()})
		return
	}

	prompt := req.Query
	if req.IsHybridQuery {
		if strings.TrimSpace(req.StructuredPrompt) == "" {
			models.WriteJSON(w, http.StatusBadRequest, sqlgen.Response{Error: "structuredPrompt is required for hybrid queries"})
			return
		}
		prompt = req.StructuredPrompt
	} else if strings.TrimSpace(req.Query) == "" {
		models.WriteJSON(w, http.StatusBadRequest, sqlgen.Response{Error: "query is required"})
		return
	}

	apiKey := r.Header.Get(h.apiKeyHeader)
	if ok, msg := h.costTracker.CheckLimits(apiKey); !ok {
		models.WriteJSON(w, http.StatusTooManyRequests, sqlgen.Response{Error: msg})
		return
	}

	start := time.Now()
	sql, err := h.gen.Generate(r.Context(), req)
	ms := time.Since(start).Milliseconds()
	h.auditLogger.LogGeneration(req.Path(), prompt, apiKey, sql, err == nil, false, ms)
	if err != nil {
		models.WriteJSON(w, writerStatus(err), sqlgen.Response{Error: err.Error()})
		return
	}
	h.costTracker.LogGenerationCost(req.Path(), prompt, apiKey, ms)

	models.WriteJSON(w, http.StatusOK, sqlgen.Response{SQL: sql})
}

func writerStatus(err error) int {
	switch {
	case errors.Is(err, agent.ErrNoSQL), errors.Is(err, agent.ErrUnsafeSQL):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
