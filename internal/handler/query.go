package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flipdesk/flipquery/internal/executor"
	"github.com/flipdesk/flipquery/internal/middleware"
	"github.com/flipdesk/flipquery/internal/models"
	"github.com/flipdesk/flipquery/internal/processor"
	"github.com/flipdesk/flipquery/internal/query"
	"github.com/flipdesk/flipquery/internal/security"
)

// QueryOptions wires the pipeline handlers. Executor may be nil, in which
// case generated SQL is returned without running it.
type QueryOptions struct {
	Processor     *processor.Processor
	Executor      executor.Executor
	SQLValidator  *security.SQLValidator
	PromptVal     *security.PromptValidator
	PIIDetector   *security.PIIDetector
	DataMasker    *security.DataMasker
	AuditLogger   *security.AuditLogger
	APIKeyHeader  string
	OwnerKeys     []string
	EnableMasking bool
}

// QueryHandler serves the query, clarify and confirm endpoints. Each request
// gets its own processor clone so state never leaks between callers.
type QueryHandler struct {
	opts   QueryOptions
	owners map[string]bool
}

func NewQueryHandler(opts QueryOptions) *QueryHandler {
	if opts.APIKeyHeader == "" {
		opts.APIKeyHeader = "X-API-Key"
	}
	if opts.SQLValidator == nil {
		opts.SQLValidator = security.NewSQLValidator(nil)
	}
	if opts.AuditLogger == nil {
		opts.AuditLogger = security.NewAuditLogger(false)
	}
	owners := make(map[string]bool, len(opts.OwnerKeys))
	for _, k := range opts.OwnerKeys {
		if k != "" {
			owners[k] = true
		}
	}
	return &QueryHandler{opts: opts, owners: owners}
}

// caller resolves the session identity. With no owner keys configured every
// caller owns the data.
func (h *QueryHandler) caller(apiKey, sessionID string) query.Caller {
	return query.Caller{
		SessionID: sessionID,
		IsOwner:   len(h.owners) == 0 || h.owners[apiKey],
	}
}

// Query handles POST /api/v1/query
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := models.DecodeJSON(w, r, &req); err != nil {
		models.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.SetDefaults()

	if msg, ok := h.screen(req.Query); !ok {
		models.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	apiKey := r.Header.Get(h.opts.APIKeyHeader)
	caller := h.caller(apiKey, req.SessionID)
	proc := h.opts.Processor.CloneFor(caller)

	out, err := proc.ProcessQueryWithFallback(r.Context(), req.Query, req.Conversation)
	if errors.Is(err, query.ErrUninitialized) {
		models.WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	h.opts.AuditLogger.LogOutcome(req.Query, apiKey, string(out.Type), specIntent(out.Spec), out.Confidence)
	if err != nil {
		h.writeGenerationError(w, out, err)
		return
	}

	resp := models.QueryResponse{Status: "success", Outcome: out}
	switch out.Type {
	case query.OutcomeParsed:
		sql, err := proc.GenerateSQL(r.Context(), out.Spec, nil)
		if err != nil {
			h.writeGenerationError(w, out, err)
			return
		}
		resp.SQL = sql
	case query.OutcomeFallbackSuccess:
		resp.SQL = out.SQL
	}

	log.Info().
		Str("request_id", middleware.GetRequestID(r.Context())).
		Str("outcome", string(out.Type)).
		Str("state", string(proc.State())).
		Float64("confidence", out.Confidence).
		Bool("used_fallback", out.UsedFallback).
		Msg("query processed")

	if resp.SQL != "" && *req.Execute {
		h.execute(r.Context(), w, resp, caller)
		return
	}
	models.WriteJSON(w, http.StatusOK, resp)
}

// Clarify handles POST /api/v1/query/clarify
func (h *QueryHandler) Clarify(w http.ResponseWriter, r *http.Request) {
	var req models.ClarifyRequest
	if err := models.DecodeJSON(w, r, &req); err != nil {
		models.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Context == nil || req.Context.Spec == nil {
		models.WriteError(w, http.StatusBadRequest, "clarification context is required")
		return
	}
	if msg, ok := h.screen(req.Answer); !ok {
		models.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	apiKey := r.Header.Get(h.opts.APIKeyHeader)
	proc := h.opts.Processor.CloneFor(h.caller(apiKey, req.SessionID))
	out, err := proc.ProcessClarificationResponse(r.Context(), req.Answer, req.Context)
	if err != nil {
		models.WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	h.opts.AuditLogger.LogOutcome(req.Context.OriginalQuery, apiKey, string(out.Type), specIntent(out.Spec), out.Confidence)
	models.WriteJSON(w, http.StatusOK, models.QueryResponse{Status: "success", Outcome: out})
}

// Confirm handles POST /api/v1/query/confirm
func (h *QueryHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req models.ConfirmRequest
	if err := models.DecodeJSON(w, r, &req); err != nil {
		models.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.SetDefaults()
	if req.Spec == nil {
		models.WriteError(w, http.StatusBadRequest, "spec is required")
		return
	}

	apiKey := r.Header.Get(h.opts.APIKeyHeader)
	caller := h.caller(apiKey, req.SessionID)
	proc := h.opts.Processor.CloneFor(caller)

	out := query.Outcome{Type: query.OutcomeParsed, Spec: req.Spec, Confidence: req.Spec.Confidence}
	sql, err := proc.GenerateSQL(r.Context(), req.Spec, req.TemporalContext)
	out.State = proc.State()
	if err != nil {
		if errors.Is(err, query.ErrUninitialized) {
			models.WriteError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		out.Type = query.OutcomeError
		out.Message = err.Error()
		h.writeGenerationError(w, out, err)
		return
	}

	resp := models.QueryResponse{Status: "success", Outcome: out, SQL: sql}
	if *req.Execute {
		h.execute(r.Context(), w, resp, caller)
		return
	}
	models.WriteJSON(w, http.StatusOK, resp)
}

// screen applies the caller-level prompt checks.
func (h *QueryHandler) screen(text string) (string, bool) {
	if h.opts.PromptVal != nil {
		if vr := h.opts.PromptVal.Validate(text); !vr.Valid {
			return vr.Message, false
		}
	}
	if h.opts.PIIDetector != nil {
		if found, kw := h.opts.PIIDetector.Detect(text); found {
			return "questions about account credentials are not supported: " + kw, false
		}
	}
	return "", true
}

// execute validates and runs resp.SQL, then writes resp with the result.
func (h *QueryHandler) execute(ctx context.Context, w http.ResponseWriter, resp models.QueryResponse, caller query.Caller) {
	if msg := h.opts.SQLValidator.Validate(resp.SQL); msg != "" {
		resp.Status = "error"
		resp.Message = "generated SQL rejected: " + msg
		models.WriteJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	if h.opts.Executor == nil {
		models.WriteJSON(w, http.StatusOK, resp)
		return
	}

	start := time.Now()
	res, err := h.opts.Executor.Query(ctx, resp.SQL)
	ms := time.Since(start).Milliseconds()
	if err != nil {
		h.opts.AuditLogger.LogQuery(resp.SQL, caller.SessionID, ms, 0, false, err.Error())
		resp.Status = "error"
		resp.Message = "query execution failed: " + err.Error()
		models.WriteJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	h.opts.AuditLogger.LogQuery(resp.SQL, caller.SessionID, ms, len(res.Rows), true, "")

	masked := false
	if h.opts.EnableMasking && h.opts.DataMasker != nil && !caller.IsOwner {
		res = &executor.Result{
			Columns:   res.Columns,
			Rows:      h.opts.DataMasker.MaskRows(res.Columns, res.Rows, false),
			Truncated: res.Truncated,
		}
		masked = true
	}

	resp.Result = &models.ResultSet{
		Columns:         res.Columns,
		Data:            res.Records(),
		RowCount:        len(res.Rows),
		Truncated:       res.Truncated,
		Masked:          masked,
		ExecutionTimeMs: ms,
	}
	models.WriteJSON(w, http.StatusOK, resp)
}

func (h *QueryHandler) writeGenerationError(w http.ResponseWriter, out query.Outcome, err error) {
	resp := models.QueryResponse{Status: "error", Message: err.Error(), Outcome: out}
	models.WriteJSON(w, generationStatus(err), resp)
}

// generationStatus maps SQL-generation failures onto HTTP status codes.
func generationStatus(err error) int {
	switch {
	case query.IsValidation(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, processor.ErrNoGenerator):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func specIntent(spec *query.Spec) string {
	if spec == nil {
		return ""
	}
	return strings.TrimSpace(spec.Intent)
}
