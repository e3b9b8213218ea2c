package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipdesk/flipquery/internal/agent"
	"github.com/flipdesk/flipquery/internal/cache"
	"github.com/flipdesk/flipquery/internal/executor"
	"github.com/flipdesk/flipquery/internal/handler"
	"github.com/flipdesk/flipquery/internal/models"
	"github.com/flipdesk/flipquery/internal/processor"
	"github.com/flipdesk/flipquery/internal/query"
	"github.com/flipdesk/flipquery/internal/security"
	"github.com/flipdesk/flipquery/internal/sqlgen"
	"github.com/flipdesk/flipquery/internal/temporal"
)

type fakeGenerator struct {
	mu   sync.Mutex
	sql  string
	err  error
	reqs []sqlgen.Request
}

func (g *fakeGenerator) Generate(_ context.Context, req sqlgen.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	return g.sql, g.err
}

func (g *fakeGenerator) last() sqlgen.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reqs[len(g.reqs)-1]
}

type env struct {
	proc   *processor.Processor
	hybrid *fakeGenerator
	legacy *fakeGenerator
	db     *executor.DuckDB
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	db, err := executor.OpenDuckDB(ctx, executor.DuckDBOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Exec(ctx, `CREATE TABLE flips (item VARCHAR, account VARCHAR, profit BIGINT)`))
	require.NoError(t, db.Exec(ctx, `INSERT INTO flips VALUES
		('abyssal whip', 'Zezima', 120000),
		('dragon bones', 'Zezima', 4000),
		('abyssal whip', 'Lynx', 30000)`))

	src, err := temporal.NewSource(clockwork.NewFakeClockAt(time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC)), "UTC")
	require.NoError(t, err)

	e := &env{
		hybrid: &fakeGenerator{sql: "SELECT item, SUM(profit) AS profit FROM flips GROUP BY item ORDER BY profit DESC LIMIT 10"},
		legacy: &fakeGenerator{sql: "SELECT item, account, profit FROM flips ORDER BY profit DESC"},
		db:     db,
	}
	e.proc = processor.New(processor.Options{
		Generator: e.hybrid,
		Legacy:    e.legacy,
		Temporal:  src,
	})
	require.NoError(t, e.proc.Initialize(ctx))
	return e
}

func (e *env) queryHandler(ownerKeys ...string) *handler.QueryHandler {
	return handler.NewQueryHandler(handler.QueryOptions{
		Processor:     e.proc,
		Executor:      e.db,
		SQLValidator:  security.NewSQLValidator(e.proc.Capabilities().Capabilities.ForbiddenOperations),
		PromptVal:     security.NewPromptValidator(500),
		PIIDetector:   security.NewPIIDetector(security.DefaultCredentialKeywords),
		DataMasker:    security.NewDataMasker([]string{"account"}),
		AuditLogger:   security.NewAuditLogger(true),
		OwnerKeys:     ownerKeys,
		EnableMasking: true,
	})
}

func post(t *testing.T, h http.HandlerFunc, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) models.QueryResponse {
	t.Helper()
	var resp models.QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestQueryParsedGeneratesAndExecutes(t *testing.T) {
	e := newEnv(t)
	h := e.queryHandler()

	rec := post(t, h.Query, map[string]any{"query": "Show me my top 10 most profitable flips"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode(t, rec)
	assert.Equal(t, query.OutcomeParsed, resp.Outcome.Type)
	assert.Equal(t, e.hybrid.sql, resp.SQL)
	require.NotNil(t, resp.Result)
	assert.Equal(t, []string{"item", "profit"}, resp.Result.Columns)
	assert.Equal(t, 2, resp.Result.RowCount)
	assert.Equal(t, "abyssal whip", resp.Result.Data[0]["item"])

	req := e.hybrid.last()
	assert.True(t, req.IsHybridQuery)
	assert.Contains(t, req.StructuredPrompt, "Wednesday")
	assert.Empty(t, req.PreviousSQL)
}

func TestQueryWithoutExecute(t *testing.T) {
	e := newEnv(t)
	h := e.queryHandler()

	rec := post(t, h.Query, map[string]any{"query": "Show me my top 10 most profitable flips", "execute": false})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode(t, rec)
	assert.NotEmpty(t, resp.SQL)
	assert.Nil(t, resp.Result)
}

func TestQueryRefinementFallsBackAndMasks(t *testing.T) {
	e := newEnv(t)
	h := e.queryHandler("owner-key")

	body := map[string]any{
		"query":     "sort by roi",
		"sessionId": "sess-9",
		"conversation": []map[string]any{{
			"query":       "Show me my top 10 most profitable flips",
			"sql":         "SELECT item, SUM(profit) FROM flips GROUP BY item",
			"resultCount": 2,
		}},
	}
	rec := post(t, h.Query, body, "X-API-Key", "guest-key")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode(t, rec)
	assert.Equal(t, query.OutcomeFallbackSuccess, resp.Outcome.Type)
	assert.True(t, resp.Outcome.UsedFallback)
	assert.Empty(t, e.hybrid.reqs)

	legacy := e.legacy.last()
	assert.Equal(t, "sort by roi", legacy.Query)
	assert.Equal(t, "SELECT item, SUM(profit) FROM flips GROUP BY item", legacy.PreviousSQL)
	assert.Equal(t, "sess-9", legacy.SessionID)
	assert.False(t, legacy.IsOwner)

	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.Masked)
	for _, row := range resp.Result.Data {
		assert.NotEqual(t, "Zezima", row["account"])
		assert.True(t, strings.HasPrefix(row["account"].(string), "account-"))
	}
}

func TestQueryOwnerSeesAccounts(t *testing.T) {
	e := newEnv(t)
	h := e.queryHandler("owner-key")

	body := map[string]any{
		"query":        "sort by roi",
		"conversation": []map[string]any{{"query": "top flips", "sql": "SELECT 1"}},
	}
	rec := post(t, h.Query, body, "X-API-Key", "owner-key")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode(t, rec)
	require.NotNil(t, resp.Result)
	assert.False(t, resp.Result.Masked)
	assert.Equal(t, "Zezima", resp.Result.Data[0]["account"])
	assert.True(t, e.legacy.last().IsOwner)
}

func TestQueryImpossible(t *testing.T) {
	e := newEnv(t)
	h := e.queryHandler()

	rec := post(t, h.Query, map[string]any{"query": "predict the price of abyssal whip next month"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode(t, rec)
	assert.Equal(t, query.OutcomeImpossible, resp.Outcome.Type)
	assert.NotEmpty(t, resp.Outcome.Alternatives)
	assert.Empty(t, resp.SQL)
	assert.Empty(t, e.hybrid.reqs)
	assert.Empty(t, e.legacy.reqs)
}

func TestQueryScreensInput(t *testing.T) {
	e := newEnv(t)
	h := e.queryHandler()

	tests := []struct {
		name  string
		query string
	}{
		{"empty", "   "},
		{"too long", strings.Repeat("profit ", 100)},
		{"credentials", "what is my bank pin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h.Query, map[string]any{"query": tt.query})
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Empty(t, e.hybrid.reqs)
	assert.Empty(t, e.legacy.reqs)
}

func TestQueryBadBody(t *testing.T) {
	e := newEnv(t)
	h := e.queryHandler()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.Query(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryFallbackEndpointFailure(t *testing.T) {
	e := newEnv(t)
	e.legacy.err = &query.EndpointError{Endpoint: "/api/generate-sql", StatusCode: 500, Message: "boom"}
	h := e.queryHandler()

	rec := post(t, h.Query, map[string]any{"query": "hello there"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	resp := decode(t, rec)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, query.OutcomeError, resp.Outcome.Type)
}

func TestQueryUninitialized(t *testing.T) {
	h := handler.NewQueryHandler(handler.QueryOptions{
		Processor: processor.New(processor.Options{Generator: &fakeGenerator{}}),
	})
	rec := post(t, h.Query, map[string]any{"query": "top flips"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestQueryRejectsUnsafeSQL(t *testing.T) {
	e := newEnv(t)
	e.hybrid.sql = "DELETE FROM flips"
	h := e.queryHandler()

	rec := post(t, h.Query, map[string]any{"query": "Show me my top 10 most profitable flips"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	res, err := e.db.Query(context.Background(), "SELECT count(*) FROM flips")
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Rows[0][0])
}

func TestClarifyThenConfirm(t *testing.T) {
	e := newEnv(t)
	h := e.queryHandler()

	rec := post(t, h.Query, map[string]any{"query": "weapon flips"})
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode(t, rec)
	require.Equal(t, query.OutcomeClarify, first.Outcome.Type)
	require.NotNil(t, first.Outcome.Context)

	rec = post(t, h.Clarify, map[string]any{"answer": "abyssal whip", "context": first.Outcome.Context})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decode(t, rec)
	require.Equal(t, query.OutcomeConfirm, second.Outcome.Type)
	require.NotNil(t, second.Outcome.Spec)
	assert.Equal(t, query.IntentItemAnalysis, second.Outcome.Spec.Intent)
	assert.Empty(t, e.hybrid.reqs)

	rec = post(t, h.Confirm, map[string]any{"spec": second.Outcome.Spec})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	third := decode(t, rec)
	assert.Equal(t, e.hybrid.sql, third.SQL)
	require.NotNil(t, third.Result)
	assert.Len(t, e.hybrid.reqs, 1)
}

func TestClarifyRequiresContext(t *testing.T) {
	e := newEnv(t)
	h := e.queryHandler()

	rec := post(t, h.Clarify, map[string]any{"answer": "whip"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfirmRevalidates(t *testing.T) {
	e := newEnv(t)
	h := e.queryHandler()

	spec := &query.Spec{Intent: query.IntentTopFlips, Confidence: 0.9}
	rec := post(t, h.Confirm, map[string]any{"spec": spec})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, e.hybrid.reqs)

	rec = post(t, h.Confirm, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateSQL(t *testing.T) {
	gen := &fakeGenerator{sql: "SELECT 1"}
	h := handler.NewGenerateHandler(gen, nil, nil, "")

	rec := post(t, h.Generate, sqlgen.Request{
		Query:            "total profit",
		StructuredPrompt: "INTENT: summary",
		IsHybridQuery:    true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp sqlgen.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "SELECT 1", resp.SQL)
	assert.Equal(t, "INTENT: summary", gen.last().StructuredPrompt)
}

func TestGenerateSQLErrors(t *testing.T) {
	tests := []struct {
		name string
		body sqlgen.Request
		err  error
		code int
	}{
		{"missing query", sqlgen.Request{}, nil, http.StatusBadRequest},
		{"hybrid without prompt", sqlgen.Request{Query: "x", IsHybridQuery: true}, nil, http.StatusBadRequest},
		{"no sql", sqlgen.Request{Query: "x"}, agent.ErrNoSQL, http.StatusUnprocessableEntity},
		{"unsafe", sqlgen.Request{Query: "x"}, agent.ErrUnsafeSQL, http.StatusUnprocessableEntity},
		{"timeout", sqlgen.Request{Query: "x"}, context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"upstream", sqlgen.Request{Query: "x"}, errors.New("model unavailable"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewGenerateHandler(&fakeGenerator{err: tt.err}, nil, nil, "")
			rec := post(t, h.Generate, tt.body)
			assert.Equal(t, tt.code, rec.Code)

			var resp sqlgen.Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestGenerateSQLBudget(t *testing.T) {
	gen := &fakeGenerator{sql: "SELECT 1"}
	tracker := security.NewCostTracker(1, clockwork.NewFakeClock())
	h := handler.NewGenerateHandler(gen, tracker, nil, "")

	body := sqlgen.Request{Query: "total profit"}
	assert.Equal(t, http.StatusOK, post(t, h.Generate, body, "X-API-Key", "k1").Code)
	assert.Equal(t, http.StatusTooManyRequests, post(t, h.Generate, body, "X-API-Key", "k1").Code)
	assert.Equal(t, http.StatusOK, post(t, h.Generate, body, "X-API-Key", "k2").Code)
}

func TestCapabilities(t *testing.T) {
	e := newEnv(t)
	h := handler.NewCapabilitiesHandler(e.proc)

	rec := httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/capabilities", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.CapabilitiesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "flips", resp.Capabilities.Schema.Table)
	assert.Equal(t, 1000, resp.Rules.Limits.LimitMax)

	rec = httptest.NewRecorder()
	handler.NewCapabilitiesHandler(processor.New(processor.Options{})).Get(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	mem := cache.NewMemory(time.Minute)
	defer mem.Close()

	rec := httptest.NewRecorder()
	handler.NewHealthHandler(e.proc, e.db, mem).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "ok", resp.Checks["executor"])
	assert.Equal(t, "ok", resp.Checks["cache"])

	rec = httptest.NewRecorder()
	handler.NewHealthHandler(processor.New(processor.Options{}), nil, nil).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
