package agent_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipdesk/flipquery/internal/agent"
	"github.com/flipdesk/flipquery/internal/capability"
	"github.com/flipdesk/flipquery/internal/executor"
	"github.com/flipdesk/flipquery/internal/query"
	"github.com/flipdesk/flipquery/internal/sqlgen"
	"github.com/flipdesk/flipquery/internal/tools"
)

type fakeCompleter struct {
	mu     sync.Mutex
	reply  string
	err    error
	system []string
	user   []string
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.system = append(f.system, system)
	f.user = append(f.user, user)
	return f.reply, f.err
}

type fakeRunner struct {
	res   agent.RunResult
	user  string
	tools []string
}

func (f *fakeRunner) Run(_ context.Context, _, user string, agentTools []tools.Tool) (agent.RunResult, error) {
	f.user = user
	f.tools = tools.Names(agentTools)
	return f.res, nil
}

type countingExecutor struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingExecutor) Query(_ context.Context, _ string) (*executor.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &executor.Result{Columns: []string{"item"}, Rows: [][]any{{"abyssal whip"}}}, nil
}

func (c *countingExecutor) Close() error { return nil }

func (c *countingExecutor) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func defaultSet(t *testing.T) *capability.Set {
	t.Helper()
	set, err := capability.Default()
	require.NoError(t, err)
	return set
}

func hybridRequest() sqlgen.Request {
	spec := &query.Spec{
		Intent:  query.IntentTopFlips,
		Metrics: []query.MetricSpec{{Metric: query.MetricProfit, Operation: query.OpSum}},
		Limit:   10,
	}
	tc := &query.TemporalContext{CurrentDate: "2024-03-13", DayName: "Wednesday", Timezone: "UTC"}
	return sqlgen.NewHybridRequest(spec, "total profit, top 10 by profit", tc)
}

func TestWriterHybrid(t *testing.T) {
	c := &fakeCompleter{reply: "```sql\nSELECT item, SUM(profit) AS profit FROM flips GROUP BY item ORDER BY profit DESC LIMIT 10\n```"}
	w := agent.NewSQLWriter(agent.WriterOptions{Completer: c, Set: defaultSet(t)})

	sql, err := w.Generate(context.Background(), hybridRequest())
	require.NoError(t, err)
	assert.Contains(t, sql, "LIMIT 10")

	require.Len(t, c.user, 1)
	assert.Contains(t, c.user[0], "INTENT: top_flips")
	assert.Contains(t, c.user[0], "Summary: total profit, top 10 by profit")
	assert.Contains(t, c.user[0], "TODAY: 2024-03-13")
	assert.Contains(t, c.system[0], "## Table: flips")
	assert.Contains(t, c.system[0], "profit (numeric)")
}

func TestWriterRejectsUnsafeSQL(t *testing.T) {
	c := &fakeCompleter{reply: "```sql\nDELETE FROM flips\n```"}
	w := agent.NewSQLWriter(agent.WriterOptions{Completer: c, Set: defaultSet(t)})

	_, err := w.Generate(context.Background(), hybridRequest())
	assert.ErrorIs(t, err, agent.ErrUnsafeSQL)
}

func TestWriterNoSQL(t *testing.T) {
	c := &fakeCompleter{reply: "I am not sure what you mean."}
	w := agent.NewSQLWriter(agent.WriterOptions{Completer: c, Set: defaultSet(t)})

	_, err := w.Generate(context.Background(), hybridRequest())
	assert.ErrorIs(t, err, agent.ErrNoSQL)
}

func TestWriterCompleterError(t *testing.T) {
	boom := errors.New("rate limited")
	w := agent.NewSQLWriter(agent.WriterOptions{Completer: &fakeCompleter{err: boom}, Set: defaultSet(t)})

	_, err := w.Generate(context.Background(), hybridRequest())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "hybrid generation")
}

func TestWriterLegacyUsesToolLoop(t *testing.T) {
	runner := &fakeRunner{res: agent.RunResult{
		Text:      "Here are your results.",
		ToolsUsed: []string{"execute_flips_sql"},
		LastSQL:   "SELECT item FROM flips ORDER BY roi DESC LIMIT 5",
	}}
	w := agent.NewSQLWriter(agent.WriterOptions{
		Completer: &fakeCompleter{},
		Runner:    runner,
		Executor:  &countingExecutor{},
		Set:       defaultSet(t),
	})

	conv := query.Conversation{{Query: "top 5 flips", SQL: "SELECT item FROM flips ORDER BY profit DESC LIMIT 5"}}
	req := sqlgen.NewLegacyRequest("sort by roi instead", conv, query.Caller{SessionID: "s"}, nil)

	sql, err := w.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, runner.res.LastSQL, sql)
	assert.Equal(t, []string{"get_flips_schema", "get_flips_sample_data", "execute_flips_sql"}, runner.tools)
	assert.Contains(t, runner.user, "Question: sort by roi instead")
	assert.Contains(t, runner.user, "Previous SQL:\nSELECT item FROM flips ORDER BY profit DESC LIMIT 5")
}

func TestWriterLegacyWithoutRunner(t *testing.T) {
	c := &fakeCompleter{reply: "SELECT COUNT(*) FROM flips"}
	w := agent.NewSQLWriter(agent.WriterOptions{Completer: c, Set: defaultSet(t)})

	sql, err := w.Generate(context.Background(), sqlgen.NewLegacyRequest("how many flips", nil, query.Caller{}, nil))
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM flips", sql)
	assert.Equal(t, "Question: how many flips", c.user[0])
}

func TestWriterCachesSchemaPrompt(t *testing.T) {
	exec := &countingExecutor{}
	c := &fakeCompleter{reply: "```sql\nSELECT 1 FROM flips\n```"}
	w := agent.NewSQLWriter(agent.WriterOptions{Completer: c, Executor: exec, Set: defaultSet(t)})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.Generate(ctx, hybridRequest())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, exec.count())
	assert.Contains(t, c.system[0], "abyssal whip")

	w.InvalidateSchema()
	_, err := w.Generate(ctx, hybridRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, exec.count())
}

func TestWriterDoesNotCacheFailedSamples(t *testing.T) {
	exec := &countingExecutor{err: errors.New("database is locked")}
	c := &fakeCompleter{reply: "```sql\nSELECT 1 FROM flips\n```"}
	w := agent.NewSQLWriter(agent.WriterOptions{Completer: c, Executor: exec, Set: defaultSet(t)})

	for i := 0; i < 2; i++ {
		_, err := w.Generate(context.Background(), hybridRequest())
		require.NoError(t, err)
	}
	assert.Equal(t, 2, exec.count())
	assert.NotContains(t, c.system[0], "Sample rows")
}
