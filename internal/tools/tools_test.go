package tools_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipdesk/flipquery/internal/capability"
	"github.com/flipdesk/flipquery/internal/executor"
	"github.com/flipdesk/flipquery/internal/security"
	"github.com/flipdesk/flipquery/internal/tools"
)

func openFlips(t *testing.T) *executor.DuckDB {
	t.Helper()
	ctx := context.Background()
	db, err := executor.OpenDuckDB(ctx, executor.DuckDBOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Exec(ctx, `CREATE TABLE flips (item VARCHAR, profit BIGINT, account VARCHAR)`))
	require.NoError(t, db.Exec(ctx, `INSERT INTO flips VALUES
		('abyssal whip', 120000, 'main'),
		('dragon bones', 4000, 'alt'),
		('nature rune', 800, 'main')`))
	return db
}

func TestGetSchemaTool(t *testing.T) {
	set, err := capability.Default()
	require.NoError(t, err)

	out, err := tools.GetSchemaTool(set).Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Table: "+set.Capabilities.Schema.Table)
	assert.Contains(t, out, "profit (numeric)")
	assert.Contains(t, out, "item (text)")
}

func TestSampleDataTool(t *testing.T) {
	db := openFlips(t)
	tool := tools.SampleDataTool(db, "flips")

	out, err := tool.Execute(context.Background(), map[string]interface{}{"limit": float64(2)})
	require.NoError(t, err)

	var got struct {
		Columns []string         `json:"columns"`
		Data    []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{"item", "profit", "account"}, got.Columns)
	assert.Len(t, got.Data, 2)
}

func TestExecuteQueryTool(t *testing.T) {
	db := openFlips(t)
	tool := tools.ExecuteQueryTool(db, security.NewSQLValidator([]string{"DROP", "DELETE"}))
	ctx := context.Background()

	out, err := tool.Execute(ctx, map[string]interface{}{"sql": "SELECT item FROM flips WHERE profit > 1000 ORDER BY profit DESC"})
	require.NoError(t, err)
	assert.Contains(t, out, `"row_count":2`)
	assert.Contains(t, out, "abyssal whip")

	_, err = tool.Execute(ctx, map[string]interface{}{"sql": "DROP TABLE flips"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")

	_, err = tool.Execute(ctx, map[string]interface{}{})
	require.Error(t, err)
}

func TestFind(t *testing.T) {
	set, err := capability.Default()
	require.NoError(t, err)
	all := []tools.Tool{tools.GetSchemaTool(set)}

	got, ok := tools.Find(all, "get_flips_schema")
	require.True(t, ok)
	assert.Equal(t, "get_flips_schema", got.Name)

	_, ok = tools.Find(all, "list_tables")
	assert.False(t, ok)
	assert.Equal(t, []string{"get_flips_schema"}, tools.Names(all))
}
