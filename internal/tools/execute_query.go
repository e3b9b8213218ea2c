package tools

import (
	"context"
	"fmt"

	"github.com/flipdesk/flipquery/internal/executor"
	"github.com/flipdesk/flipquery/internal/security"
)

const maxToolRows = 50

// ExecuteQueryTool runs a validated SELECT so the model can check its draft.
func ExecuteQueryTool(exec executor.Executor, validator *security.SQLValidator) Tool {
	return Tool{
		Name:        "execute_flips_sql",
		Description: "Execute a SQL SELECT query on the flips table and return the results. Only SELECT queries are allowed.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"sql": map[string]interface{}{
					"type":        "string",
					"description": "The SQL SELECT query to execute",
				},
			},
			"required": []string{"sql"},
		},
		Execute: func(ctx context.Context, input map[string]interface{}) (string, error) {
			sql, _ := input["sql"].(string)
			if sql == "" {
				return "", fmt.Errorf("sql is required")
			}
			if msg := validator.Validate(sql); msg != "" {
				return "", fmt.Errorf("sql rejected: %s", msg)
			}

			res, err := exec.Query(ctx, sql)
			if err != nil {
				return "", fmt.Errorf("execute query: %w", err)
			}

			records := res.Records()
			truncated := res.Truncated
			if len(records) > maxToolRows {
				records = records[:maxToolRows]
				truncated = true
			}
			return toJSON(map[string]interface{}{
				"row_count": len(res.Rows),
				"columns":   res.Columns,
				"data":      records,
				"truncated": truncated,
			})
		},
	}
}
