package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/flipdesk/flipquery/internal/executor"
)

// SampleDataTool returns a few rows of the flips table.
func SampleDataTool(exec executor.Executor, table string) Tool {
	return Tool{
		Name:        "get_flips_sample_data",
		Description: "Get sample rows from the flips table to see real item names and value formats.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Number of rows to return (1-10, default 5)",
				},
			},
		},
		Execute: func(ctx context.Context, input map[string]interface{}) (string, error) {
			limit := intInput(input, "limit", 5, 1, 10)
			sql := fmt.Sprintf(`SELECT * FROM "%s" LIMIT %d`, strings.ReplaceAll(table, `"`, `""`), limit)

			res, err := exec.Query(ctx, sql)
			if err != nil {
				return "", fmt.Errorf("sample data: %w", err)
			}
			return toJSON(map[string]interface{}{
				"columns": res.Columns,
				"data":    res.Records(),
			})
		},
	}
}
