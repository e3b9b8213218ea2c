package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/flipdesk/flipquery/internal/capability"
)

// SchemaText renders the flips schema one column per line.
func SchemaText(set *capability.Set) string {
	cols := set.Capabilities.Schema.Columns
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		c := cols[name]
		fmt.Fprintf(&sb, "  - %s (%s)", name, c.Type)
		var tags []string
		if c.Derived {
			tags = append(tags, "derived")
		}
		if c.Aggregatable {
			tags = append(tags, "aggregatable")
		}
		if c.Fuzzy {
			tags = append(tags, "fuzzy match")
		}
		if len(tags) > 0 {
			sb.WriteString(" [" + strings.Join(tags, ", ") + "]")
		}
		if c.Description != "" {
			sb.WriteString(": " + c.Description)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// GetSchemaTool describes the flips table.
func GetSchemaTool(set *capability.Set) Tool {
	return Tool{
		Name:        "get_flips_schema",
		Description: "Get the columns and types of the flips table. Use this before writing SQL to understand the table structure.",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
		Execute: func(ctx context.Context, _ map[string]interface{}) (string, error) {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			return fmt.Sprintf("Table: %s\nEngine: %s\nSchema:\n%s",
				set.Capabilities.Schema.Table, set.Capabilities.Engine, SchemaText(set)), nil
		},
	}
}
