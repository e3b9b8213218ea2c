// Package tools defines the functions the SQL-writing model may call while
// it drafts a query against the flips table.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool represents a callable function the LLM can invoke
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	Execute     func(ctx context.Context, input map[string]interface{}) (string, error)
}

// Find returns the tool called name.
func Find(set []Tool, name string) (Tool, bool) {
	for _, t := range set {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// Names lists the tool names in order.
func Names(set []Tool) []string {
	out := make([]string, len(set))
	for i, t := range set {
		out[i] = t.Name
	}
	return out
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(b), nil
}

func intInput(input map[string]interface{}, key string, def, lo, hi int) int {
	// JSON numbers decode as float64.
	v, ok := input[key].(float64)
	if !ok {
		return def
	}
	n := int(v)
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
