package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "sql fence",
			in:   "Here you go:\n```sql\nSELECT item FROM flips LIMIT 10;\n```\nDone.",
			want: "SELECT item FROM flips LIMIT 10",
		},
		{
			name: "upper fence",
			in:   "```SQL\nSELECT 1 FROM flips\n```",
			want: "SELECT 1 FROM flips",
		},
		{
			name: "generic fence with tag",
			in:   "```duckdb\nWITH t AS (SELECT * FROM flips) SELECT * FROM t\n```",
			want: "WITH t AS (SELECT * FROM flips) SELECT * FROM t",
		},
		{
			name: "bare statement",
			in:   "The query is SELECT item, SUM(profit) FROM flips GROUP BY item LIMIT 5 and it works.",
			want: "SELECT item, SUM(profit) FROM flips GROUP BY item LIMIT 5",
		},
		{
			name: "nothing",
			in:   "I cannot answer that.",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractSQL(tt.in))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}
