package capability_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipdesk/flipquery/internal/capability"
)

func TestDefaultSetLoads(t *testing.T) {
	set, err := capability.Default()
	require.NoError(t, err)

	assert.Equal(t, "flips", set.Capabilities.Schema.Table)
	assert.Equal(t, 365, set.Rules.Limits.TimeRangeMaxDays)
	assert.InDelta(t, 0.65, set.Rules.Limits.ConfirmConfidence, 1e-9)
	assert.InDelta(t, 0.1, set.Rules.ClarificationConfidenceBoost, 1e-9)
	assert.Equal(t, 400, set.Rules.Fallback.MaxLocalQueryLength)

	col, ok := set.Column("item")
	require.True(t, ok)
	assert.Equal(t, capability.TypeText, col.Type)
	assert.True(t, col.Fuzzy)
}

func TestLoadYAMLRules(t *testing.T) {
	dir := t.TempDir()
	rules := `
limits:
  max_query_length: 500
  time_range_max_days: 90
  limit_max: 50
  min_confidence: 0.2
  confirm_confidence: 0.7
  max_dimensions: 2
  max_filters: 2
  max_metrics: 3
valid_time_presets: [last_7d]
valid_metrics: [profit]
valid_operations: [sum]
valid_dimensions: [item]
valid_filter_operators: ["="]
clarification_confidence_boost: 0.2
fallback:
  max_local_query_length: 300
  short_refinement_length: 40
`
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rules), 0o600))

	set, err := capability.NewFileLoader("", path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 90, set.Rules.Limits.TimeRangeMaxDays)
	assert.Equal(t, 300, set.Rules.Fallback.MaxLocalQueryLength)
	assert.Equal(t, []string{"profit"}, set.Rules.ValidMetrics)
}

func TestLoadRejectsMalformedDocuments(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"limits": `},
		{"unknown field", `{"limits": {}, "surprise": true}`},
		{"zero bounds", `{"limits": {"max_query_length": 500}, "valid_metrics": ["profit"], "valid_operations": ["sum"], "valid_filter_operators": ["="]}`},
		{"unknown condition", `{
			"limits": {"time_range_max_days": 30, "limit_max": 10, "min_confidence": 0.3, "confirm_confidence": 0.6, "max_dimensions": 1, "max_filters": 1},
			"valid_metrics": ["profit"], "valid_operations": ["sum"], "valid_filter_operators": ["="],
			"clarification_triggers": [{"condition": "moon_phase", "question": "?"}],
			"fallback": {"max_local_query_length": 400, "short_refinement_length": 50}
		}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))
			_, err := capability.NewFileLoader("", path).Load(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := capability.NewFileLoader("/nonexistent/capabilities.json", "").Load(context.Background())
	assert.Error(t, err)
}
