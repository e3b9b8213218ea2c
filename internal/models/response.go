package models

import (
	"github.com/flipdesk/flipquery/internal/capability"
	"github.com/flipdesk/flipquery/internal/query"
)

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// ResultSet is the local execution result of generated SQL.
type ResultSet struct {
	Columns         []string                 `json:"columns"`
	Data            []map[string]interface{} `json:"data"`
	RowCount        int                      `json:"row_count"`
	Truncated       bool                     `json:"truncated,omitempty"`
	Masked          bool                     `json:"masked,omitempty"`
	ExecutionTimeMs int64                    `json:"execution_time_ms"`
}

// QueryResponse is returned by the query, clarify and confirm endpoints.
// Outcome is the pipeline's terminal result; SQL and Result are present
// when SQL was generated and executed.
type QueryResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message,omitempty"`
	Outcome query.Outcome `json:"outcome"`
	SQL     string        `json:"sql,omitempty"`
	Result  *ResultSet    `json:"result,omitempty"`
}

// CapabilitiesResponse is returned by GET /api/v1/capabilities
type CapabilitiesResponse struct {
	Capabilities capability.Capabilities    `json:"capabilities"`
	Rules        capability.ValidationRules `json:"validation_rules"`
}
