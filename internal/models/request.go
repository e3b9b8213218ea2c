package models

import (
	"strings"

	"github.com/flipdesk/flipquery/internal/query"
)

// QueryRequest for POST /api/v1/query
type QueryRequest struct {
	Query        string             `json:"query"`
	Conversation query.Conversation `json:"conversation,omitempty"`
	SessionID    string             `json:"sessionId,omitempty"`
	// Execute runs generated SQL locally; nil means true.
	Execute *bool `json:"execute,omitempty"`
}

func (r *QueryRequest) SetDefaults() {
	r.Query = strings.TrimSpace(r.Query)
	if r.Execute == nil {
		t := true
		r.Execute = &t
	}
}

// ClarifyRequest for POST /api/v1/query/clarify
type ClarifyRequest struct {
	Answer    string                      `json:"answer"`
	Context   *query.ClarificationContext `json:"context"`
	SessionID string                      `json:"sessionId,omitempty"`
}

// ConfirmRequest for POST /api/v1/query/confirm
type ConfirmRequest struct {
	Spec            *query.Spec            `json:"spec"`
	SessionID       string                 `json:"sessionId,omitempty"`
	TemporalContext *query.TemporalContext `json:"temporalContext,omitempty"`
	Execute         *bool                  `json:"execute,omitempty"`
}

func (r *ConfirmRequest) SetDefaults() {
	if r.Execute == nil {
		t := true
		r.Execute = &t
	}
}
