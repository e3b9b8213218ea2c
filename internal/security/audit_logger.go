package security

import (
	"github.com/rs/zerolog/log"
)

// AuditLogger logs security-relevant events with hashed identifiers
type AuditLogger struct {
	enabled bool
}

func NewAuditLogger(enabled bool) *AuditLogger {
	return &AuditLogger{enabled: enabled}
}

// LogOutcome records the terminal outcome of a structured query.
func (a *AuditLogger) LogOutcome(question, apiKey, outcome, intent string, confidence float64) {
	if !a.enabled {
		return
	}
	log.Info().
		Str("event", "query_outcome").
		Str("question_hash", hashStr(question)[:16]).
		Str("api_key_hash", hashStr(apiKey)[:16]).
		Str("outcome", outcome).
		Str("intent", intent).
		Float64("confidence", confidence).
		Msg("audit")
}

// LogGeneration records a SQL generation request. path is "hybrid" or "legacy".
func (a *AuditLogger) LogGeneration(
	path, prompt, apiKey, generatedSQL string,
	validationPassed, cached bool,
	executionTimeMs int64,
) {
	if !a.enabled {
		return
	}
	sqlHash := ""
	if generatedSQL != "" {
		sqlHash = hashStr(generatedSQL)[:16]
	}

	log.Info().
		Str("event", "generation_audit").
		Str("path", path).
		Str("prompt_hash", hashStr(prompt)[:16]).
		Str("api_key_hash", hashStr(apiKey)[:16]).
		Str("sql_hash", sqlHash).
		Bool("validation_passed", validationPassed).
		Bool("cached", cached).
		Int64("execution_time_ms", executionTimeMs).
		Msg("generation audit")
}

// LogQuery records execution of generated SQL against the flip store.
func (a *AuditLogger) LogQuery(sql, sessionID string, executionTimeMs int64, rowCount int, success bool, errMsg string) {
	if !a.enabled {
		return
	}
	evt := log.Info().
		Str("event", "query_audit").
		Str("sql_hash", hashStr(sql)[:16]).
		Str("session_hash", hashStr(sessionID)[:16]).
		Int64("execution_time_ms", executionTimeMs).
		Int("row_count", rowCount).
		Bool("success", success)

	if errMsg != "" {
		evt = evt.Str("error", errMsg)
	}
	evt.Msg("audit")
}
