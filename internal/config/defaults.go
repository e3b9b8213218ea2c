package config

import "time"

const (
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8000
	DefaultEnvironment = "development"
	DefaultAPIPrefix   = "/api/v1"
	DefaultLogLevel    = "info"

	DefaultRateLimitPerMinute = 60

	DefaultLLMProvider    = "anthropic"
	DefaultAnthropicModel = "claude-sonnet-4-6"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultLLMMaxTokens   = 2048

	DefaultSQLGenTimeout = 30 * time.Second
	DefaultSQLCacheTTL   = 10 * time.Minute
	DefaultSchemaTTL     = 5 * time.Minute

	DefaultExecutorBackend = "duckdb"
	DefaultMaxRows         = 1000
	DefaultCacheBackend    = "memory"
	DefaultTimezone        = "UTC"

	// 0 disables the per-key daily generation budget.
	DefaultMaxGenerationsPerDay = 500

	DefaultMaxQueryLength = 500
)

var DefaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

var DefaultSensitiveColumns = []string{"account"}
