package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Environment string `json:"environment"`
	APIPrefix   string `json:"api_prefix"`
	LogLevel    string `json:"log_level"`

	// CORS
	CORSOrigins []string `json:"cors_origins"`

	// Auth
	APIKeyHeader string   `json:"api_key_header"`
	APIKeys      []string `json:"api_keys"`
	EnableAuth   bool     `json:"enable_auth"`
	// OwnerAPIKeys see unmasked account columns. Empty means every caller
	// owns the data.
	OwnerAPIKeys []string `json:"owner_api_keys"`

	// Rate Limiting
	RateLimitPerMinute int `json:"rate_limit_per_minute"`

	// Capability documents; empty paths use the embedded defaults.
	CapabilitiesPath    string `json:"capabilities_path"`
	ValidationRulesPath string `json:"validation_rules_path"`
	Timezone            string `json:"timezone"`

	// SQL generation. With SQLGenURL set the pipeline calls a remote
	// endpoint, otherwise it uses the in-process LLM writer.
	SQLGenURL     string        `json:"sqlgen_url"`
	SQLGenAPIKey  string        `json:"sqlgen_api_key"`
	SQLGenTimeout time.Duration `json:"sqlgen_timeout"`
	SQLCacheTTL   time.Duration `json:"sql_cache_ttl"`
	SchemaTTL     time.Duration `json:"schema_ttl"`

	// Executor
	ExecutorBackend string `json:"executor_backend"` // duckdb | postgres | none
	DuckDBPath      string `json:"duckdb_path"`
	FlipsCSV        string `json:"flips_csv"`
	PostgresURL     string `json:"postgres_url"`
	MaxRows         int    `json:"max_rows"`

	// Cache
	CacheBackend  string `json:"cache_backend"` // memory | redis
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	// Security
	MaxQueryLength       int      `json:"max_query_length"`
	MaxGenerationsPerDay int      `json:"max_generations_per_day"`
	EnableDataMasking    bool     `json:"enable_data_masking"`
	EnablePIIDetection   bool     `json:"enable_pii_detection"`
	SensitiveColumns     []string `json:"sensitive_columns"`
	PIIKeywords          []string `json:"pii_keywords"`
	EnableAuditLogging   bool     `json:"enable_audit_logging"`

	// AI / LLM
	LLMProvider      string            `json:"llm_provider"` // anthropic | openai
	AnthropicAPIKey  string            `json:"anthropic_api_key"`
	AnthropicBaseURL string            `json:"anthropic_base_url"` // override for a custom proxy
	OpenAIAPIKey     string            `json:"openai_api_key"`
	OpenAIBaseURL    string            `json:"openai_base_url"`
	LLMMaxTokens     int               `json:"llm_max_tokens"`
	ModelList        map[string]string `json:"model_list"` // provider -> model ID
}

func Load() (*Config, error) {
	cfg := &Config{
		Host:                 DefaultHost,
		Port:                 DefaultPort,
		Environment:          DefaultEnvironment,
		APIPrefix:            DefaultAPIPrefix,
		LogLevel:             DefaultLogLevel,
		CORSOrigins:          DefaultCORSOrigins,
		APIKeyHeader:         "X-API-Key",
		EnableAuth:           true,
		RateLimitPerMinute:   DefaultRateLimitPerMinute,
		Timezone:             DefaultTimezone,
		SQLGenTimeout:        DefaultSQLGenTimeout,
		SQLCacheTTL:          DefaultSQLCacheTTL,
		SchemaTTL:            DefaultSchemaTTL,
		ExecutorBackend:      DefaultExecutorBackend,
		MaxRows:              DefaultMaxRows,
		CacheBackend:         DefaultCacheBackend,
		MaxQueryLength:       DefaultMaxQueryLength,
		MaxGenerationsPerDay: DefaultMaxGenerationsPerDay,
		EnableDataMasking:    true,
		EnablePIIDetection:   true,
		SensitiveColumns:     DefaultSensitiveColumns,
		EnableAuditLogging:   true,
		LLMProvider:          DefaultLLMProvider,
		LLMMaxTokens:         DefaultLLMMaxTokens,
		ModelList: map[string]string{
			"anthropic": DefaultAnthropicModel,
			"openai":    DefaultOpenAIModel,
		},
	}

	// Load from JSON config file if specified
	if path := getEnv("FLIPQUERY_CONFIG", ""); path != "" {
		if err := loadJSON(path, cfg); err != nil {
			return nil, err
		}
	}

	// Environment overrides
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Model returns the configured model for provider.
func (c *Config) Model(provider string) string {
	if m := c.ModelList[provider]; m != "" {
		return m
	}
	if provider == "openai" {
		return DefaultOpenAIModel
	}
	return DefaultAnthropicModel
}

// IsDevelopment reports whether human-readable console logging is wanted.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func loadJSON(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := getEnv("FLIPQUERY_HOST", ""); v != "" {
		cfg.Host = v
	}
	if v := getEnv("FLIPQUERY_PORT", ""); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := getEnv("FLIPQUERY_ENV", ""); v != "" {
		cfg.Environment = v
	}
	if v := getEnv("FLIPQUERY_LOG_LEVEL", ""); v != "" {
		cfg.LogLevel = v
	}
	if v := getEnv("FLIPQUERY_API_KEYS", ""); v != "" {
		cfg.APIKeys = splitList(v)
	}
	if v := getEnv("FLIPQUERY_OWNER_KEYS", ""); v != "" {
		cfg.OwnerAPIKeys = splitList(v)
	}
	if v := getEnv("ANTHROPIC_API_KEY", ""); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := getEnv("ANTHROPIC_BASE_URL", ""); v != "" {
		cfg.AnthropicBaseURL = v
	}
	if v := getEnv("OPENAI_API_KEY", ""); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := getEnv("OPENAI_BASE_URL", ""); v != "" {
		cfg.OpenAIBaseURL = v
	}
	if v := getEnv("LLM_PROVIDER", ""); v != "" {
		cfg.LLMProvider = strings.ToLower(v)
	}
	if v := getEnv("SQLGEN_URL", ""); v != "" {
		cfg.SQLGenURL = v
	}
	if v := getEnv("SQLGEN_API_KEY", ""); v != "" {
		cfg.SQLGenAPIKey = v
	}
	if v := getEnv("SQLGEN_TIMEOUT", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SQLGEN_TIMEOUT: %w", err)
		}
		cfg.SQLGenTimeout = d
	}
	if v := getEnv("SQL_CACHE_TTL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SQL_CACHE_TTL: %w", err)
		}
		cfg.SQLCacheTTL = d
	}
	if v := getEnv("CAPABILITIES_PATH", ""); v != "" {
		cfg.CapabilitiesPath = v
	}
	if v := getEnv("VALIDATION_RULES_PATH", ""); v != "" {
		cfg.ValidationRulesPath = v
	}
	if v := getEnv("EXECUTOR_BACKEND", ""); v != "" {
		cfg.ExecutorBackend = strings.ToLower(v)
	}
	if v := getEnv("DUCKDB_PATH", ""); v != "" {
		cfg.DuckDBPath = v
	}
	if v := getEnv("FLIPS_CSV", ""); v != "" {
		cfg.FlipsCSV = v
	}
	if v := getEnv("POSTGRES_URL", ""); v != "" {
		cfg.PostgresURL = v
	}
	if v := getEnv("CACHE_BACKEND", ""); v != "" {
		cfg.CacheBackend = strings.ToLower(v)
	}
	if v := getEnv("REDIS_ADDR", ""); v != "" {
		cfg.RedisAddr = v
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		cfg.RedisPassword = v
	}
	if v := getEnv("TIMEZONE", ""); v != "" {
		cfg.Timezone = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		if r, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitPerMinute = r
		}
	}
	if v := getEnv("ENABLE_AUTH", ""); v != "" {
		cfg.EnableAuth = v == "true" || v == "1"
	}
	if v := getEnv("MAX_GENERATIONS_PER_DAY", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxGenerationsPerDay = n
		}
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
