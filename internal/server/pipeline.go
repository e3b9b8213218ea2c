package server

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/flipdesk/flipquery/internal/agent"
	"github.com/flipdesk/flipquery/internal/cache"
	"github.com/flipdesk/flipquery/internal/capability"
	"github.com/flipdesk/flipquery/internal/config"
	"github.com/flipdesk/flipquery/internal/executor"
	"github.com/flipdesk/flipquery/internal/processor"
	"github.com/flipdesk/flipquery/internal/security"
	"github.com/flipdesk/flipquery/internal/sqlgen"
	"github.com/flipdesk/flipquery/internal/temporal"
)

// Pipeline holds the long-lived collaborators shared by the HTTP server and
// the CLI. Writer is nil when no LLM provider is configured; Executor is nil
// when the executor backend is "none".
type Pipeline struct {
	Set       *capability.Set
	Processor *processor.Processor
	Executor  executor.Executor
	Cache     cache.Cache
	Writer    *agent.SQLWriter
	SQLVal    *security.SQLValidator

	closers []func()
}

// NewPipeline loads the capability documents and wires executor, cache,
// SQL generation and the processor from cfg.
func NewPipeline(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	set, err := capability.NewFileLoader(cfg.CapabilitiesPath, cfg.ValidationRulesPath).Load(ctx)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		Set:    set,
		SQLVal: security.NewSQLValidator(set.Capabilities.ForbiddenOperations),
	}

	if err := p.openExecutor(ctx, cfg); err != nil {
		p.Close()
		return nil, err
	}
	if err := p.openCache(ctx, cfg); err != nil {
		p.Close()
		return nil, err
	}
	if err := p.openWriter(cfg); err != nil {
		p.Close()
		return nil, err
	}

	var remote sqlgen.Generator
	switch {
	case cfg.SQLGenURL != "":
		remote = sqlgen.NewClient(cfg.SQLGenURL, sqlgen.ClientOptions{
			Timeout: cfg.SQLGenTimeout,
			APIKey:  cfg.SQLGenAPIKey,
		})
	case p.Writer != nil:
		remote = p.Writer
	default:
		log.Warn().Msg("no SQLGEN_URL and no LLM key configured - SQL generation disabled")
	}

	src, err := temporal.NewSource(nil, cfg.Timezone)
	if err != nil {
		p.Close()
		return nil, err
	}

	opts := processor.Options{
		Loader:     capability.Static(set),
		Temporal:   src,
		SQLTimeout: cfg.SQLGenTimeout,
	}
	if remote != nil {
		opts.Generator = sqlgen.NewCached(remote, p.Cache, cfg.SQLCacheTTL)
	}
	p.Processor = processor.New(opts)
	if err := p.Processor.Initialize(ctx); err != nil {
		p.Close()
		return nil, err
	}

	log.Info().
		Str("executor", cfg.ExecutorBackend).
		Str("cache", cfg.CacheBackend).
		Bool("remote_sqlgen", cfg.SQLGenURL != "").
		Bool("local_writer", p.Writer != nil).
		Msg("pipeline ready")
	return p, nil
}

func (p *Pipeline) openExecutor(ctx context.Context, cfg *config.Config) error {
	switch cfg.ExecutorBackend {
	case "duckdb":
		db, err := executor.OpenDuckDB(ctx, executor.DuckDBOptions{
			Path:     cfg.DuckDBPath,
			FlipsCSV: cfg.FlipsCSV,
			Table:    p.Set.Capabilities.Schema.Table,
			MaxRows:  cfg.MaxRows,
		})
		if err != nil {
			return err
		}
		p.Executor = db
	case "postgres":
		if cfg.PostgresURL == "" {
			return fmt.Errorf("executor backend postgres requires POSTGRES_URL")
		}
		pg, err := executor.OpenPostgres(ctx, cfg.PostgresURL, cfg.MaxRows)
		if err != nil {
			return err
		}
		p.Executor = pg
	case "none", "":
		return nil
	default:
		return fmt.Errorf("unknown executor backend %q", cfg.ExecutorBackend)
	}

	exec := p.Executor
	p.closers = append(p.closers, func() {
		if err := exec.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing executor")
		}
	})
	return nil
}

func (p *Pipeline) openCache(ctx context.Context, cfg *config.Config) error {
	switch cfg.CacheBackend {
	case "redis":
		if cfg.RedisAddr == "" {
			return fmt.Errorf("cache backend redis requires REDIS_ADDR")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return fmt.Errorf("ping redis: %w", err)
		}
		rc, err := cache.NewRedis(client, cfg.SQLCacheTTL)
		if err != nil {
			client.Close()
			return err
		}
		p.Cache = rc
		p.closers = append(p.closers, func() { client.Close() })
	case "memory", "":
		mem := cache.NewMemory(cfg.SQLCacheTTL)
		p.Cache = mem
		p.closers = append(p.closers, mem.Close)
	default:
		return fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
	return nil
}

func (p *Pipeline) openWriter(cfg *config.Config) error {
	opts := agent.WriterOptions{
		Set:       p.Set,
		Executor:  p.Executor,
		Validator: p.SQLVal,
		SchemaTTL: cfg.SchemaTTL,
	}
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Warn().Msg("OPENAI_API_KEY not set - SQL writer disabled")
			return nil
		}
		llm, err := agent.NewOpenAI(cfg.OpenAIAPIKey, cfg.Model("openai"), cfg.OpenAIBaseURL, cfg.LLMMaxTokens)
		if err != nil {
			return err
		}
		opts.Completer = llm
	case "anthropic", "":
		if cfg.AnthropicAPIKey == "" {
			log.Warn().Msg("ANTHROPIC_API_KEY not set - SQL writer disabled")
			return nil
		}
		llm := agent.NewAnthropic(cfg.AnthropicAPIKey, cfg.Model("anthropic"), cfg.AnthropicBaseURL, cfg.LLMMaxTokens)
		opts.Completer = llm
		opts.Runner = llm
	default:
		return fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
	p.Writer = agent.NewSQLWriter(opts)
	return nil
}

// Close releases the executor and cache in reverse order of opening.
func (p *Pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
	p.closers = nil
}
