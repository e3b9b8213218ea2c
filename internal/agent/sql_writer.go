package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/flipdesk/flipquery/internal/capability"
	"github.com/flipdesk/flipquery/internal/executor"
	"github.com/flipdesk/flipquery/internal/security"
	"github.com/flipdesk/flipquery/internal/sqlgen"
	"github.com/flipdesk/flipquery/internal/tools"
)

const (
	defaultSchemaTTL = 5 * time.Minute
	sampleRows       = 3
)

var (
	// ErrNoSQL means the model reply contained no recognizable statement.
	ErrNoSQL = errors.New("model reply contained no SQL")
	// ErrUnsafeSQL means the generated statement failed the SQL validator.
	ErrUnsafeSQL = errors.New("generated SQL rejected")
)

const baseSystemPrompt = `You write DuckDB SQL over a single table of Old School RuneScape Grand Exchange flips.

RULES:
1. Generate exactly one SELECT (or WITH ... SELECT) statement. Never INSERT, UPDATE, DELETE, DROP or DDL.
2. Only use the columns listed below.
3. Always add a LIMIT clause (max 1000 rows) unless the request gives one.
4. Item filters with "contains" use ILIKE '%value%'.
5. Resolve relative dates with the TODAY and RECENT DAYS lines, never with the database clock.
6. ALWAYS wrap your final SQL in a code block exactly like this:
` + "```sql" + `
SELECT ...
` + "```"

// WriterOptions wires an SQLWriter. Runner and Executor are optional: with
// both set, legacy requests may inspect the table through tools.
type WriterOptions struct {
	Completer Completer
	Runner    ToolRunner
	Set       *capability.Set
	Executor  executor.Executor
	Validator *security.SQLValidator
	SchemaTTL time.Duration
}

// SQLWriter serves POST /api/generate-sql. It implements sqlgen.Generator.
type SQLWriter struct {
	opts   WriterOptions
	schema *ttlcache.Cache[string, string]
	sf     singleflight.Group
}

// NewSQLWriter returns a writer. A nil Validator forbids the capability
// set's forbidden operations.
func NewSQLWriter(opts WriterOptions) *SQLWriter {
	if opts.SchemaTTL <= 0 {
		opts.SchemaTTL = defaultSchemaTTL
	}
	if opts.Validator == nil {
		opts.Validator = security.NewSQLValidator(opts.Set.Capabilities.ForbiddenOperations)
	}
	return &SQLWriter{
		opts: opts,
		schema: ttlcache.New(
			ttlcache.WithTTL[string, string](opts.SchemaTTL),
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
	}
}

// Generate produces validated SQL for either request path.
func (w *SQLWriter) Generate(ctx context.Context, req sqlgen.Request) (string, error) {
	start := time.Now()
	system := w.systemPrompt(ctx)

	var (
		output  string
		lastSQL string
		err     error
	)
	switch {
	case req.IsHybridQuery:
		output, err = w.opts.Completer.Complete(ctx, system, hybridPrompt(req))
	case w.opts.Runner != nil && w.opts.Executor != nil:
		var res RunResult
		res, err = w.opts.Runner.Run(ctx, system, legacyPrompt(req), w.tools())
		output, lastSQL = res.Text, res.LastSQL
		if len(res.ToolsUsed) > 0 {
			log.Debug().Strs("tools", res.ToolsUsed).Msg("legacy generation used tools")
		}
	default:
		output, err = w.opts.Completer.Complete(ctx, system, legacyPrompt(req))
	}
	if err != nil {
		return "", fmt.Errorf("%s generation: %w", req.Path(), err)
	}

	sql := extractSQL(output)
	if sql == "" && lastSQL != "" {
		sql = lastSQL
		log.Debug().Str("sql", truncate(sql, 60)).Msg("using last executed SQL as fallback")
	}
	if sql == "" {
		log.Warn().Str("path", req.Path()).Str("reply", truncate(output, 200)).Msg("no SQL in model reply")
		return "", ErrNoSQL
	}

	if msg := w.opts.Validator.Validate(sql); msg != "" {
		log.Warn().Str("path", req.Path()).Str("reason", msg).Msg("generated SQL rejected")
		return "", fmt.Errorf("%w: %s", ErrUnsafeSQL, msg)
	}

	log.Info().
		Str("path", req.Path()).
		Dur("duration", time.Since(start)).
		Msg("sql written")
	return sql, nil
}

func (w *SQLWriter) tools() []tools.Tool {
	return []tools.Tool{
		tools.GetSchemaTool(w.opts.Set),
		tools.SampleDataTool(w.opts.Executor, w.opts.Set.Capabilities.Schema.Table),
		tools.ExecuteQueryTool(w.opts.Executor, w.opts.Validator),
	}
}

// InvalidateSchema drops the cached system prompt.
func (w *SQLWriter) InvalidateSchema() {
	w.schema.Delete(w.opts.Set.Capabilities.Schema.Table)
}

// systemPrompt returns the cached prompt with schema and sample rows.
// Concurrent misses share one build through singleflight.
func (w *SQLWriter) systemPrompt(ctx context.Context) string {
	table := w.opts.Set.Capabilities.Schema.Table
	if item := w.schema.Get(table); item != nil {
		return item.Value()
	}

	v, _, _ := w.sf.Do(table, func() (interface{}, error) {
		if item := w.schema.Get(table); item != nil {
			return item.Value(), nil
		}

		var sb strings.Builder
		sb.WriteString(baseSystemPrompt)
		fmt.Fprintf(&sb, "\n\n## Table: %s\n", table)
		sb.WriteString(tools.SchemaText(w.opts.Set))

		cacheable := true
		if w.opts.Executor != nil {
			sample, err := tools.SampleDataTool(w.opts.Executor, table).
				Execute(ctx, map[string]interface{}{"limit": float64(sampleRows)})
			if err != nil {
				// serve without samples and retry on the next request
				log.Warn().Err(err).Msg("pre-load sample rows failed")
				cacheable = false
			} else {
				sb.WriteString("\nSample rows:\n" + sample + "\n")
			}
		}

		prompt := sb.String()
		if cacheable {
			w.schema.Set(table, prompt, ttlcache.DefaultTTL)
			log.Info().Str("table", table).Msg("schema prompt cached")
		}
		return prompt, nil
	})
	return v.(string)
}

func hybridPrompt(req sqlgen.Request) string {
	var sb strings.Builder
	sb.WriteString("Write one SQL statement for this validated request.\n")
	if req.Query != "" {
		fmt.Fprintf(&sb, "Summary: %s\n", req.Query)
	}
	sb.WriteString(req.StructuredPrompt)
	return sb.String()
}

func legacyPrompt(req sqlgen.Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n", req.Query)
	if req.PreviousQuery != "" {
		fmt.Fprintf(&sb, "Previous question: %s\n", req.PreviousQuery)
	}
	if req.PreviousSQL != "" {
		fmt.Fprintf(&sb, "Previous SQL:\n%s\n", req.PreviousSQL)
		sb.WriteString("If the question refines the previous one, modify the previous SQL instead of starting over.\n")
	}
	sb.WriteString(sqlgen.TemporalLines(req.TemporalContext))
	return strings.TrimRight(sb.String(), "\n")
}
