// Package executor runs generated SQL against the flip history store and
// returns columns and rows. DuckDB is the default local engine; Postgres is
// available for hosted deployments.
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// DefaultMaxRows caps how many rows a single query may return.
const DefaultMaxRows = 1000

// Result is an executed query.
type Result struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated,omitempty"`
}

// Records converts rows into column-keyed maps.
func (r *Result) Records() []map[string]any {
	out := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		rec := make(map[string]any, len(r.Columns))
		for i, col := range r.Columns {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out
}

// Executor is the opaque local query engine.
type Executor interface {
	Query(ctx context.Context, sqlText string) (*Result, error)
	Close() error
}

// DuckDB executes against an embedded database.
type DuckDB struct {
	db      *sql.DB
	maxRows int
}

// DuckDBOptions configures OpenDuckDB.
type DuckDBOptions struct {
	// Path is the database file; empty opens an in-memory database.
	Path string
	// FlipsCSV, when set, is exposed as the view named by Table.
	FlipsCSV string
	Table    string
	MaxRows  int
}

// OpenDuckDB opens the database and registers the flips view.
func OpenDuckDB(ctx context.Context, opts DuckDBOptions) (*DuckDB, error) {
	db, err := sql.Open("duckdb", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	if opts.FlipsCSV != "" {
		table := opts.Table
		if table == "" {
			table = "flips"
		}
		stmt := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_csv_auto('%s')`,
			quoteIdent(table), strings.ReplaceAll(opts.FlipsCSV, "'", "''"))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("register %s view: %w", table, err)
		}
		log.Info().Str("table", table).Str("csv", opts.FlipsCSV).Msg("flips view registered")
	}

	maxRows := opts.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &DuckDB{db: db, maxRows: maxRows}, nil
}

// Exec runs a statement that returns no rows. Used for setup and tests.
func (d *DuckDB) Exec(ctx context.Context, stmt string, args ...any) error {
	_, err := d.db.ExecContext(ctx, stmt, args...)
	return err
}

func (d *DuckDB) Query(ctx context.Context, sqlText string) (*Result, error) {
	start := time.Now()
	rows, err := d.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("duckdb query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("duckdb columns: %w", err)
	}

	res := &Result{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		if len(res.Rows) >= d.maxRows {
			res.Truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("duckdb scan: %w", err)
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("duckdb rows: %w", err)
	}

	log.Debug().
		Int("rows", len(res.Rows)).
		Dur("duration", time.Since(start)).
		Msg("duckdb query executed")
	return res, nil
}

func (d *DuckDB) Close() error {
	return d.db.Close()
}

// Postgres executes against a pgx connection pool.
type Postgres struct {
	pool    *pgxpool.Pool
	maxRows int
}

// OpenPostgres connects using a postgres:// URL.
func OpenPostgres(ctx context.Context, url string, maxRows int) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	log.Info().Str("host", poolConfig.ConnConfig.Host).Str("database", poolConfig.ConnConfig.Database).Msg("connected to postgres")
	return &Postgres{pool: pool, maxRows: maxRows}, nil
}

func (p *Postgres) Query(ctx context.Context, sqlText string) (*Result, error) {
	rows, err := p.pool.Query(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("postgres query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}

	res := &Result{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		if len(res.Rows) >= p.maxRows {
			res.Truncated = true
			break
		}
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres values: %w", err)
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres rows: %w", err)
	}
	return res, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
