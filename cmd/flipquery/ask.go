package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flipdesk/flipquery/internal/executor"
	"github.com/flipdesk/flipquery/internal/query"
	"github.com/flipdesk/flipquery/internal/security"
	"github.com/flipdesk/flipquery/internal/server"
)

type askResult struct {
	Outcome query.Outcome    `json:"outcome"`
	SQL     string           `json:"sql,omitempty"`
	Result  *executor.Result `json:"result,omitempty"`
}

func newAskCmd(verbose *bool) *cobra.Command {
	var (
		execute bool
		session string
	)
	cmd := &cobra.Command{
		Use:   `ask "<question>"`,
		Short: "Run one question through the pipeline and print the outcome as JSON.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*verbose)
			if err != nil {
				return err
			}
			question := strings.TrimSpace(strings.Join(args, " "))
			if vr := security.NewPromptValidator(cfg.MaxQueryLength).Validate(question); !vr.Valid {
				return fmt.Errorf("invalid question: %s", vr.Message)
			}

			ctx := cmd.Context()
			pipeline, err := server.NewPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			res, err := ask(ctx, pipeline, question, session, execute)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().BoolVar(&execute, "execute", false, "generate SQL and run it on the configured executor")
	cmd.Flags().StringVar(&session, "session", "cli", "session id sent with fallback requests")
	return cmd
}

func ask(ctx context.Context, p *server.Pipeline, question, session string, execute bool) (askResult, error) {
	proc := p.Processor.CloneFor(query.Caller{SessionID: session, IsOwner: true})

	out, err := proc.ProcessQueryWithFallback(ctx, question, nil)
	res := askResult{Outcome: out}
	if err != nil {
		return res, err
	}
	if !execute {
		return res, nil
	}

	switch out.Type {
	case query.OutcomeParsed:
		sql, err := proc.GenerateSQL(ctx, out.Spec, nil)
		if err != nil {
			return res, err
		}
		res.SQL = sql
	case query.OutcomeFallbackSuccess:
		res.SQL = out.SQL
	default:
		return res, nil
	}

	if p.Executor == nil {
		return res, nil
	}
	if msg := p.SQLVal.Validate(res.SQL); msg != "" {
		return res, fmt.Errorf("generated SQL rejected: %s", msg)
	}
	qctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	rows, err := p.Executor.Query(qctx, res.SQL)
	if err != nil {
		return res, err
	}
	res.Result = rows
	return res, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
