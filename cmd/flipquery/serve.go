package main

import (
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/flipdesk/flipquery/internal/server"
)

func newServeCmd(verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP query service.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*verbose)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pipeline, err := server.NewPipeline(ctx, cfg)
			if err != nil {
				return err
			}

			log.Info().
				Str("version", version).
				Str("env", cfg.Environment).
				Int("port", cfg.Port).
				Msg("starting flipquery")
			return server.New(cfg, pipeline).Run(ctx)
		},
	}
}
