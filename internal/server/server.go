package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flipdesk/flipquery/internal/config"
)

type Server struct {
	cfg      *config.Config
	http     *http.Server
	pipeline *Pipeline // held for graceful close
}

// New builds the server around an existing pipeline. The server closes the
// pipeline on shutdown.
func New(cfg *config.Config, pipeline *Pipeline) *Server {
	s := &Server{cfg: cfg, pipeline: pipeline}
	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.setupRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.http.Addr).Msg("listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("graceful shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := s.http.Shutdown(shutdownCtx)
		s.pipeline.Close()
		log.Info().Msg("executor and cache closed")
		return err
	case err := <-errCh:
		s.pipeline.Close()
		return err
	}
}
