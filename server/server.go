// Package server provides the HTTP batch server for goconnectome.
//
// The server executes named pipeline runs from the configuration, either on a
// cron schedule or on demand via the REST API, and persists a bounded history
// of completed runs.
//
// # Endpoints
//
//   - GET /health - Simple health check, returns "ok"
//   - GET /api/status - Consolidated status (runner state, run names, next scheduled run)
//   - GET /history - Returns history of completed runs
//   - POST /run - Starts the named runs in order
//   - GET /metrics - Prometheus metrics
//
// # Example
//
//	srv, err := server.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/nsap/goconnectome/config"
	"github.com/nsap/goconnectome/logging"
	"github.com/nsap/goconnectome/metrics"
	"github.com/nsap/goconnectome/server/cron"
	"github.com/nsap/goconnectome/server/handlers"
	"github.com/nsap/goconnectome/server/runner"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Server is the HTTP server for the goconnectome batch mode.
type Server struct {
	cfg        config.Config
	logger     *logging.Logger
	registry   *metrics.ScrapeRegistry
	runner     *runner.Runner
	cron       *cron.Manager
	httpServer *http.Server
}

// New creates a new Server from the given configuration.
// It initializes the logger, the run history store, the metrics registry and,
// when a cron spec is configured, the scheduler.
func New(cfg config.Config) (*Server, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.AddSource,
	})
	if err != nil {
		return nil, err
	}

	registry, err := metrics.NewScrapeRegistry()
	if err != nil {
		return nil, fmt.Errorf("creating metrics registry: %w", err)
	}
	runMetrics, err := metrics.NewRunMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("creating run metrics: %w", err)
	}

	store, err := runner.NewDiskStore(cfg.Server.StateDir, cfg.Server.MaxHistory, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening run history store: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
	}
	s.runner = runner.New(logger.Logger, cfg,
		runner.WithStore(store),
		runner.WithRunMetrics(runMetrics),
	)

	if cfg.Server.Cron != "" {
		available := make(map[string]bool, len(cfg.Server.Runs))
		for name := range cfg.Server.Runs {
			available[name] = true
		}
		mgr, err := cron.NewManager(cfg.Server.Cron, s.runner, logger.Logger, available)
		if err != nil {
			return nil, fmt.Errorf("creating cron manager: %w", err)
		}
		s.cron = mgr
	}

	return s, nil
}

// Logger returns the server's logger.
func (s *Server) Logger() *logging.Logger {
	return s.logger
}

// Status returns the runner's current status.
func (s *Server) Status() runner.Status {
	return s.runner.Status()
}

// RunNames returns the configured run definition names.
func (s *Server) RunNames() []string {
	return s.runner.RunNames()
}

// NextRun returns the next scheduled run time, or nil when no cron schedule
// is configured.
func (s *Server) NextRun() *time.Time {
	if s.cron == nil {
		return nil
	}
	next := s.cron.NextRun()
	if next.IsZero() {
		return nil
	}
	return &next
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It performs a graceful shutdown when the context is done.
// If a cron schedule is configured, it is started automatically.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.ListenAddr,
		Handler:      mux,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}

	if s.cron != nil {
		s.logger.Info("starting scheduler", "next_run", s.cron.NextRun())
		s.cron.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"addr", s.cfg.Server.ListenAddr,
			"state_dir", s.cfg.Server.StateDir,
			"runs", len(s.cfg.Server.Runs),
		)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.Handle("GET /api/status", handlers.NewStatusHandler(s))
	mux.Handle("GET /history", handlers.NewHistoryHandler(s.runner))
	mux.Handle("POST /run", handlers.NewRunHandler(s.runner))
	mux.Handle("GET /metrics", s.registry.Handler())
}
