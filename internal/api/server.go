package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/movie-explorer/catalog-ingest/internal/api/middleware"
	"github.com/movie-explorer/catalog-ingest/internal/config"
	"github.com/movie-explorer/catalog-ingest/internal/metrics"
)

type (
	// HealthChecker reports whether a dependency can serve requests.
	HealthChecker interface {
		HealthCheck(ctx context.Context) error
	}

	// Server is the ops HTTP server.
	Server struct {
		httpServer *http.Server
		logger     *slog.Logger
		config     *ServerConfig
		startTime  time.Time
		checker    HealthChecker
		recorder   *metrics.Recorder
	}
)

// NewServer wires the routes and the middleware chain. A nil checker makes /ready always
// succeed; a nil recorder serves 404 on /metrics.
func NewServer(cfg *ServerConfig, checker HealthChecker, recorder *metrics.Recorder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = config.NewLogger()
	}

	server := &Server{
		logger:   logger,
		config:   cfg,
		checker:  checker,
		recorder: recorder,
	}

	mux := http.NewServeMux()
	server.setupRoutes(mux)

	// Order: correlation id first so that recovery and the request log can report it.
	handler := middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithRequestLogger(logger, probePaths...),
	)

	server.httpServer = &http.Server{
		Addr:              cfg.Address(),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return server
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	listener, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return s.Serve(ctx, listener)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.startTime = time.Now()

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("Starting ops server",
			slog.String("address", listener.Addr().String()),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Ops server failed",
				slog.String("address", listener.Addr().String()),
				slog.String("error", err.Error()),
			)

			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		return s.shutdown()
	}
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Initiating ops server shutdown",
		slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
	)

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Ops server shutdown failed", slog.String("error", err.Error()))

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("Ops server shutdown completed")

	return nil
}
