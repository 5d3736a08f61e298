package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/movie-explorer/catalog-ingest/internal/api/middleware"
)

const (
	healthCheckTimeout     = 2 * time.Second
	contentTypeProblemJSON = middleware.ContentTypeProblemJSON
	serviceName            = "catalog-ingest"
	headerVersion          = "X-Ingest-Version"
)

// HealthStatus represents the health check response structure.
type HealthStatus struct {
	Status      string `json:"status"`
	ServiceName string `json:"serviceName"`
	Version     string `json:"version"`
	Uptime      string `json:"uptime,omitempty"`
}

// probePaths are logged at debug level on success.
var probePaths = []string{"/ping", "/ready", "/health", "/metrics"}

func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ping", s.handlePing)     // liveness
	mux.HandleFunc("GET /ready", s.handleReady)   // readiness: catalog reachable
	mux.HandleFunc("GET /health", s.handleHealth) // status, uptime, version
	mux.Handle("GET /metrics", s.recorder.Handler())
	mux.HandleFunc("/", s.handleNotFound)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.writeText(w, r, http.StatusOK, "pong")
}

// handleReady reports 503 while the catalog health check fails. Without a checker the
// server is always ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		s.writeText(w, r, http.StatusOK, "ready")

		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.checker.HealthCheck(ctx); err != nil {
		s.logger.Error("Catalog health check failed",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)

		s.writeText(w, r, http.StatusServiceUnavailable, "catalog unavailable")

		return
	}

	s.writeText(w, r, http.StatusOK, "ready")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var uptime string

	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	data, err := json.Marshal(HealthStatus{
		Status:      "healthy",
		ServiceName: serviceName,
		Version:     s.config.Version,
		Uptime:      uptime,
	})
	if err != nil {
		s.writeProblem(w, r, http.StatusInternalServerError, "Failed to encode health response")

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(headerVersion, s.config.Version)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write health response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)
	}
}

// handleNotFound returns RFC 7807 compliant 404 responses for unknown endpoints.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeProblem(w, r, http.StatusNotFound, "The requested resource was not found")
}

func (s *Server) writeText(w http.ResponseWriter, r *http.Request, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)

	if _, err := w.Write([]byte(body)); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("path", r.URL.Path),
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)
	}
}
