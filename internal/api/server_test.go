package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movie-explorer/catalog-ingest/internal/api/middleware"
	"github.com/movie-explorer/catalog-ingest/internal/metrics"
)

type stubChecker struct {
	err error
}

func (c stubChecker) HealthCheck(_ context.Context) error {
	return c.err
}

func testServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            9090,
		Host:            "127.0.0.1",
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
		Version:         "v0.0.0-test",
	}
}

func newTestServer(checker HealthChecker, recorder *metrics.Recorder) *Server {
	return NewServer(testServerConfig(), checker, recorder, slog.New(slog.DiscardHandler))
}

func serve(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	return rec
}

func TestPing(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rec := serve(t, newTestServer(nil, nil), http.MethodGet, "/ping")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderCorrelationID))
}

func TestReady(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name    string
		checker HealthChecker
		status  int
		body    string
	}{
		{"no checker", nil, http.StatusOK, "ready"},
		{"healthy catalog", stubChecker{}, http.StatusOK, "ready"},
		{"catalog down", stubChecker{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "catalog unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, newTestServer(tt.checker, nil), http.MethodGet, "/ready")

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
}

func TestHealth(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rec := serve(t, newTestServer(nil, nil), http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))

	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "catalog-ingest", health.ServiceName)
	assert.Equal(t, "v0.0.0-test", health.Version)
	assert.Equal(t, "v0.0.0-test", rec.Header().Get("X-Ingest-Version"))
}

func TestMetrics(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	recorder := metrics.NewRecorder()
	recorder.RecordOutcome(metrics.PathEvent, metrics.OutcomeInserted)

	rec := serve(t, newTestServer(nil, recorder), http.MethodGet, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `movie_ingest_records_total{outcome="inserted",path="event"} 1`)

	rec = serve(t, newTestServer(nil, nil), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotFound(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rec := serve(t, newTestServer(nil, nil), http.MethodGet, "/api/v1/movies")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, contentTypeProblemJSON, rec.Header().Get("Content-Type"))

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusNotFound, problem.Status)
	assert.Equal(t, "/api/v1/movies", problem.Instance)
	assert.Equal(t, rec.Header().Get(middleware.HeaderCorrelationID), problem.CorrelationID)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := newTestServer(stubChecker{}, metrics.NewRecorder())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- s.Serve(ctx, listener) }()

	url := "http://" + listener.Addr().String() + "/ready"

	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:noctx,gosec
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)

		return resp.StatusCode == http.StatusOK && strings.TrimSpace(string(body)) == "ready"
	}, 5*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := testServerConfig()
	cfg.Port = 0

	err := NewServer(cfg, nil, nil, slog.New(slog.DiscardHandler)).Run(context.Background())
	require.ErrorIs(t, err, ErrInvalidPort)
}
