package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	r := NewRecorder()

	r.RecordOutcome(PathBulk, OutcomeInserted)
	r.RecordOutcome(PathBulk, OutcomeAlreadyExists)
	r.RecordOutcome(PathBulk, OutcomeAlreadyExists)
	r.RecordFailure(PathEvent, StageDecode)
	r.RecordFolder(true)
	r.RecordFolder(false)
	r.RecordBatch("sqs", false)
	r.ObserveLoad(PathBulk, 5*time.Millisecond)

	assert.InDelta(t, 1, testutil.ToFloat64(r.records.WithLabelValues(PathBulk, OutcomeInserted)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(r.records.WithLabelValues(PathBulk, OutcomeAlreadyExists)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.records.WithLabelValues(PathEvent, OutcomeFailed)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.failures.WithLabelValues(PathEvent, StageDecode)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.folders.WithLabelValues("failed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.batches.WithLabelValues("sqs", "failed")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(r.loadDuration))
}

func TestRecorder_NilSafe(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var r *Recorder

	assert.NotPanics(t, func() {
		r.RecordOutcome(PathBulk, OutcomeInserted)
		r.RecordFailure(PathBulk, StageParse)
		r.RecordFolder(true)
		r.RecordBatch("kafka", true)
		r.ObserveLoad(PathBulk, time.Second)
		r.RecordRunCompletion(time.Now(), true)
		assert.Nil(t, r.WithProcessCollectors())
		assert.Nil(t, r.Registry())
		assert.NoError(t, r.Push(context.Background(), "http://unused", "job"))
	})
}

func TestRecorder_Handler(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	r := NewRecorder()
	r.RecordOutcome(PathEvent, OutcomeInserted)

	srv := httptest.NewServer(r.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL) //nolint:noctx
	require.NoError(t, err)

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `movie_ingest_records_total{outcome="inserted",path="event"} 1`)
}

func TestRecorder_Push(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var gotPath string

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(gateway.Close)

	r := NewRecorder()
	r.RecordRunCompletion(time.Unix(1700000000, 0), true)

	require.NoError(t, r.Push(context.Background(), gateway.URL, "movie_bulk_ingest"))
	assert.True(t, strings.HasPrefix(gotPath, "/metrics/job/movie_bulk_ingest"), gotPath)

	assert.NoError(t, r.Push(context.Background(), "", "ignored"), "empty gateway URL disables push")
}
