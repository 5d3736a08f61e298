// Package metrics exposes ingestion counters to Prometheus.
//
// A Recorder owns its own registry so that one process can run several recorders (tests,
// one-shot bulk runs pushed to a Pushgateway) without colliding on global registration.
// All methods are safe on a nil *Recorder.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Ingestion paths.
const (
	PathBulk  = "bulk"
	PathEvent = "event"
)

// Record outcomes.
const (
	OutcomeInserted      = "inserted"
	OutcomeAlreadyExists = "already_exists"
	OutcomeFailed        = "failed"
)

// Failure stages.
const (
	StageFetch  = "fetch"
	StageParse  = "parse"
	StageDecode = "decode"
	StageLoad   = "load"
)

const namespace = "movie_ingest"

// Recorder holds the ingestion metrics of one process.
type Recorder struct {
	registry *prometheus.Registry

	records       *prometheus.CounterVec
	failures      *prometheus.CounterVec
	folders       *prometheus.CounterVec
	batches       *prometheus.CounterVec
	loadDuration  *prometheus.HistogramVec
	lastRunUnix   prometheus.Gauge
	lastRunStatus prometheus.Gauge
}

// NewRecorder registers the ingestion metrics on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		records: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_total",
				Help:      "Records seen by the loader, by ingestion path and outcome",
			},
			[]string{"path", "outcome"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "record_failures_total",
				Help:      "Record failures by ingestion path and stage",
			},
			[]string{"path", "stage"},
		),
		folders: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "folders_total",
				Help:      "Folders visited by the traversal, by result",
			},
			[]string{"result"}, // listed, failed
		),
		batches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_batches_total",
				Help:      "Event batches handled, by transport and result",
			},
			[]string{"transport", "result"}, // kafka/sqs, succeeded/failed
		),
		loadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "load_duration_seconds",
				Help:      "Duration of one catalog load transaction",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
			},
			[]string{"path"},
		),
		lastRunUnix: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bulk_run_last_completion_timestamp_seconds",
			Help:      "Unix time the last bulk run finished",
		}),
		lastRunStatus: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bulk_run_last_success",
			Help:      "1 if the last bulk run finished without a fatal error, else 0",
		}),
	}
}

// WithProcessCollectors adds Go runtime and process metrics, for long-running consumers.
func (r *Recorder) WithProcessCollectors() *Recorder {
	if r == nil {
		return nil
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}

	return r.registry
}

// RecordOutcome counts one loaded record.
func (r *Recorder) RecordOutcome(path, outcome string) {
	if r == nil {
		return
	}

	r.records.WithLabelValues(path, outcome).Inc()
}

// RecordFailure counts one failed record at stage.
func (r *Recorder) RecordFailure(path, stage string) {
	if r == nil {
		return
	}

	r.records.WithLabelValues(path, OutcomeFailed).Inc()
	r.failures.WithLabelValues(path, stage).Inc()
}

// ObserveLoad records the duration of one load call.
func (r *Recorder) ObserveLoad(path string, d time.Duration) {
	if r == nil {
		return
	}

	r.loadDuration.WithLabelValues(path).Observe(d.Seconds())
}

// RecordFolder counts one folder listing attempt.
func (r *Recorder) RecordFolder(ok bool) {
	if r == nil {
		return
	}

	result := "listed"
	if !ok {
		result = "failed"
	}

	r.folders.WithLabelValues(result).Inc()
}

// RecordBatch counts one event batch.
func (r *Recorder) RecordBatch(transport string, ok bool) {
	if r == nil {
		return
	}

	result := "succeeded"
	if !ok {
		result = "failed"
	}

	r.batches.WithLabelValues(transport, result).Inc()
}

// RecordRunCompletion stamps the end of a bulk run.
func (r *Recorder) RecordRunCompletion(at time.Time, ok bool) {
	if r == nil {
		return
	}

	r.lastRunUnix.Set(float64(at.Unix()))

	if ok {
		r.lastRunStatus.Set(1)
	} else {
		r.lastRunStatus.Set(0)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Push sends the current values to a Pushgateway under job.
func (r *Recorder) Push(ctx context.Context, gatewayURL, job string) error {
	if r == nil || gatewayURL == "" {
		return nil
	}

	if err := push.New(gatewayURL, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", gatewayURL, err)
	}

	return nil
}
