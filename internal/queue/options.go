package queue

import (
	"log/slog"

	"github.com/movie-explorer/catalog-ingest/internal/metrics"
)

type (
	consumerOptions struct {
		logger   *slog.Logger
		recorder *metrics.Recorder
		factory  ReaderFactory
	}

	// Option configures a consumer.
	Option func(*consumerOptions)
)

// WithLogger sets the consumer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *consumerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRecorder counts handled batches.
func WithRecorder(r *metrics.Recorder) Option {
	return func(o *consumerOptions) {
		o.recorder = r
	}
}

// WithReaderFactory replaces the Kafka reader constructor. Ignored by SQSConsumer.
func WithReaderFactory(f ReaderFactory) Option {
	return func(o *consumerOptions) {
		if f != nil {
			o.factory = f
		}
	}
}
