package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/movie-explorer/catalog-ingest/internal/catalog"
	"github.com/movie-explorer/catalog-ingest/internal/config"
	"github.com/movie-explorer/catalog-ingest/internal/metrics"
	"github.com/movie-explorer/catalog-ingest/internal/queue"
)

// ErrBatchPartialFailure reports that at least one message of a batch failed. Messages that
// succeeded stay committed; the caller redelivers the whole batch.
var ErrBatchPartialFailure = errors.New("event batch partially failed")

var _ queue.BatchHandler = (*Processor)(nil)

type (
	// MessageResult is the outcome of one message.
	MessageResult struct {
		MessageID string
		Outcome   catalog.Outcome
		Err       error
	}

	// BatchResult summarizes one batch. Processed counts inserted and already-existing records.
	BatchResult struct {
		Results   []MessageResult
		Processed int
		Inserted  int
		Failed    int
	}

	// Processor decodes and loads event messages one at a time.
	Processor struct {
		loader   catalog.Loader
		recorder *metrics.Recorder
		logger   *slog.Logger
	}

	// Option configures a Processor.
	Option func(*Processor)
)

// WithRecorder counts outcomes under the event path.
func WithRecorder(r *metrics.Recorder) Option {
	return func(p *Processor) {
		p.recorder = r
	}
}

// WithLogger sets the processor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProcessor creates a Processor loading into loader.
func NewProcessor(loader catalog.Loader, opts ...Option) *Processor {
	p := &Processor{loader: loader, logger: config.NewLogger()}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// ProcessBatch handles every message in order. One message failing does not stop its
// siblings. The result is always returned; the error is ErrBatchPartialFailure when any
// message failed. Once ctx is done the remaining messages are marked failed without loading.
func (p *Processor) ProcessBatch(ctx context.Context, msgs []queue.Message) (*BatchResult, error) {
	result := &BatchResult{Results: make([]MessageResult, 0, len(msgs))}

	for _, msg := range msgs {
		res := MessageResult{MessageID: msg.ID}

		if err := ctx.Err(); err != nil {
			res.Err = err
		} else {
			res.Outcome, res.Err = p.processMessage(ctx, msg)
		}

		if res.Err != nil {
			result.Failed++
		} else {
			result.Processed++

			if res.Outcome.IsInserted() {
				result.Inserted++
			}
		}

		result.Results = append(result.Results, res)
	}

	p.logger.Info("Event batch processed",
		slog.Int("messages", len(msgs)),
		slog.Int("processed", result.Processed),
		slog.Int("inserted", result.Inserted),
		slog.Int("failed", result.Failed))

	if result.Failed > 0 {
		return result, fmt.Errorf("%w: %d of %d messages failed", ErrBatchPartialFailure, result.Failed, len(msgs))
	}

	return result, nil
}

// HandleBatch adapts ProcessBatch to queue.BatchHandler.
func (p *Processor) HandleBatch(ctx context.Context, msgs []queue.Message) error {
	_, err := p.ProcessBatch(ctx, msgs)

	return err
}

func (p *Processor) processMessage(ctx context.Context, msg queue.Message) (catalog.Outcome, error) {
	movie, err := DecodeEnvelope(msg.Body)
	if err != nil {
		p.recorder.RecordFailure(metrics.PathEvent, metrics.StageDecode)
		p.logger.Warn("Failed to decode event message",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()))

		return catalog.Outcome{}, err
	}

	start := time.Now()
	outcome, err := p.loader.Load(ctx, movie, catalog.SurrogateKeyConflict)
	p.recorder.ObserveLoad(metrics.PathEvent, time.Since(start))

	if err != nil {
		p.recorder.RecordFailure(metrics.PathEvent, metrics.StageLoad)
		p.logger.Error("Failed to load event record",
			slog.String("message_id", msg.ID),
			slog.String("id", movie.ID),
			slog.String("error", err.Error()))

		return catalog.Outcome{}, err
	}

	if outcome.IsInserted() {
		p.recorder.RecordOutcome(metrics.PathEvent, metrics.OutcomeInserted)
		p.logger.Info("Inserted movie",
			slog.String("message_id", msg.ID),
			slog.String("id", outcome.ID),
			slog.String("movie", movie.Key().String()))
	} else {
		p.recorder.RecordOutcome(metrics.PathEvent, metrics.OutcomeAlreadyExists)
		p.logger.Info("Movie already exists, skipped",
			slog.String("message_id", msg.ID),
			slog.String("id", movie.ID))
	}

	return outcome, nil
}
