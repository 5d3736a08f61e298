package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/movie-explorer/catalog-ingest/internal/config"
)

var _ Consumer = (*KafkaConsumer)(nil)

type (
	// KafkaReader is the subset of *kafka.Reader the consumer uses.
	KafkaReader interface {
		FetchMessage(ctx context.Context) (kafka.Message, error)
		CommitMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	// ReaderFactory opens a reader positioned at the group's committed offset.
	ReaderFactory func() KafkaReader

	// KafkaConsumer reads a topic as part of a consumer group. Offsets are committed only
	// after the handler accepts a batch. On failure the reader is reopened so the group
	// resumes from the last commit and the batch is delivered again.
	KafkaConsumer struct {
		cfg     *Config
		handler BatchHandler
		opts    consumerOptions

		mu     sync.Mutex
		reader KafkaReader
	}
)

// NewKafkaConsumer creates a consumer of cfg.KafkaTopic.
func NewKafkaConsumer(cfg *Config, handler BatchHandler, opts ...Option) *KafkaConsumer {
	o := consumerOptions{logger: config.NewLogger()}
	o.factory = func() KafkaReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.KafkaBrokers,
			GroupID:     cfg.KafkaGroupID,
			Topic:       cfg.KafkaTopic,
			MinBytes:    1,
			MaxBytes:    10e6,
			StartOffset: kafka.FirstOffset,
		})
	}

	for _, opt := range opts {
		opt(&o)
	}

	return &KafkaConsumer{cfg: cfg, handler: handler, opts: o}
}

// Run consumes until ctx is cancelled.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	c.opts.logger.Info("Kafka consumer started",
		slog.Any("brokers", c.cfg.KafkaBrokers),
		slog.String("topic", c.cfg.KafkaTopic),
		slog.String("group_id", c.cfg.KafkaGroupID),
		slog.Int("batch_size", c.cfg.BatchSize),
		slog.Duration("batch_window", c.cfg.BatchWindow))

	reader := c.open()

	for ctx.Err() == nil {
		batch, err := c.collect(ctx, reader)
		if err != nil {
			if ctx.Err() != nil {
				break
			}

			c.opts.logger.Error("Kafka fetch failed", slog.String("error", err.Error()))
			reader = c.reopen(ctx)

			continue
		}

		if err := c.handler.HandleBatch(ctx, toMessages(batch)); err != nil {
			c.opts.recorder.RecordBatch(TransportKafka, false)
			c.opts.logger.Warn("Batch failed, rewinding to last committed offset",
				slog.Int("messages", len(batch)),
				slog.String("error", err.Error()))

			reader = c.reopen(ctx)

			continue
		}

		if err := reader.CommitMessages(ctx, batch...); err != nil {
			if ctx.Err() != nil {
				break
			}

			// The batch was stored; redelivery only produces duplicates the loader skips.
			c.opts.logger.Error("Kafka commit failed", slog.String("error", err.Error()))
			reader = c.reopen(ctx)

			continue
		}

		c.opts.recorder.RecordBatch(TransportKafka, true)
	}

	c.opts.logger.Info("Kafka consumer stopped")

	return c.Close()
}

// Close closes the current reader, if any.
func (c *KafkaConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reader == nil {
		return nil
	}

	err := c.reader.Close()
	c.reader = nil

	if err != nil {
		return fmt.Errorf("failed to close kafka reader: %w", err)
	}

	return nil
}

// collect blocks for the first message, then gathers more until BatchSize or BatchWindow.
func (c *KafkaConsumer) collect(ctx context.Context, reader KafkaReader) ([]kafka.Message, error) {
	first, err := reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}

	batch := []kafka.Message{first}

	windowCtx, cancel := context.WithTimeout(ctx, c.cfg.BatchWindow)
	defer cancel()

	for len(batch) < c.cfg.BatchSize {
		msg, err := reader.FetchMessage(windowCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			if errors.Is(err, context.DeadlineExceeded) {
				break
			}

			return nil, err
		}

		batch = append(batch, msg)
	}

	return batch, nil
}

func (c *KafkaConsumer) open() KafkaReader {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reader = c.opts.factory()

	return c.reader
}

func (c *KafkaConsumer) reopen(ctx context.Context) KafkaReader {
	if err := c.Close(); err != nil {
		c.opts.logger.Warn("Failed to close reader before retry", slog.String("error", err.Error()))
	}

	_ = sleep(ctx, c.cfg.RetryBackoff)

	return c.open()
}

func toMessages(batch []kafka.Message) []Message {
	msgs := make([]Message, 0, len(batch))
	for _, m := range batch {
		msgs = append(msgs, Message{
			ID:   fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset),
			Body: m.Value,
		})
	}

	return msgs
}
