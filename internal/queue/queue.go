// Package queue delivers batches of event messages from Kafka or SQS to a BatchHandler.
//
// Delivery is at-least-once: a batch is acknowledged (offsets committed, messages deleted)
// only when the handler returns nil. A handler error leaves the whole batch for redelivery.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/movie-explorer/catalog-ingest/internal/config"
)

// Transports.
const (
	TransportKafka = "kafka"
	TransportSQS   = "sqs"
)

const (
	defaultBatchSize    = 10
	defaultBatchWindow  = 5 * time.Second
	defaultRetryBackoff = 5 * time.Second
	defaultSQSWaitTime  = 5 * time.Second
	maxSQSBatchSize     = 10
)

var (
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid queue configuration")
)

type (
	// Message is one queued record.
	Message struct {
		ID   string
		Body []byte
	}

	// BatchHandler processes one batch. A non-nil error requests redelivery of the batch.
	BatchHandler interface {
		HandleBatch(ctx context.Context, msgs []Message) error
	}

	// BatchHandlerFunc adapts a function to BatchHandler.
	BatchHandlerFunc func(ctx context.Context, msgs []Message) error

	// Consumer runs until ctx is cancelled.
	Consumer interface {
		Run(ctx context.Context) error
		Close() error
	}

	// Config holds consumer settings for both transports.
	Config struct {
		Transport    string
		BatchSize    int
		BatchWindow  time.Duration
		RetryBackoff time.Duration

		KafkaBrokers []string
		KafkaTopic   string
		KafkaGroupID string

		SQSQueueURL string
		SQSWaitTime time.Duration
		AWSRegion   string
	}
)

// HandleBatch calls f.
func (f BatchHandlerFunc) HandleBatch(ctx context.Context, msgs []Message) error {
	return f(ctx, msgs)
}

// LoadConfig reads QUEUE_*, KAFKA_* and SQS_* settings from the environment.
func LoadConfig() *Config {
	return &Config{
		Transport:    config.GetEnvStr("QUEUE_TRANSPORT", TransportKafka),
		BatchSize:    config.GetEnvInt("QUEUE_BATCH_SIZE", defaultBatchSize),
		BatchWindow:  config.GetEnvDuration("QUEUE_BATCH_WINDOW", defaultBatchWindow),
		RetryBackoff: config.GetEnvDuration("QUEUE_RETRY_BACKOFF", defaultRetryBackoff),
		KafkaBrokers: config.ParseCommaSeparatedList(config.GetEnvStr("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   config.GetEnvStr("KAFKA_TOPIC", "movies"),
		KafkaGroupID: config.GetEnvStr("KAFKA_GROUP_ID", "movie-catalog-ingest"),
		SQSQueueURL:  config.GetEnvStr("SQS_QUEUE_URL", ""),
		SQSWaitTime:  config.GetEnvDuration("SQS_WAIT_TIME", defaultSQSWaitTime),
		AWSRegion:    config.GetEnvStr("AWS_REGION", ""),
	}
}

// Validate checks the settings of the selected transport.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: QUEUE_BATCH_SIZE must be greater than zero", ErrInvalidConfig)
	}

	if c.BatchWindow <= 0 || c.RetryBackoff < 0 {
		return fmt.Errorf("%w: QUEUE_BATCH_WINDOW must be positive and QUEUE_RETRY_BACKOFF non-negative", ErrInvalidConfig)
	}

	switch c.Transport {
	case TransportKafka:
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" || c.KafkaGroupID == "" {
			return fmt.Errorf("%w: KAFKA_BROKERS, KAFKA_TOPIC and KAFKA_GROUP_ID are required", ErrInvalidConfig)
		}
	case TransportSQS:
		if c.SQSQueueURL == "" {
			return fmt.Errorf("%w: SQS_QUEUE_URL is required", ErrInvalidConfig)
		}

		if c.BatchSize > maxSQSBatchSize {
			return fmt.Errorf("%w: QUEUE_BATCH_SIZE cannot exceed 10 for sqs", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: QUEUE_TRANSPORT must be kafka or sqs", ErrInvalidConfig)
	}

	return nil
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
