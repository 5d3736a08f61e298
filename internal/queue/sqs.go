package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/movie-explorer/catalog-ingest/internal/config"
)

var _ Consumer = (*SQSConsumer)(nil)

type (
	// SQSAPI is the subset of the SQS client the consumer uses.
	SQSAPI interface {
		ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
		DeleteMessageBatch(ctx context.Context, params *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
	}

	// SQSConsumer long-polls a queue and deletes a received batch only after the handler
	// succeeds. Failed batches reappear after the queue's visibility timeout.
	SQSConsumer struct {
		client  SQSAPI
		cfg     *Config
		handler BatchHandler
		opts    consumerOptions
	}
)

// NewSQSClient builds an SQS client from the default AWS configuration.
func NewSQSClient(ctx context.Context, region string) (*sqs.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return sqs.NewFromConfig(cfg), nil
}

// NewSQSConsumer creates a consumer of cfg.SQSQueueURL.
func NewSQSConsumer(client SQSAPI, cfg *Config, handler BatchHandler, opts ...Option) *SQSConsumer {
	o := consumerOptions{logger: config.NewLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	return &SQSConsumer{client: client, cfg: cfg, handler: handler, opts: o}
}

// Run polls until ctx is cancelled. Receive errors are logged and retried after RetryBackoff.
func (c *SQSConsumer) Run(ctx context.Context) error {
	c.opts.logger.Info("SQS consumer started",
		slog.String("queue_url", c.cfg.SQSQueueURL),
		slog.Int("batch_size", c.cfg.BatchSize))

	for ctx.Err() == nil {
		if _, err := c.Poll(ctx); err != nil && ctx.Err() == nil {
			c.opts.logger.Error("SQS poll failed", slog.String("error", err.Error()))

			_ = sleep(ctx, c.cfg.RetryBackoff)
		}
	}

	c.opts.logger.Info("SQS consumer stopped")

	return nil
}

// Poll receives at most one batch and hands it to the handler. It returns the number of
// messages received. A handler failure is logged and not returned.
func (c *SQSConsumer) Poll(ctx context.Context) (int, error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.cfg.SQSQueueURL),
		MaxNumberOfMessages: int32(min(c.cfg.BatchSize, maxSQSBatchSize)), // #nosec G115 - bounded by 10
		WaitTimeSeconds:     int32(c.cfg.SQSWaitTime.Seconds()),
	})
	if err != nil {
		return 0, fmt.Errorf("receive failed: %w", err)
	}

	if len(out.Messages) == 0 {
		return 0, nil
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, Message{ID: aws.ToString(m.MessageId), Body: []byte(aws.ToString(m.Body))})
	}

	if err := c.handler.HandleBatch(ctx, msgs); err != nil {
		c.opts.recorder.RecordBatch(TransportSQS, false)
		c.opts.logger.Warn("Batch failed, leaving messages for redelivery",
			slog.Int("messages", len(msgs)),
			slog.String("error", err.Error()))

		return len(msgs), nil
	}

	c.opts.recorder.RecordBatch(TransportSQS, true)

	return len(msgs), c.deleteBatch(ctx, out.Messages)
}

// Close is a no-op; the SQS client holds no connection state.
func (c *SQSConsumer) Close() error {
	return nil
}

func (c *SQSConsumer) deleteBatch(ctx context.Context, received []types.Message) error {
	entries := make([]types.DeleteMessageBatchRequestEntry, 0, len(received))
	for i, m := range received {
		entries = append(entries, types.DeleteMessageBatchRequestEntry{
			Id:            aws.String(strconv.Itoa(i)),
			ReceiptHandle: m.ReceiptHandle,
		})
	}

	out, err := c.client.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
		QueueUrl: aws.String(c.cfg.SQSQueueURL),
		Entries:  entries,
	})
	if err != nil {
		return fmt.Errorf("delete batch failed: %w", err)
	}

	if len(out.Failed) > 0 {
		var errs []error
		for _, f := range out.Failed {
			errs = append(errs, fmt.Errorf("entry %s: %s", aws.ToString(f.Id), aws.ToString(f.Message)))
		}

		// Undeleted messages are redelivered and skipped as duplicates by the loader.
		c.opts.logger.Warn("Some processed messages could not be deleted",
			slog.Int("failed", len(out.Failed)),
			slog.String("error", errors.Join(errs...).Error()))
	}

	return nil
}
