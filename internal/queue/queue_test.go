package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(transport string) *Config {
	return &Config{
		Transport:    transport,
		BatchSize:    10,
		BatchWindow:  time.Second,
		RetryBackoff: 0,
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "movies",
		KafkaGroupID: "movie-catalog-ingest",
		SQSQueueURL:  "https://sqs.us-east-1.amazonaws.com/123456789012/movies",
		SQSWaitTime:  time.Second,
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("QUEUE_TRANSPORT", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := LoadConfig()

	assert.Equal(t, TransportKafka, cfg.Transport)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.BatchWindow)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "movies", cfg.KafkaTopic)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_FromEnv(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("QUEUE_TRANSPORT", "sqs")
	t.Setenv("QUEUE_BATCH_SIZE", "5")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("SQS_QUEUE_URL", "https://sqs.example/queue")

	cfg := LoadConfig()

	assert.Equal(t, TransportSQS, cfg.Transport)
	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }},
		{"zero window", func(c *Config) { c.BatchWindow = 0 }},
		{"negative backoff", func(c *Config) { c.RetryBackoff = -time.Second }},
		{"unknown transport", func(c *Config) { c.Transport = "amqp" }},
		{"kafka without topic", func(c *Config) { c.KafkaTopic = "" }},
		{"kafka without brokers", func(c *Config) { c.KafkaBrokers = nil }},
		{"sqs without url", func(c *Config) { c.Transport = TransportSQS; c.SQSQueueURL = "" }},
		{"sqs batch too large", func(c *Config) { c.Transport = TransportSQS; c.BatchSize = 11 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(TransportKafka)
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestSleep(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	require.NoError(t, sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sleep(ctx, time.Hour)
	assert.True(t, errors.Is(err, context.Canceled))
}
