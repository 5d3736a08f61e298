package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/movie-explorer/catalog-ingest/internal/api"
	"github.com/movie-explorer/catalog-ingest/internal/config"
	"github.com/movie-explorer/catalog-ingest/internal/credentials"
	"github.com/movie-explorer/catalog-ingest/internal/events"
	"github.com/movie-explorer/catalog-ingest/internal/metrics"
	"github.com/movie-explorer/catalog-ingest/internal/queue"
	"github.com/movie-explorer/catalog-ingest/internal/storage"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Load movie events from Kafka or SQS",
	Long: `Consume movie events in batches and load each record into the catalog keyed
by its event id. A batch is acknowledged only when every record in it loads;
otherwise the whole batch is redelivered.

The ops server (OPS_SERVER_PORT, default 9090) serves /ping, /ready, /health
and /metrics while the consumer runs.`,
	Args: cobra.NoArgs,
	RunE: runConsumeCmd,
}

func init() {
	rootCmd.AddCommand(consumeCmd)
	registerConsumeFlags(consumeCmd)
}

func registerConsumeFlags(cmd *cobra.Command) {
	cmd.Flags().String("transport", "", "Event transport: kafka or sqs (default QUEUE_TRANSPORT)")
}

func runConsumeCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := config.NewLogger()

	queueCfg, err := loadQueueConfig(cmd)
	if err != nil {
		return err
	}

	credCfg := credentials.LoadConfig()

	provider, err := credentials.NewProvider(ctx, credCfg, logger)
	if err != nil {
		return err
	}

	dbCreds, err := provider.DatabaseCredentials(ctx, credCfg.DatabaseSecretID)
	if err != nil {
		return err
	}

	conn, err := storage.NewConnection(ctx, storage.LoadConfig(dbCreds.URL()))
	if err != nil {
		return err
	}

	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warn("Failed to close catalog connection", slog.String("error", err.Error()))
		}
	}()

	store, err := storage.NewMovieStore(conn, storage.WithLogger(logger))
	if err != nil {
		return err
	}

	if err := store.CheckSchema(ctx); err != nil {
		return err
	}

	recorder := metrics.NewRecorder().WithProcessCollectors()
	processor := events.NewProcessor(store,
		events.WithRecorder(recorder),
		events.WithLogger(logger))

	consumer, err := newConsumer(ctx, queueCfg, processor, recorder, logger)
	if err != nil {
		return err
	}

	serverCfg := api.LoadServerConfig()
	serverCfg.Version = version
	server := api.NewServer(serverCfg, store, recorder, logger)

	return runUntilDone(ctx, consumer, server.Run, logger)
}

func loadQueueConfig(cmd *cobra.Command) (*queue.Config, error) {
	cfg := queue.LoadConfig()

	if cmd.Flags().Changed("transport") {
		transport, err := cmd.Flags().GetString("transport")
		if err != nil {
			return nil, err
		}

		cfg.Transport = transport
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newConsumer(
	ctx context.Context,
	cfg *queue.Config,
	handler queue.BatchHandler,
	recorder *metrics.Recorder,
	logger *slog.Logger,
) (queue.Consumer, error) {
	opts := []queue.Option{queue.WithLogger(logger), queue.WithRecorder(recorder)}

	switch cfg.Transport {
	case queue.TransportKafka:
		return queue.NewKafkaConsumer(cfg, handler, opts...), nil
	case queue.TransportSQS:
		client, err := queue.NewSQSClient(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}

		return queue.NewSQSConsumer(client, cfg, handler, opts...), nil
	default:
		return nil, fmt.Errorf("%w: unsupported transport %q", queue.ErrInvalidConfig, cfg.Transport)
	}
}

// runUntilDone runs the consumer and the ops server together. Both return only when ctx is
// done or they fail; a failure cancels the other and is returned.
func runUntilDone(
	ctx context.Context,
	consumer queue.Consumer,
	serve func(context.Context) error,
	logger *slog.Logger,
) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		if err := serve(ctx); err != nil {
			logger.Error("Ops server stopped", slog.String("error", err.Error()))

			return err
		}

		return nil
	})

	return g.Wait()
}
