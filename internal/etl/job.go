package etl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/movie-explorer/catalog-ingest/internal/config"
	"github.com/movie-explorer/catalog-ingest/internal/credentials"
	"github.com/movie-explorer/catalog-ingest/internal/metrics"
	"github.com/movie-explorer/catalog-ingest/internal/remote"
	"github.com/movie-explorer/catalog-ingest/internal/storage"
	"github.com/movie-explorer/catalog-ingest/internal/traversal"
)

type (
	// Job is one bulk ingestion run.
	Job struct {
		cfg      *Config
		provider credentials.Provider
		opener   SessionOpener
		recorder *metrics.Recorder
		logger   *slog.Logger
		now      func() time.Time
	}

	// JobOption configures a Job.
	JobOption func(*Job)
)

// WithSessionOpener replaces DefaultOpener.
func WithSessionOpener(opener SessionOpener) JobOption {
	return func(j *Job) {
		if opener != nil {
			j.opener = opener
		}
	}
}

// WithRecorder sets the metrics recorder. Without one nothing is recorded or pushed.
func WithRecorder(r *metrics.Recorder) JobOption {
	return func(j *Job) {
		j.recorder = r
	}
}

// WithLogger sets the run logger.
func WithLogger(logger *slog.Logger) JobOption {
	return func(j *Job) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// NewJob creates a run of cfg using provider for credentials.
func NewJob(cfg *Config, provider credentials.Provider, opts ...JobOption) *Job {
	j := &Job{
		cfg:      cfg,
		provider: provider,
		logger:   config.NewLogger(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(j)
	}

	if j.opener == nil {
		j.opener = DefaultOpener{Logger: j.logger}
	}

	return j
}

// Run executes the bulk ingestion. Configuration, credential and catalog connection
// failures are fatal and returned before any record is touched. Once opened, the session
// is closed on every exit path. The stats are returned even when the walk stops early.
func (j *Job) Run(ctx context.Context) (traversal.RunStats, error) {
	var stats traversal.RunStats

	if j.cfg == nil {
		return stats, fmt.Errorf("%w: configuration is missing", ErrConfiguration)
	}

	if err := j.cfg.Validate(); err != nil {
		return stats, err
	}

	started := j.now()

	stats, err := j.run(ctx)

	j.finish(ctx, stats, err, j.now().Sub(started))

	return stats, err
}

func (j *Job) run(ctx context.Context) (traversal.RunStats, error) {
	var stats traversal.RunStats

	secrets, err := j.resolveSecrets(ctx)
	if err != nil {
		return stats, err
	}

	session, err := j.opener.Open(ctx, j.cfg, secrets)
	if err != nil {
		return stats, fmt.Errorf("failed to open run session: %w", err)
	}

	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			j.logger.Warn("Failed to close run session", slog.String("error", closeErr.Error()))
		}
	}()

	if err := session.Catalog.CheckSchema(ctx); err != nil {
		return stats, err
	}

	rootName := j.cfg.RootFolderName

	if root, err := session.Tree.Describe(ctx, session.RootID); err != nil {
		j.logger.Warn("Could not read root folder metadata",
			slog.String("folder_id", session.RootID),
			slog.String("kind", string(remote.KindOf(err))),
			slog.String("error", err.Error()))
	} else {
		j.logger.Info("Exploring root folder",
			slog.String("folder_id", root.ID),
			slog.String("name", root.Name))

		if rootName == "" || rootName == defaultRootName {
			rootName = root.Name
		}
	}

	orchestrator := traversal.NewOrchestrator(session.Tree, session.Catalog,
		traversal.WithSuffix(j.cfg.RecordSuffix),
		traversal.WithMaxDepth(j.cfg.MaxDepth),
		traversal.WithRecorder(j.recorder),
		traversal.WithLogger(j.logger))

	stats, err = orchestrator.Walk(ctx, session.RootID, rootName)

	if count, countErr := session.Catalog.Count(ctx); countErr == nil {
		j.logger.Info("Catalog size", slog.Int64("movies", count))
	} else {
		j.logger.Warn("Failed to count catalog rows", slog.String("error", countErr.Error()))
	}

	return stats, err
}

func (j *Job) resolveSecrets(ctx context.Context) (Secrets, error) {
	if j.provider == nil {
		return Secrets{}, fmt.Errorf("%w: no provider configured", credentials.ErrCredentials)
	}

	dbCreds, err := j.provider.DatabaseCredentials(ctx, j.cfg.Credentials.DatabaseSecretID)
	if err != nil {
		return Secrets{}, err
	}

	secrets := Secrets{DatabaseURL: dbCreds.URL()}

	if j.cfg.RemoteSource == SourceDrive {
		secrets.StoreToken, err = j.provider.StoreToken(ctx, j.cfg.Credentials.DriveSecretID)
		if err != nil {
			return Secrets{}, err
		}
	}

	j.logger.Info("Credentials resolved",
		slog.String("source", j.cfg.Credentials.Source),
		slog.String("database", storage.MaskDatabaseURL(secrets.DatabaseURL)))

	return secrets, nil
}

// finish logs the run summary and publishes metrics. A push failure never fails the run.
func (j *Job) finish(ctx context.Context, stats traversal.RunStats, err error, elapsed time.Duration) {
	attrs := []any{
		slog.Int("processed", stats.Processed),
		slog.Int("inserted", stats.Inserted),
		slog.Int("skipped", stats.Skipped),
		slog.Int("failed", stats.Failed),
		slog.Int("folders_visited", stats.FoldersVisited),
		slog.Int("folders_failed", stats.FoldersFailed),
		slog.Duration("elapsed", elapsed),
	}

	if err != nil {
		j.logger.Error("Ingestion run failed", append(attrs, slog.String("error", err.Error()))...)
	} else {
		j.logger.Info("Ingestion run completed", attrs...)
	}

	j.recorder.RecordRunCompletion(j.now(), err == nil)

	if j.recorder == nil || j.cfg.PushgatewayURL == "" {
		return
	}

	// The run context may already be cancelled; the push gets its own bound.
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if pushErr := j.recorder.Push(pushCtx, j.cfg.PushgatewayURL, j.cfg.MetricsJob); pushErr != nil {
		j.logger.Warn("Failed to push run metrics",
			slog.String("gateway", j.cfg.PushgatewayURL),
			slog.String("error", pushErr.Error()))
	}
}
