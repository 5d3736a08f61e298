package etl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/movie-explorer/catalog-ingest/internal/catalog"
	"github.com/movie-explorer/catalog-ingest/internal/remote"
	"github.com/movie-explorer/catalog-ingest/internal/storage"
)

type (
	// Catalog is the storage surface a run needs.
	Catalog interface {
		catalog.Loader
		Count(ctx context.Context) (int64, error)
		CheckSchema(ctx context.Context) error
	}

	// Secrets are the credentials resolved once at the start of a run. Never logged.
	Secrets struct {
		DatabaseURL string
		StoreToken  []byte
	}

	// Session is the per-run scope: one catalog connection and one tree client.
	Session struct {
		Catalog Catalog
		Tree    remote.Tree
		// RootID is the tree id the walk starts from.
		RootID string

		close func() error
	}

	// SessionOpener opens the resources of a run.
	SessionOpener interface {
		Open(ctx context.Context, cfg *Config, secrets Secrets) (*Session, error)
	}

	// DefaultOpener connects to PostgreSQL and builds a Drive or directory tree.
	DefaultOpener struct {
		Logger *slog.Logger
	}
)

// NewSession builds a session from already opened parts. closeFn may be nil.
func NewSession(c Catalog, tree remote.Tree, rootID string, closeFn func() error) *Session {
	return &Session{Catalog: c, Tree: tree, RootID: rootID, close: closeFn}
}

// Close releases the session. Safe to call on a nil session.
func (s *Session) Close() error {
	if s == nil || s.close == nil {
		return nil
	}

	closeFn := s.close
	s.close = nil

	return closeFn()
}

// Open connects to the catalog and then builds the tree; the connection is released if the
// tree cannot be built.
func (o DefaultOpener) Open(ctx context.Context, cfg *Config, secrets Secrets) (*Session, error) {
	dbConfig := storage.LoadConfig(secrets.DatabaseURL)
	if err := dbConfig.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	conn, err := storage.NewConnection(ctx, dbConfig)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewMovieStore(conn, storage.WithLogger(o.Logger))
	if err != nil {
		return nil, errors.Join(err, conn.Close())
	}

	tree, rootID, err := o.openTree(ctx, cfg, secrets)
	if err != nil {
		return nil, errors.Join(err, conn.Close())
	}

	return NewSession(store, tree, rootID, conn.Close), nil
}

func (o DefaultOpener) openTree(ctx context.Context, cfg *Config, secrets Secrets) (remote.Tree, string, error) {
	if cfg.RemoteSource == SourceDir {
		tree, err := remote.NewDirTree(cfg.RootFolderID, cfg.Drive.MaxLeafBytes, o.Logger)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", ErrConfiguration, err)
		}

		return tree, remote.RootID, nil
	}

	svc, err := remote.NewDriveService(ctx, secrets.StoreToken)
	if err != nil {
		return nil, "", err
	}

	return remote.NewDriveTree(svc, cfg.Drive, o.Logger), cfg.RootFolderID, nil
}
