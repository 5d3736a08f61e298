// Package storage implements the idempotent movie catalog loader on PostgreSQL.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/movie-explorer/catalog-ingest/internal/catalog"
)

var (
	// ErrNoDatabaseConnection is returned when a store is built without a connection.
	ErrNoDatabaseConnection = errors.New("no database connection")

	// ErrConnectionFailed is returned when the catalog cannot be reached. Fatal for a run.
	ErrConnectionFailed = fmt.Errorf("%w: database connection failed", catalog.ErrUnavailable)
)

// Connection is the single catalog session of a run.
type Connection struct {
	*sql.DB

	config    *Config
	closeOnce sync.Once
	closeErr  error
}

// NewConnection opens and pings the catalog. The returned connection must be closed by the
// caller on every exit path.
func NewConnection(ctx context.Context, cfg *Config) (*Connection, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrConnectionFailed)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	db, err := sql.Open("postgres", cfg.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.MaskDatabaseURL(), err)
	}

	return &Connection{DB: db, config: cfg}, nil
}

// HealthCheck pings the catalog within the configured connect timeout.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if c == nil || c.DB == nil {
		return ErrNoDatabaseConnection
	}

	pingCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	if err := c.PingContext(pingCtx); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return nil
}

// Close releases the session. Safe to call more than once.
func (c *Connection) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}

	c.closeOnce.Do(func() {
		c.closeErr = c.DB.Close()
	})

	return c.closeErr
}
