package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/movie-explorer/catalog-ingest/internal/catalog"
	"github.com/movie-explorer/catalog-ingest/internal/config"
)

// Sentinel errors for catalog load operations.
var (
	// ErrLoadFailed is returned when a single record could not be loaded. The record's
	// transaction has been rolled back; the run continues.
	ErrLoadFailed = errors.New("movie load failed")

	// ErrConstraintViolation is returned when the catalog rejects a record on a check constraint.
	ErrConstraintViolation = errors.New("catalog constraint violation")

	// ErrCatalogMissing is returned when the movies table does not exist. Fatal for a run.
	ErrCatalogMissing = fmt.Errorf("%w: movie catalog table does not exist", catalog.ErrUnavailable)

	_ catalog.Loader = (*MovieStore)(nil)
)

const (
	insertByNaturalKey = `
		INSERT INTO movies (title, genre, rating, year)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (title, genre, rating, year) DO NOTHING
		RETURNING id::text`

	// No conflict target: the row is skipped when either the id primary key or the
	// unique_movie_combination constraint conflicts.
	insertBySurrogateKey = `
		INSERT INTO movies (id, title, genre, rating, year, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6::timestamp, $7::timestamp)
		ON CONFLICT DO NOTHING
		RETURNING id::text`

	pgCheckViolation = "23514"
	pgNotNull        = "23502"
	pgStringTooLong  = "22001"
	pgNumericRange   = "22003"
	pgUndefinedTable = "42P01"
)

type (
	// MovieStore implements catalog.Loader with PostgreSQL insert-or-skip semantics.
	//
	// Each Load is one transaction containing one INSERT ... ON CONFLICT DO NOTHING statement,
	// so concurrent loads of the same record cannot both insert. Existing rows are never updated.
	MovieStore struct {
		conn         *Connection
		logger       *slog.Logger
		now          func() time.Time
		queryTimeout time.Duration
	}

	// MovieStoreOption configures optional MovieStore behavior.
	MovieStoreOption func(*MovieStore)
)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) MovieStoreOption {
	return func(s *MovieStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the processing-time source used for timestamp fallback.
func WithClock(now func() time.Time) MovieStoreOption {
	return func(s *MovieStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMovieStore creates a loader over conn.
// Returns ErrNoDatabaseConnection if conn is nil.
func NewMovieStore(conn *Connection, opts ...MovieStoreOption) (*MovieStore, error) {
	if conn == nil || conn.DB == nil {
		return nil, ErrNoDatabaseConnection
	}

	store := &MovieStore{
		conn:         conn,
		logger:       config.NewLogger(),
		now:          time.Now,
		queryTimeout: defaultQueryTimeout,
	}

	if conn.config != nil && conn.config.QueryTimeout > 0 {
		store.queryTimeout = conn.config.QueryTimeout
	}

	for _, opt := range opts {
		opt(store)
	}

	return store, nil
}

// Load inserts movie unless a conflicting row exists.
//
// Return value combinations:
//   - (Outcome{StatusInserted, id}, nil) → new row written
//   - (Outcome{StatusAlreadyExists}, nil) → duplicate skipped, catalog unchanged
//   - (Outcome{}, err) → ErrLoadFailed, transaction rolled back
//
// In SurrogateKeyConflict mode the record must carry a UUID id, and its created_at and
// updated_at are normalized (see catalog.NormalizeTimestamp). An unparsable timestamp is
// replaced by processing time and logged; it never fails the load.
func (s *MovieStore) Load(ctx context.Context, movie *catalog.Movie, key catalog.ConflictKey) (catalog.Outcome, error) {
	if movie == nil {
		return catalog.Outcome{}, fmt.Errorf("%w: %w", ErrLoadFailed, catalog.ErrNilMovie)
	}

	m := *movie
	m.Normalize()

	if err := catalog.Validate(&m); err != nil {
		return catalog.Outcome{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	query, args, err := s.buildInsert(&m, key)
	if err != nil {
		return catalog.Outcome{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return catalog.Outcome{}, s.classify(err, "failed to begin transaction")
	}

	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	var id string

	err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return catalog.Outcome{}, s.classify(err, "insert failed")
	}

	inserted := err == nil

	if err := tx.Commit(); err != nil {
		return catalog.Outcome{}, s.classify(err, "failed to commit transaction")
	}

	if !inserted {
		s.logger.Debug("Duplicate movie skipped",
			slog.String("movie", m.Key().String()),
			slog.String("conflict_key", key.String()))

		return catalog.AlreadyExists(), nil
	}

	s.logger.Debug("Movie inserted",
		slog.String("id", id),
		slog.String("movie", m.Key().String()),
		slog.String("conflict_key", key.String()))

	return catalog.Inserted(id), nil
}

// Count returns the number of rows in the catalog.
func (s *MovieStore) Count(ctx context.Context) (int64, error) {
	var n int64

	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM movies`).Scan(&n); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUndefinedTable {
			return 0, ErrCatalogMissing
		}

		return 0, fmt.Errorf("failed to count movies: %w", err)
	}

	return n, nil
}

// CheckSchema verifies the movies table exists in the current schema.
func (s *MovieStore) CheckSchema(ctx context.Context) error {
	var exists bool

	err := s.conn.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = 'movies'
		)`).Scan(&exists)
	if err != nil {
		if isDatabaseConnectionError(err) {
			return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}

		return fmt.Errorf("failed to check catalog schema: %w", err)
	}

	if !exists {
		return ErrCatalogMissing
	}

	return nil
}

// HealthCheck delegates to the underlying connection.
func (s *MovieStore) HealthCheck(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}

func (s *MovieStore) buildInsert(m *catalog.Movie, key catalog.ConflictKey) (string, []any, error) {
	switch key {
	case catalog.NaturalKeyConflict:
		return insertByNaturalKey, []any{m.Title, m.Genre, m.Rating, m.Year}, nil

	case catalog.SurrogateKeyConflict:
		if err := catalog.ValidateID(m); err != nil {
			return "", nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
		}

		now := s.now()
		createdAt := s.normalizeTimestamp(m, "created_at", m.CreatedAt, now)
		updatedAt := s.normalizeTimestamp(m, "updated_at", m.UpdatedAt, now)

		return insertBySurrogateKey,
			[]any{m.ID, m.Title, m.Genre, m.Rating, m.Year, createdAt, updatedAt}, nil

	default:
		return "", nil, fmt.Errorf("%w: unknown conflict key %d", ErrLoadFailed, key)
	}
}

func (s *MovieStore) normalizeTimestamp(m *catalog.Movie, field, value string, now time.Time) string {
	normalized, err := catalog.NormalizeTimestamp(value, now)
	if err != nil {
		s.logger.Warn("Unparsable timestamp replaced with processing time",
			slog.String("id", m.ID),
			slog.String("field", field),
			slog.String("value", value),
			slog.String("replacement", normalized))
	}

	return normalized
}

// classify wraps a database error as ErrLoadFailed, marking constraint rejections and
// connection loss so callers can tell them apart.
func (s *MovieStore) classify(err error, msg string) error {
	if isDatabaseConnectionError(err) {
		return fmt.Errorf("%w: %w: %s: %w", ErrLoadFailed, ErrConnectionFailed, msg, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgCheckViolation, pgNotNull, pgStringTooLong, pgNumericRange:
			return fmt.Errorf("%w: %w: %s (%s): %w",
				ErrLoadFailed, ErrConstraintViolation, msg, pqErr.Constraint, err)
		case pgUndefinedTable:
			return fmt.Errorf("%w: %w: %w", ErrLoadFailed, ErrCatalogMissing, err)
		}
	}

	return fmt.Errorf("%w: %s: %w", ErrLoadFailed, msg, err)
}

// isDatabaseConnectionError checks if an error indicates database connection failure.
// PostgreSQL class 08 is connection_exception; database/sql reports the rest.
func isDatabaseConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return strings.HasPrefix(string(pqErr.Code), "08")
	}

	return errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn)
}
