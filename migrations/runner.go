package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// DefaultTable is the golang-migrate bookkeeping table.
const DefaultTable = "schema_migrations"

type (
	// Runner applies the embedded migrations to one database using golang-migrate.
	Runner struct {
		set     *Set
		migrate *migrate.Migrate
		db      *sql.DB
		logger  *slog.Logger
	}

	// Status is the schema state of a database relative to the embedded set.
	Status struct {
		Version    uint
		Applied    bool
		Dirty      bool
		MaxVersion int
	}

	migrateLogger struct {
		logger *slog.Logger
	}
)

var _ migrate.Logger = (*migrateLogger)(nil)

// NewRunner validates the embedded set, connects to databaseURL and prepares golang-migrate.
// table may be empty to use DefaultTable.
func NewRunner(ctx context.Context, databaseURL, table string, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if table == "" {
		table = DefaultTable
	}

	set := NewSet(nil)
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("embedded migration validation failed: %w", err)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: table})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	source, err := iofs.New(set.FS(), ".")
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create embedded migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	m.Log = &migrateLogger{logger: logger}

	logger.Info("Migration runner initialized",
		slog.String("table", table),
		slog.Int("embedded_version", set.MaxVersion()))

	return &Runner{
		set:     set,
		migrate: m,
		db:      db,
		logger:  logger,
	}, nil
}

// Apply runs all pending migrations against databaseURL and closes the runner.
func Apply(ctx context.Context, databaseURL string, logger *slog.Logger) error {
	r, err := NewRunner(ctx, databaseURL, "", logger)
	if err != nil {
		return err
	}

	defer func() {
		_ = r.Close()
	}()

	return r.Up()
}

// Up applies all pending migrations. An up-to-date schema is not an error.
func (r *Runner) Up() error {
	if err := r.set.Validate(); err != nil {
		return fmt.Errorf("pre-operation validation failed: %w", err)
	}

	err := r.migrate.Up()

	switch {
	case errors.Is(err, migrate.ErrNoChange):
		r.logger.Info("No new migrations to apply")
	case err != nil:
		return fmt.Errorf("migration up failed: %w", err)
	default:
		r.logger.Info("All migrations applied successfully")
	}

	return nil
}

// Down rolls back the last applied migration.
func (r *Runner) Down() error {
	if err := r.set.Validate(); err != nil {
		return fmt.Errorf("pre-operation validation failed: %w", err)
	}

	err := r.migrate.Steps(-1)

	switch {
	case errors.Is(err, migrate.ErrNoChange):
		r.logger.Info("No migrations to roll back")
	case err != nil:
		return fmt.Errorf("migration down failed: %w", err)
	default:
		r.logger.Info("Last migration rolled back")
	}

	return nil
}

// Status reports the applied version. A database with no migrations has Applied == false.
func (r *Runner) Status() (Status, error) {
	st := Status{MaxVersion: r.set.MaxVersion()}

	ver, dirty, err := r.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return st, nil
	}

	if err != nil {
		return st, fmt.Errorf("failed to get migration version: %w", err)
	}

	st.Version = ver
	st.Applied = true
	st.Dirty = dirty

	return st, nil
}

// Drop removes every object in the database. Destructive.
func (r *Runner) Drop() error {
	if err := r.set.Validate(); err != nil {
		return fmt.Errorf("pre-operation validation failed: %w", err)
	}

	r.logger.Warn("Dropping all tables")

	if err := r.migrate.Drop(); err != nil {
		return fmt.Errorf("drop operation failed: %w", err)
	}

	return nil
}

// Close releases the migrate instance and the database connection.
func (r *Runner) Close() error {
	var errs []error

	if r.migrate != nil {
		sourceErr, dbErr := r.migrate.Close()
		if sourceErr != nil {
			errs = append(errs, fmt.Errorf("source close error: %w", sourceErr))
		}

		if dbErr != nil {
			errs = append(errs, fmt.Errorf("database close error: %w", dbErr))
		}
	}

	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database connection close error: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Compatibility describes how the applied version relates to the embedded set.
func (s Status) Compatibility() string {
	current := 0
	if s.Applied {
		current = int(s.Version) // #nosec G115 - migration versions are small
	}

	switch {
	case current == s.MaxVersion:
		return "up to date"
	case current < s.MaxVersion:
		return fmt.Sprintf("%d migration(s) pending", s.MaxVersion-current)
	default:
		return fmt.Sprintf("database schema v%03d is newer than this binary supports (v%03d)", current, s.MaxVersion)
	}
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "migrate"))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
