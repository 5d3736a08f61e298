// Package testutil holds integration test infrastructure shared across packages.
package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/movie-explorer/catalog-ingest/migrations"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const (
	occurrenceCount = 2
	startUpTimeOut  = 120 * time.Second
)

// TestDatabase is a migrated PostgreSQL container plus an open handle to it.
type TestDatabase struct {
	Container *postgres.PostgresContainer
	URL       string
	DB        *sql.DB
}

// SetupTestDatabase starts postgres:16-alpine, applies the embedded migrations and registers
// cleanup with t. Callers gate on testing.Short() themselves.
//
//	func TestLoad(t *testing.T) {
//		if testing.Short() {
//			t.Skip("skipping integration test in short mode")
//		}
//		testDB := testutil.SetupTestDatabase(context.Background(), t)
//		...
//	}
func SetupTestDatabase(ctx context.Context, t *testing.T) *TestDatabase {
	t.Helper()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("catalog_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(occurrenceCount).
				WithStartupTimeout(startUpTimeOut),
		),
	)
	require.NoError(t, err, "Failed to start postgres container")
	require.NotNil(t, pgContainer, "postgres container is nil")

	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(pgContainer)
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	require.NoError(t, migrations.Apply(ctx, connStr, nil), "Failed to run migrations")

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err, "Failed to open database")

	t.Cleanup(func() {
		_ = db.Close()
	})

	return &TestDatabase{
		Container: pgContainer,
		URL:       connStr,
		DB:        db,
	}
}

// Truncate empties the movie catalog between subtests.
func (d *TestDatabase) Truncate(ctx context.Context, t *testing.T) {
	t.Helper()

	_, err := d.DB.ExecContext(ctx, "TRUNCATE TABLE movies")
	require.NoError(t, err, "Failed to truncate movies")
}
