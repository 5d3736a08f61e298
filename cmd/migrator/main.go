// Package main provides the database migration CLI for the movie catalog.
//
// Migrations are embedded in the binary; the tool needs only database credentials,
// resolved the same way as the ingester (DATABASE_URL or AWS Secrets Manager).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/movie-explorer/catalog-ingest/internal/config"
	"github.com/movie-explorer/catalog-ingest/internal/credentials"
	"github.com/movie-explorer/catalog-ingest/migrations"
)

// Version information
const (
	version = "1.0.0-dev"
	name    = "migrator"
)

// migrationRunner is the subset of migrations.Runner the commands use.
type migrationRunner interface {
	Up() error
	Down() error
	Status() (migrations.Status, error)
	Drop() error
	Close() error
}

var _ migrationRunner = (*migrations.Runner)(nil)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		showHelp    = flag.Bool("help", false, "Show help information")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s v%s\n", name, version)

		return 0
	}

	if *showHelp || flag.NArg() < 1 {
		printUsage(os.Stdout)

		return 0
	}

	command := flag.Arg(0)
	logger := config.NewLogger()

	cfg, err := LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", slog.String("error", err.Error()))

		return 1
	}

	logger.Info("Migrator starting", slog.String("command", command), slog.String("config", cfg.String()))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	databaseURL, err := resolveDatabaseURL(ctx, cfg.Credentials, logger)
	if err != nil {
		logger.Error("Failed to resolve database credentials", slog.String("error", err.Error()))

		return 1
	}

	runner, err := migrations.NewRunner(ctx, databaseURL, cfg.MigrationTable, logger)
	if err != nil {
		logger.Error("Failed to create migration runner", slog.String("error", err.Error()))

		return 1
	}

	defer func() {
		if err := runner.Close(); err != nil {
			logger.Warn("Failed to close migration runner", slog.String("error", err.Error()))
		}
	}()

	if err := executeCommand(command, runner, os.Stdin, os.Stdout); err != nil {
		logger.Error("Migration failed", slog.String("command", command), slog.String("error", err.Error()))

		return 1
	}

	return 0
}

func resolveDatabaseURL(ctx context.Context, cfg *credentials.Config, logger *slog.Logger) (string, error) {
	provider, err := credentials.NewProvider(ctx, cfg, logger)
	if err != nil {
		return "", err
	}

	creds, err := provider.DatabaseCredentials(ctx, cfg.DatabaseSecretID)
	if err != nil {
		return "", err
	}

	return creds.URL(), nil
}

// executeCommand runs the specified migration command
func executeCommand(command string, runner migrationRunner, in io.Reader, out io.Writer) error {
	switch command {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "status":
		st, err := runner.Status()
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(out, "Schema version:   %s\nEmbedded version: v%03d\nDirty:            %t\nStatus:           %s\n",
			formatVersion(st), st.MaxVersion, st.Dirty, st.Compatibility())

		return err
	case "version":
		st, err := runner.Status()
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(out, formatVersion(st))

		return err
	case "drop":
		_, _ = fmt.Fprint(out, "WARNING: This will drop all tables. Are you sure? (y/N): ")

		if !confirmed(in) {
			_, _ = fmt.Fprintln(out, "Operation cancelled.")

			return nil
		}

		return runner.Drop()
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func formatVersion(st migrations.Status) string {
	if !st.Applied {
		return "none"
	}

	return fmt.Sprintf("v%03d", st.Version)
}

func confirmed(in io.Reader) bool {
	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.TrimSpace(line)

	return answer == "y" || answer == "Y"
}

// printUsage displays usage information
func printUsage(w io.Writer) {
	_, _ = fmt.Fprintf(w, `%s v%s - Database Migration Tool for the movie catalog

USAGE:
    %s [OPTIONS] COMMAND

COMMANDS:
    up      Apply all pending migrations
    down    Rollback the last migration
    status  Show migration status
    version Show current migration version
    drop    Drop all tables (requires confirmation)

OPTIONS:
    --help     Show this help message
    --version  Show version information

ENVIRONMENT VARIABLES:
    DATABASE_URL        PostgreSQL connection string (required with CREDENTIALS_SOURCE=env)

    CREDENTIALS_SOURCE  env or secretsmanager (default: env)

    DATABASE_SECRET_ID  Secrets Manager secret holding the database credentials

    MIGRATION_TABLE     Name of migration tracking table
                        (default: schema_migrations)

    MIGRATION_TIMEOUT   Bound on the whole command (default: 5m)

EXAMPLES:
    %s up          # Apply all pending migrations
    %s status      # Show current migration status
    %s down        # Rollback last migration
    %s --version   # Show version information
`, name, version, name, name, name, name, name)
}
