package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/movie-explorer/catalog-ingest/internal/config"
	"github.com/movie-explorer/catalog-ingest/internal/credentials"
	"github.com/movie-explorer/catalog-ingest/internal/storage"
	"github.com/movie-explorer/catalog-ingest/migrations"
)

const defaultTimeout = 5 * time.Minute

var (
	errDatabaseURLEmpty = errors.New("DATABASE_URL cannot be empty")
	errTableEmpty       = errors.New("MIGRATION_TABLE cannot be empty")
	errInvalidTimeout   = errors.New("MIGRATION_TIMEOUT must be positive")
)

// Config holds all configuration for the migration tool
type Config struct {
	// MigrationTable is the golang-migrate bookkeeping table
	MigrationTable string

	// Timeout bounds connecting plus the whole command
	Timeout time.Duration

	// Credentials resolves the database URL (DATABASE_URL or a Secrets Manager secret)
	Credentials *credentials.Config
}

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() (*Config, error) {
	cfg := &Config{
		MigrationTable: config.GetEnvStr("MIGRATION_TABLE", migrations.DefaultTable),
		Timeout:        config.GetEnvDuration("MIGRATION_TIMEOUT", defaultTimeout),
		Credentials:    credentials.LoadConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.MigrationTable == "" {
		return errTableEmpty
	}

	if c.Timeout <= 0 {
		return errInvalidTimeout
	}

	if err := c.Credentials.Validate(); err != nil {
		return err
	}

	if c.Credentials.Source == credentials.SourceEnv && c.Credentials.DatabaseURL == "" {
		return errDatabaseURLEmpty
	}

	return nil
}

// String returns a string representation of the configuration (safe for logging)
func (c *Config) String() string {
	database := storage.MaskDatabaseURL(c.Credentials.DatabaseURL)
	if c.Credentials.Source == credentials.SourceSecretsManager {
		database = "secret:" + c.Credentials.DatabaseSecretID
	}

	return fmt.Sprintf("Config{Database: %s, MigrationTable: %s, Timeout: %s}",
		database, c.MigrationTable, c.Timeout)
}
