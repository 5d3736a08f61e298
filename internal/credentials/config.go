package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/movie-explorer/catalog-ingest/internal/config"
)

// Credential sources.
const (
	SourceEnv            = "env"
	SourceSecretsManager = "secretsmanager"
)

// ErrUnknownSource is returned for an unsupported CREDENTIALS_SOURCE.
var ErrUnknownSource = errors.New("unknown credentials source")

// Config selects and parameterizes the provider.
type Config struct {
	Source           string
	Region           string
	DatabaseSecretID string
	DriveSecretID    string
	DatabaseURL      string
	DriveTokenFile   string
}

// LoadConfig reads the provider settings from the environment.
func LoadConfig() *Config {
	return &Config{
		Source:           config.GetEnvStr("CREDENTIALS_SOURCE", SourceEnv),
		Region:           config.GetEnvStr("AWS_REGION", ""),
		DatabaseSecretID: config.GetEnvStr("DATABASE_SECRET_ID", ""),
		DriveSecretID:    config.GetEnvStr("DRIVE_SECRET_ID", ""),
		DatabaseURL:      config.GetEnvStr("DATABASE_URL", ""),
		DriveTokenFile:   config.GetEnvStr("DRIVE_TOKEN_FILE", ""),
	}
}

// Validate checks the source and its required keys.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceEnv:
		return nil
	case SourceSecretsManager:
		if c.DatabaseSecretID == "" {
			return fmt.Errorf("%w: DATABASE_SECRET_ID is required for %s", ErrCredentials, SourceSecretsManager)
		}

		return nil
	default:
		return fmt.Errorf("%w: %w: %q", ErrCredentials, ErrUnknownSource, c.Source)
	}
}

// NewProvider builds the provider selected by cfg.
func NewProvider(ctx context.Context, cfg *Config, logger *slog.Logger) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Source == SourceSecretsManager {
		return NewSecretsManagerProviderFromEnv(ctx, cfg.Region, logger)
	}

	return &EnvProvider{DatabaseURL: cfg.DatabaseURL, TokenFile: cfg.DriveTokenFile}, nil
}
