// Package etl runs one bulk ingestion: it resolves credentials, opens a catalog session and a
// remote tree, walks the tree and releases the session.
package etl

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/movie-explorer/catalog-ingest/internal/config"
	"github.com/movie-explorer/catalog-ingest/internal/credentials"
	"github.com/movie-explorer/catalog-ingest/internal/extract"
	"github.com/movie-explorer/catalog-ingest/internal/remote"
)

// DefaultConfigPath is the run profile read when INGEST_CONFIG_PATH is unset.
const DefaultConfigPath = ".movie-ingest.yaml"

// ConfigPathEnvVar names the environment variable holding the run profile path.
const ConfigPathEnvVar = "INGEST_CONFIG_PATH"

// Remote sources.
const (
	SourceDrive = "drive"
	SourceDir   = "dir"
)

const (
	defaultRootName = "root"
	defaultJobName  = "movie_ingest"
)

// ErrConfiguration is returned for settings that make a run impossible. Fatal before any work.
var ErrConfiguration = errors.New("invalid ingestion configuration")

type (
	// Profile is the optional YAML run profile. Environment variables override it.
	//
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	Profile struct {
		RootFolderID   string `yaml:"root_folder_id"`
		RootFolderName string `yaml:"root_folder_name"`
		RecordSuffix   string `yaml:"record_suffix"`
		MaxDepth       int    `yaml:"max_depth"`
		MaxRecordBytes int64  `yaml:"max_record_bytes"`
		RemoteSource   string `yaml:"remote_source"`
	}

	// Config is the resolved settings of one bulk run.
	Config struct {
		// RootFolderID is the Drive folder id, or the local directory for SourceDir.
		RootFolderID   string
		RootFolderName string
		RecordSuffix   string
		MaxDepth       int
		RemoteSource   string
		PushgatewayURL string
		MetricsJob     string

		Drive       remote.DriveConfig
		Credentials *credentials.Config
	}
)

// LoadProfile reads a run profile. A missing, unreadable or invalid file yields an empty
// profile and a log line; the profile is optional.
func LoadProfile(path string) *Profile {
	profile := &Profile{}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Run profile not found, using environment only", slog.String("path", path))

			return profile
		}

		slog.Warn("Failed to read run profile, using environment only",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return profile
	}

	if len(data) == 0 {
		return profile
	}

	if err := yaml.Unmarshal(data, profile); err != nil {
		slog.Warn("Failed to parse run profile, using environment only",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return &Profile{}
	}

	return profile
}

// LoadConfig merges the run profile at INGEST_CONFIG_PATH with the environment.
func LoadConfig() *Config {
	profile := LoadProfile(config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath))

	drive := remote.LoadDriveConfig()
	if profile.MaxRecordBytes > 0 && os.Getenv("MAX_RECORD_BYTES") == "" {
		drive.MaxLeafBytes = profile.MaxRecordBytes
	}

	return &Config{
		RootFolderID:   config.GetEnvStr("TARGET_FOLDER_ID", profile.RootFolderID),
		RootFolderName: config.GetEnvStr("ROOT_FOLDER_NAME", orDefault(profile.RootFolderName, defaultRootName)),
		RecordSuffix:   config.GetEnvStr("RECORD_FILE_SUFFIX", orDefault(profile.RecordSuffix, extract.DefaultSuffix)),
		MaxDepth:       config.GetEnvInt("TRAVERSAL_MAX_DEPTH", profile.MaxDepth),
		RemoteSource:   config.GetEnvStr("REMOTE_SOURCE", orDefault(profile.RemoteSource, SourceDrive)),
		PushgatewayURL: config.GetEnvStr("METRICS_PUSHGATEWAY_URL", ""),
		MetricsJob:     config.GetEnvStr("METRICS_JOB_NAME", defaultJobName),
		Drive:          drive,
		Credentials:    credentials.LoadConfig(),
	}
}

// Validate reports the first setting that prevents a run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RootFolderID) == "" {
		return fmt.Errorf("%w: TARGET_FOLDER_ID is required", ErrConfiguration)
	}

	if c.MaxDepth < 0 {
		return fmt.Errorf("%w: TRAVERSAL_MAX_DEPTH cannot be negative", ErrConfiguration)
	}

	if c.Drive.MaxLeafBytes < 0 {
		return fmt.Errorf("%w: MAX_RECORD_BYTES cannot be negative", ErrConfiguration)
	}

	switch c.RemoteSource {
	case SourceDrive, SourceDir:
	default:
		return fmt.Errorf("%w: REMOTE_SOURCE must be %s or %s, got %q", ErrConfiguration, SourceDrive, SourceDir, c.RemoteSource)
	}

	if c.Credentials == nil {
		return fmt.Errorf("%w: credentials configuration is missing", ErrConfiguration)
	}

	if c.RemoteSource == SourceDrive && c.Credentials.Source == credentials.SourceSecretsManager &&
		c.Credentials.DriveSecretID == "" {
		return fmt.Errorf("%w: DRIVE_SECRET_ID is required for the drive source", ErrConfiguration)
	}

	return nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}
