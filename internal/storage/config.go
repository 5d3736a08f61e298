package storage

import (
	"errors"
	"strings"
	"time"

	"github.com/movie-explorer/catalog-ingest/internal/config"
)

const (
	defaultConnectTimeout  = 10 * time.Second
	defaultQueryTimeout    = 30 * time.Second
	defaultConnMaxLifetime = 30 * time.Minute
)

var (
	// ErrDatabaseURLEmpty is returned when the database url is an empty string.
	ErrDatabaseURLEmpty = errors.New("database URL cannot be empty")

	// ErrInvalidTimeout is returned when a configured timeout is not positive.
	ErrInvalidTimeout = errors.New("database timeouts must be greater than zero")
)

// Config holds PostgreSQL connection settings for a single run.
//
// The pool is fixed at one connection: each run owns exactly one catalog session and
// never shares it with another run.
type Config struct {
	databaseURL     string
	ConnectTimeout  time.Duration // Bound on the initial ping
	QueryTimeout    time.Duration // Bound on one load transaction
	ConnMaxLifetime time.Duration
}

// LoadConfig builds a Config for databaseURL, taking timeouts from the environment.
// The URL is resolved by the credential provider rather than read here.
func LoadConfig(databaseURL string) *Config {
	return &Config{
		databaseURL:     databaseURL, // private for obvious reasons
		ConnectTimeout:  config.GetEnvDuration("DATABASE_CONNECT_TIMEOUT", defaultConnectTimeout),
		QueryTimeout:    config.GetEnvDuration("DATABASE_QUERY_TIMEOUT", defaultQueryTimeout),
		ConnMaxLifetime: config.GetEnvDuration("DATABASE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
	}
}

// Validate checks if the PostgreSQL configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.databaseURL) == "" {
		return ErrDatabaseURLEmpty
	}

	if c.ConnectTimeout <= 0 || c.QueryTimeout <= 0 {
		return ErrInvalidTimeout
	}

	return nil
}

// MaskDatabaseURL returns the configured URL safe for logging.
func (c *Config) MaskDatabaseURL() string {
	return MaskDatabaseURL(c.databaseURL)
}

// MaskDatabaseURL replaces the password of a postgres:// URL with ***.
func MaskDatabaseURL(databaseURL string) string {
	if databaseURL == "" {
		return ""
	}

	schemeEnd := strings.Index(databaseURL, "://")
	if schemeEnd == -1 {
		return databaseURL
	}

	afterScheme := databaseURL[schemeEnd+3:]

	// The last @ separates userinfo from host; passwords may contain @.
	lastAtIndex := strings.LastIndex(afterScheme, "@")
	if lastAtIndex == -1 {
		return databaseURL
	}

	userInfo := afterScheme[:lastAtIndex]

	colonIndex := strings.Index(userInfo, ":")
	if colonIndex == -1 || colonIndex == len(userInfo)-1 {
		return databaseURL
	}

	return databaseURL[:schemeEnd] + "://" + userInfo[:colonIndex] + ":***" + afterScheme[lastAtIndex:]
}
