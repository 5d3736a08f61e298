// Package credentials resolves catalog and remote-store secrets once per run.
//
// Secrets are fetched on demand and never persisted or logged.
package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ErrCredentials is wrapped by every provider failure. Fatal for a run.
var ErrCredentials = errors.New("credential provider failure")

const defaultPostgresPort = 5432

type (
	// Provider resolves secrets by key.
	Provider interface {
		// DatabaseCredentials returns the catalog connection credentials stored under key.
		DatabaseCredentials(ctx context.Context, key string) (*DatabaseCredentials, error)

		// StoreToken returns the opaque remote-store token document stored under key.
		StoreToken(ctx context.Context, key string) ([]byte, error)
	}

	// DatabaseCredentials is the catalog connection secret.
	//
	// Secret document shape: {"host", "port", "dbname", "username", "password"}, with port as
	// a number or a string. A RawURL, when set, takes precedence over the fields.
	DatabaseCredentials struct {
		Host     string
		Port     int
		Database string
		Username string
		Password string
		SSLMode  string
		RawURL   string
	}

	databaseSecret struct {
		Host     string      `json:"host"`
		Port     json.Number `json:"port"`
		DBName   string      `json:"dbname"`
		Database string      `json:"database"`
		Username string      `json:"username"`
		Password string      `json:"password"`
		SSLMode  string      `json:"sslmode"`
	}
)

// ParseDatabaseSecret decodes a database secret document.
func ParseDatabaseSecret(document []byte) (*DatabaseCredentials, error) {
	var s databaseSecret

	dec := json.NewDecoder(bytes.NewReader(document))
	dec.UseNumber()

	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: malformed database secret: %w", ErrCredentials, err)
	}

	creds := &DatabaseCredentials{
		Host:     s.Host,
		Port:     defaultPostgresPort,
		Database: s.DBName,
		Username: s.Username,
		Password: s.Password,
		SSLMode:  s.SSLMode,
	}

	if creds.Database == "" {
		creds.Database = s.Database
	}

	if raw := strings.TrimSpace(s.Port.String()); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("%w: invalid port %q", ErrCredentials, raw)
		}

		creds.Port = port
	}

	if err := creds.Validate(); err != nil {
		return nil, err
	}

	return creds, nil
}

// Validate checks that the fields needed for a connection are present.
func (c *DatabaseCredentials) Validate() error {
	if c.RawURL != "" {
		return nil
	}

	var missing []string

	if c.Host == "" {
		missing = append(missing, "host")
	}

	if c.Database == "" {
		missing = append(missing, "dbname")
	}

	if c.Username == "" {
		missing = append(missing, "username")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: database secret missing %s", ErrCredentials, strings.Join(missing, ", "))
	}

	return nil
}

// URL renders a lib/pq connection URL. SSL mode defaults to "require".
func (c *DatabaseCredentials) URL() string {
	if c.RawURL != "" {
		return c.RawURL
	}

	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}

	return u.String()
}
