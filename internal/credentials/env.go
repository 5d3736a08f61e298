package credentials

import (
	"context"
	"fmt"
	"os"
	"strings"
)

var _ Provider = (*EnvProvider)(nil)

// EnvProvider serves credentials from local configuration: a database URL and a token file.
// Keys are ignored. Used for local runs and tests.
type EnvProvider struct {
	DatabaseURL string
	TokenFile   string
}

// DatabaseCredentials returns the configured URL.
func (p *EnvProvider) DatabaseCredentials(_ context.Context, _ string) (*DatabaseCredentials, error) {
	if strings.TrimSpace(p.DatabaseURL) == "" {
		return nil, fmt.Errorf("%w: DATABASE_URL is not set", ErrCredentials)
	}

	return &DatabaseCredentials{RawURL: p.DatabaseURL}, nil
}

// StoreToken reads the token file.
func (p *EnvProvider) StoreToken(_ context.Context, _ string) ([]byte, error) {
	if p.TokenFile == "" {
		return nil, fmt.Errorf("%w: DRIVE_TOKEN_FILE is not set", ErrCredentials)
	}

	data, err := os.ReadFile(p.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read token file: %w", ErrCredentials, err)
	}

	return data, nil
}
