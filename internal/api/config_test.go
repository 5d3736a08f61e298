package api

import (
	"errors"
	"testing"
	"time"
)

func TestLoadServerConfig(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("OPS_SERVER_PORT", "9191")
	t.Setenv("OPS_SERVER_HOST", "")
	t.Setenv("OPS_SERVER_READ_TIMEOUT", "3s")

	cfg := LoadServerConfig()

	if cfg.Port != 9191 {
		t.Errorf("Port = %d, want 9191", cfg.Port)
	}

	if cfg.Host != defaultHost {
		t.Errorf("Host = %q, want %q", cfg.Host, defaultHost)
	}

	if cfg.ReadTimeout != 3*time.Second {
		t.Errorf("ReadTimeout = %v, want 3s", cfg.ReadTimeout)
	}

	if cfg.Address() != "0.0.0.0:9191" {
		t.Errorf("Address() = %q", cfg.Address())
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestServerConfigValidate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name    string
		mutate  func(c *ServerConfig)
		wantErr error
	}{
		{"port zero", func(c *ServerConfig) { c.Port = 0 }, ErrInvalidPort},
		{"port too high", func(c *ServerConfig) { c.Port = 70000 }, ErrInvalidPort},
		{"empty host", func(c *ServerConfig) { c.Host = "" }, ErrEmptyHost},
		{"read timeout", func(c *ServerConfig) { c.ReadTimeout = 0 }, ErrInvalidReadTimeout},
		{"write timeout", func(c *ServerConfig) { c.WriteTimeout = -time.Second }, ErrInvalidWriteTimeout},
		{"shutdown timeout", func(c *ServerConfig) { c.ShutdownTimeout = 0 }, ErrInvalidShutdownTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testServerConfig()
			tt.mutate(cfg)

			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
