package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvStr(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("TEST_FOLDER_ID", "folder-123")
	assert.Equal(t, "folder-123", GetEnvStr("TEST_FOLDER_ID", "default"))

	t.Setenv("TEST_FOLDER_ID", "")
	assert.Equal(t, "default", GetEnvStr("TEST_FOLDER_ID", "default"))
}

func TestGetEnvNumbers(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name      string
		value     string
		wantInt   int
		wantInt64 int64
		wantFloat float64
	}{
		{name: "valid", value: "42", wantInt: 42, wantInt64: 42, wantFloat: 42},
		{name: "surrounding whitespace", value: " 7 ", wantInt: 7, wantInt64: 7, wantFloat: 7},
		{name: "fractional only parses as float", value: "2.5", wantInt: -1, wantInt64: -1, wantFloat: 2.5},
		{name: "garbage falls back", value: "ten", wantInt: -1, wantInt64: -1, wantFloat: -1},
		{name: "unset falls back", value: "", wantInt: -1, wantInt64: -1, wantFloat: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_NUMBER", tt.value)

			assert.Equal(t, tt.wantInt, GetEnvInt("TEST_NUMBER", -1))
			assert.Equal(t, tt.wantInt64, GetEnvInt64("TEST_NUMBER", -1))
			assert.InDelta(t, tt.wantFloat, GetEnvFloat("TEST_NUMBER", -1), 0.0001)
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("TEST_WINDOW", "750ms")
	assert.Equal(t, 750*time.Millisecond, GetEnvDuration("TEST_WINDOW", time.Second))

	t.Setenv("TEST_WINDOW", "5")
	assert.Equal(t, time.Second, GetEnvDuration("TEST_WINDOW", time.Second))
}

func TestGetEnvLogLevel(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		value string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"Warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_LOG_LEVEL", tt.value)
			assert.Equal(t, tt.want, GetEnvLogLevel("TEST_LOG_LEVEL", slog.LevelInfo))
		})
	}
}

func TestParseCommaSeparatedList(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Equal(t, []string{}, ParseCommaSeparatedList(""))
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, ParseCommaSeparatedList(" broker-1:9092, ,broker-2:9092 ,"))
}
