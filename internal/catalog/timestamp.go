package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// WireTimestampLayout is the request-time format stamped on queued records by the upstream
// API gateway: day/abbreviated-month/year:hour:minute:second, a space, and a numeric UTC
// offset without separators. Example: "21/Jul/2025:15:11:36 +0000".
const WireTimestampLayout = "02/Jan/2006:15:04:05 -0700"

// CatalogTimestampLayout is the representation persisted in created_at / updated_at.
const CatalogTimestampLayout = "2006-01-02 15:04:05"

// ErrInvalidTimestamp is returned when a value matches neither accepted grammar.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// ParseWireTimestamp parses a value in WireTimestampLayout and returns it in UTC.
// Values already in CatalogTimestampLayout are accepted as UTC so that normalization is idempotent.
func ParseWireTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)

	if t, err := time.Parse(WireTimestampLayout, value); err == nil {
		return t.UTC(), nil
	}

	if t, err := time.Parse(CatalogTimestampLayout, value); err == nil {
		return t.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("%w: %q does not match %q", ErrInvalidTimestamp, value, WireTimestampLayout)
}

// NormalizeTimestamp converts a wire timestamp into CatalogTimestampLayout.
//
// Fallback policy: an empty value yields now without complaint; an unparsable value yields
// now together with the parse error so the caller can log a warning. It never fails the load.
func NormalizeTimestamp(value string, now time.Time) (string, error) {
	fallback := now.UTC().Format(CatalogTimestampLayout)

	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}

	t, err := ParseWireTimestamp(value)
	if err != nil {
		return fallback, err
	}

	return t.Format(CatalogTimestampLayout), nil
}
