// Package events applies queued movie records to the catalog in surrogate-key mode.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/movie-explorer/catalog-ingest/internal/catalog"
	"github.com/movie-explorer/catalog-ingest/internal/extract"
)

// envelopeField is the key a wrapped record is nested under.
const envelopeField = "movie"

// ErrInvalidEnvelope is returned when a message body is not a record or a wrapped record.
var ErrInvalidEnvelope = errors.New("invalid event envelope")

// DecodeEnvelope decodes a message body that is either a movie record or {"movie": record}.
// A body holding both a "movie" object and record fields at the top level is read as the
// record itself.
func DecodeEnvelope(body []byte) (*catalog.Movie, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidEnvelope)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}

	record := body

	if nested, ok := fields[envelopeField]; ok {
		if _, hasTitle := fields["title"]; !hasTitle {
			if t := bytes.TrimSpace(nested); len(t) == 0 || t[0] != '{' {
				return nil, fmt.Errorf("%w: %q must be an object", ErrInvalidEnvelope, envelopeField)
			}

			record = nested
		}
	}

	m, err := extract.DecodeRecord(record)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}

	return m, nil
}
