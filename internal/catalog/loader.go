package catalog

import (
	"context"
	"errors"
)

// ErrUnavailable is wrapped by Loader errors that mean the catalog itself cannot be used
// (lost connection, missing table). Callers stop rather than continue with the next record.
var ErrUnavailable = errors.New("catalog unavailable")

// ConflictKey selects the identity a load deduplicates on.
type ConflictKey int

const (
	// NaturalKeyConflict deduplicates on (title, genre, rating, year). Used by the bulk path,
	// whose records carry no identifier.
	NaturalKeyConflict ConflictKey = iota

	// SurrogateKeyConflict deduplicates on the supplied id. Used by the event path, whose
	// records arrive with an upstream-assigned identifier. The natural-key constraint still
	// applies, so content duplicates with a different id are skipped as well.
	SurrogateKeyConflict
)

// String returns the log label of the conflict key.
func (k ConflictKey) String() string {
	switch k {
	case NaturalKeyConflict:
		return "natural_key"
	case SurrogateKeyConflict:
		return "surrogate_key"
	default:
		return "unknown"
	}
}

// Status is the result classification of a single load.
type Status int

const (
	// StatusInserted means a new row was written.
	StatusInserted Status = iota + 1

	// StatusAlreadyExists means a conflicting row was present and the record was skipped.
	StatusAlreadyExists
)

// String returns the log label of the status.
func (s Status) String() string {
	switch s {
	case StatusInserted:
		return "inserted"
	case StatusAlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}

// Outcome reports what a load did. ID is set only when a row was inserted.
type Outcome struct {
	Status Status
	ID     string
}

// Inserted returns an outcome for a newly written row.
func Inserted(id string) Outcome {
	return Outcome{Status: StatusInserted, ID: id}
}

// AlreadyExists returns an outcome for a skipped duplicate.
func AlreadyExists() Outcome {
	return Outcome{Status: StatusAlreadyExists}
}

// IsInserted reports whether the load wrote a new row.
func (o Outcome) IsInserted() bool {
	return o.Status == StatusInserted
}

// Loader is the idempotent write contract of the catalog.
//
// The domain package defines what it needs; the PostgreSQL implementation lives in
// internal/storage. Implementations must:
//   - perform insert-or-skip as a single atomic statement (never check-then-insert),
//   - commit or roll back each load as its own transaction,
//   - never update or merge an existing row.
//
// A conflicting insert is not an error: it returns StatusAlreadyExists with a nil error.
type Loader interface {
	Load(ctx context.Context, movie *Movie, key ConflictKey) (Outcome, error)
}
