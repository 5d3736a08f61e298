package remote

import (
	"errors"
	"fmt"
)

// ErrRemoteAccess is the sentinel every *AccessError matches with errors.Is.
var ErrRemoteAccess = errors.New("remote access failed")

// Kind distinguishes remote failures for logging. All kinds propagate as *AccessError.
type Kind string

// Remote failure kinds.
const (
	KindNotFound     Kind = "not_found"
	KindAccessDenied Kind = "access_denied"
	KindUnavailable  Kind = "unavailable"
	KindTooLarge     Kind = "too_large"
)

// AccessError reports a failed list, fetch or describe call on one node.
type AccessError struct {
	Op   string // "list", "fetch" or "describe"
	ID   string
	Kind Kind
	Err  error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("remote %s %s: %s: %v", e.Op, e.ID, e.Kind, e.Err)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

// Is makes every AccessError match ErrRemoteAccess.
func (e *AccessError) Is(target error) bool {
	return target == ErrRemoteAccess //nolint:errorlint
}

// KindOf returns the kind of the first *AccessError in err's chain, or "".
func KindOf(err error) Kind {
	var accessErr *AccessError
	if errors.As(err, &accessErr) {
		return accessErr.Kind
	}

	return ""
}
