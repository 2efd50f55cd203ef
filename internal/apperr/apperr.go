// Package apperr defines the small, stable error-kind vocabulary surfaced by
// the master's core. Callers branch on Kind rather than on message text, and
// raw backend errors never cross an API boundary unwrapped.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error into one of the taxonomy buckets.
type Kind int

const (
	// Internal is the defensive catch-all for unexpected backend failures.
	Internal Kind = iota
	// NotFound means the requested entity does not exist.
	NotFound
	// InvalidArgument means the caller supplied a bad parameter.
	InvalidArgument
	// Conflict means the backend returned inconsistent data, e.g. more
	// than one entry where exactly one was expected.
	Conflict
	// Unavailable means a dependency is not currently reachable. Never
	// cached as a negative result; retryable by the caller's own policy.
	Unavailable
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case InvalidArgument:
		return "InvalidArgument"
	case Conflict:
		return "Conflict"
	case Unavailable:
		return "ServiceUnavailable"
	default:
		return "Internal"
	}
}

// Error carries a Kind along with a message and an optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind without a cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err, walking the wrap chain. Unclassified
// errors report Internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to the HTTP status code API handlers respond with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case InvalidArgument:
		return http.StatusUnprocessableEntity
	case Conflict:
		return http.StatusConflict
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
