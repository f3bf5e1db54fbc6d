package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation policy: which errors surface to
// the caller, which retry, and which terminate silently.
type Kind string

const (
	Validation    Kind = "VALIDATION"
	Auth          Kind = "AUTH"
	NotFound      Kind = "NOT_FOUND"
	Precondition  Kind = "PRECONDITION"
	QuotaExceeded Kind = "QUOTA_EXCEEDED"
	TransportSoft Kind = "TRANSPORT_SOFT"
	TransportHard Kind = "TRANSPORT_HARD"
	OutOfWindow   Kind = "OUT_OF_WINDOW"
	StaleJob      Kind = "STALE_JOB"
	Internal      Kind = "INTERNAL"
)

// Error is a structured error with a kind and a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a structured error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a structured error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from an error chain. Unclassified errors are
// INTERNAL.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// Is reports whether the error chain carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
