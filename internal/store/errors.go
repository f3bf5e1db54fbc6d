package store

import "errors"

// Sentinel errors returned by store operations. Services translate these
// into the structured error taxonomy before they reach callers.
var (
	// ErrNotFound means the row does not exist or is not owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrPrecondition means a compare-and-set status transition found the
	// campaign in a different state than expected.
	ErrPrecondition = errors.New("status precondition failed")

	// ErrValidation means a referenced resource is missing, foreign, or
	// inactive.
	ErrValidation = errors.New("invalid reference")

	// ErrQuotaExceeded means the account's daily sending limit is exhausted.
	ErrQuotaExceeded = errors.New("daily sending limit exceeded")

	// ErrAccountInUse means an SMTP account is still referenced by a
	// non-terminal campaign and cannot be deleted.
	ErrAccountInUse = errors.New("smtp account referenced by active campaign")

	// ErrDuplicateEmail means a unique email constraint was violated.
	ErrDuplicateEmail = errors.New("email already exists")
)
