package domain

import "errors"

// Sentinel errors returned by engine operations. Callers classify them with
// errors.Is; the API layer maps them to HTTP status codes.
var (
	// ErrInvalidRequest indicates bad input, e.g. an empty source on enqueue
	// or a retry on a job that is still live.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound indicates an operation referencing a nonexistent job,
	// history entry, or log entry.
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable indicates the persistence layer failed the
	// operation. It is surfaced to the caller, never silently dropped.
	ErrStoreUnavailable = errors.New("store unavailable")
)
