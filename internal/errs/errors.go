// Package errs defines the error taxonomy shared by the index, reconciler and
// sync daemon.
package errs

import "errors"

// Common errors returned by reed operations.
//
// These errors can be checked using errors.Is() for proper error handling:
//
//	if errors.Is(err, errs.ErrNotFound) {
//	    // Title has no pointer, or the pointer resolves to nothing
//	}
var (
	// ErrNotFound is returned when a lookup misses: the title has no
	// pointer, or the pointer resolves to a path with no content key.
	ErrNotFound = errors.New("not found")

	// ErrTransform is returned when a source file cannot be read or parsed.
	ErrTransform = errors.New("transform failed")

	// ErrStore is returned for transport-level failures from the
	// key-value store.
	ErrStore = errors.New("store failure")

	// ErrPrecondition is returned synchronously when a control call is made
	// in the wrong state (open while open, close while closed, missing
	// directory) or a data call is made on a handle that is not open.
	ErrPrecondition = errors.New("precondition violated")

	// ErrQueueFull is returned when a data call is made while the daemon is
	// initializing and the deferred call queue is at capacity.
	ErrQueueFull = errors.New("call queue full")
)

// IsRetryable returns true if the error is likely to succeed on retry.
// Nothing in reed retries on its own; this is for callers that wrap
// operations in their own retry policy.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Transport failures are often transient
	if errors.Is(err, ErrStore) {
		return true
	}

	// The queue drains once initialization completes
	if errors.Is(err, ErrQueueFull) {
		return true
	}

	return false
}

// IsFatal returns true if the error indicates the calling code path is wrong
// and must not be retried as-is.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrPrecondition)
}
