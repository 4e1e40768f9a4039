package provider

import (
	"context"
	"errors"
	"fmt"
)

// Fetch-side failure classes.
var (
	// ErrUnavailable marks a transient backend failure. Callers may retry.
	ErrUnavailable = errors.New("provider unavailable")
	// ErrTimeout marks a deadline exceeded talking to the backend.
	ErrTimeout = errors.New("provider timeout")
	// ErrMalformedData marks a response the plugin could not interpret.
	ErrMalformedData = errors.New("malformed provider data")
)

// Apply-side failure classes.
var (
	// ErrConflict marks actual state that moved since the last fetch.
	// The change must be recomputed, not retried.
	ErrConflict = errors.New("provider state conflict")
)

// RejectionError is an apply-side failure where the provider refused the
// change outright. It is never retried automatically.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("rejected by provider: %s", e.Reason)
}

// Reject wraps a reason into a RejectionError.
func Reject(format string, args ...any) error {
	return &RejectionError{Reason: fmt.Sprintf(format, args...)}
}

// Retryable reports whether err may be retried with backoff. Only
// transient backend failures and timeouts qualify; rejections and
// conflicts must surface to the caller.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}

// Classify folds context errors into the taxonomy so callers see a single
// failure vocabulary: an exceeded deadline becomes ErrTimeout, a
// cancellation becomes ErrUnavailable. Errors already in the taxonomy
// pass through unchanged.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrMalformedData),
		errors.Is(err, ErrConflict):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		var rej *RejectionError
		if errors.As(err, &rej) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
