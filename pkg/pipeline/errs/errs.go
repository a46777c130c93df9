// Package errs defines the pipeline-wide error taxonomy (spec §7) as
// sentinel values that compose with pkg/shared/errors.OperationError via
// errors.Is/errors.As, so callers can branch on taxonomy while still
// getting a readable chain.
package errs

import (
	stderrors "errors"
	"fmt"
)

// Taxonomy sentinels. Wrap these with fmt.Errorf("...: %w", Sentinel) to
// attach context while keeping errors.Is working.
var (
	ErrSuppressed            = stderrors.New("suppressed")
	ErrRobotsDisallowed      = stderrors.New("robots disallowed")
	ErrBlocked               = stderrors.New("blocked")
	ErrServerError           = stderrors.New("server error")
	ErrClientError           = stderrors.New("client error")
	ErrTransportError        = stderrors.New("transport error")
	ErrCircuitOpen           = stderrors.New("circuit open")
	ErrResourceExhausted     = stderrors.New("resource exhausted")
	ErrInvalidOutput         = stderrors.New("invalid output")
	ErrUnknownWorker         = stderrors.New("unknown worker")
	ErrSerializationConflict = stderrors.New("serialization conflict")
	ErrCancelled             = stderrors.New("cancelled")
)

// BlockedType distinguishes why a fetch was classified Blocked.
type BlockedType string

const (
	BlockedForbidden  BlockedType = "403"
	BlockedRateLimit  BlockedType = "429"
	BlockedChallenge  BlockedType = "challenge"
)

// Blocked wraps ErrBlocked with the specific reason and origin, matching
// spec §4.C step 7.
func Blocked(origin string, kind BlockedType) error {
	return fmt.Errorf("%w(%s): origin %s", ErrBlocked, kind, origin)
}

// Retryable reports whether the propagation policy (spec §7) recovers
// from this error locally via retry, as opposed to surfacing it to the
// caller task.
func Retryable(err error) bool {
	return stderrors.Is(err, ErrServerError) ||
		stderrors.Is(err, ErrTransportError) ||
		stderrors.Is(err, ErrSerializationConflict)
}

// AbortsDiocese reports whether err should stop processing the rest of a
// diocese's parishes. Per spec §7, only Cancelled does; every other error
// means "try the next candidate."
func AbortsDiocese(err error) bool {
	return stderrors.Is(err, ErrCancelled)
}
