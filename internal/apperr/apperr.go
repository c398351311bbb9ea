// Package apperr defines the typed error kinds the pipeline and API surface
// use to decide how to react to a failure: surface it to the caller, retry
// on the next sweep, substitute a safe default, or silently drop a
// subscriber. Matches the teacher's plain-error-plus-fmt.Errorf style — no
// custom error framework, just sentinels callers can errors.Is against.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks malformed caller input (bad coordinates,
	// missing required fields). Surfaced to the caller as a 4xx-equivalent.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks a lookup against an unknown report/event id.
	ErrNotFound = errors.New("not found")

	// ErrTransientStorage marks a retryable store failure. The caller
	// must roll back and leave processed=false so the next sweep retries.
	ErrTransientStorage = errors.New("transient storage failure")

	// ErrMalformed marks unparseable input the pipeline can safely
	// substitute a default for (bad timestamp, broken evidence JSON) and
	// continue — it must never propagate out of the pipeline.
	ErrMalformed = errors.New("malformed data")

	// ErrSubscriberGone marks a broadcaster send that failed because the
	// subscriber is no longer reachable. The broadcaster drops the
	// subscriber and continues; this is never returned to a caller.
	ErrSubscriberGone = errors.New("subscriber gone")
)

// Wrap annotates an error with a message while preserving errors.Is/As
// matching against the sentinel kind.
func Wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Is reports whether err is (or wraps) the given sentinel kind.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
