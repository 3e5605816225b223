package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrJobFatal marks errors that must fail a whole job.
	ErrJobFatal = errors.New("job fatal")

	// ErrRepository marks failures of the underlying store.
	ErrRepository = errors.New("repository failure")

	// ErrGateDenied is matched by every GateDeniedError.
	ErrGateDenied = errors.New("access denied")

	// ErrJobNotFound is returned for unknown job IDs.
	ErrJobNotFound = errors.New("job not found")

	// ErrMatchNotFound is returned by stores for unknown match IDs.
	ErrMatchNotFound = errors.New("match not found")

	// ErrInvalidTransition is returned when a control call does not apply to
	// the job's current state.
	ErrInvalidTransition = errors.New("invalid job state transition")
)

// GateDeniedError explains why the access gate refused a call.
type GateDeniedError struct {
	Source        SourceKind
	Reason        string
	NextAllowedAt time.Time // zero unless the quota was exhausted
}

func (e *GateDeniedError) Error() string {
	if e.NextAllowedAt.IsZero() {
		return fmt.Sprintf("%s: %s", e.Source, e.Reason)
	}
	return fmt.Sprintf("%s: %s (next allowed at %s)", e.Source, e.Reason, e.NextAllowedAt.Format(time.RFC3339))
}

func (e *GateDeniedError) Is(target error) bool {
	return target == ErrGateDenied
}

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// Fatal wraps err so that it fails the job it occurs in.
func Fatal(err error) error {
	return fmt.Errorf("%w: %w", ErrJobFatal, err)
}

// RepositoryError wraps a store failure with op context.
func RepositoryError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrRepository, err)
}
