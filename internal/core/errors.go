package core

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every stage of podcast generation.
var (
	// ErrRateLimited indicates the remote side asked us to slow down.
	ErrRateLimited = errors.New("rate limited")
	// ErrTransient indicates a failure that may succeed on a later attempt.
	ErrTransient = errors.New("transient failure")
	// ErrNotFound indicates the requested item does not exist.
	ErrNotFound = errors.New("not found")
	// ErrRetriesExhausted indicates a retry policy gave up.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrRenderFailed indicates an audio render produced no usable segments.
	ErrRenderFailed = errors.New("render failed")
	// ErrComposeFailed indicates script composition could not produce a script.
	ErrComposeFailed = errors.New("compose failed")
	// ErrCancelled indicates the job was cancelled while running.
	ErrCancelled = errors.New("job cancelled")
)

const errFmtRetriesExhausted = "%s after %d attempts: %v"

// RetriesExhaustedError is returned when a retry policy runs out of attempts.
// It matches ErrRetriesExhausted and unwraps to the last underlying error.
type RetriesExhaustedError struct {
	Last     error
	Attempts int
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf(errFmtRetriesExhausted, ErrRetriesExhausted, e.Attempts, e.Last)
}

// Unwrap exposes both the sentinel and the last underlying error to errors.Is/As.
func (e *RetriesExhaustedError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Last}
}

// IsRetryable reports whether err belongs to a retryable class.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}
