// Package ai provides common types for the external collaborator providers
// (STT, LLM, TTS, VAD): error classification and retry configuration.
package ai

import (
	"errors"
	"time"
)

var (
	// ErrRecoverable indicates a temporary collaborator failure that may
	// succeed if retried: network timeout, rate limiting, service overload.
	ErrRecoverable = errors.New("recoverable provider error")

	// ErrFatal indicates a permanent collaborator failure: invalid API key,
	// unsupported audio format, malformed request. Do not retry.
	ErrFatal = errors.New("fatal provider error")

	// ErrStale marks a collaborator result that arrived after its turn was
	// superseded. Stale results are discarded silently; this is not a fault.
	ErrStale = errors.New("stale provider result")
)

// RetryConfig configures backoff for recoverable collaborator errors.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig is tuned for sub-second turn-taking budgets: few
// attempts, short delays.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:    2,
	InitialDelay:  100 * time.Millisecond,
	MaxDelay:      1 * time.Second,
	BackoffFactor: 2.0,
}

// IsRecoverable reports whether err should be retried.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrRecoverable)
}

// IsFatal reports whether err is permanent.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// IsStale reports whether err marks a superseded result.
func IsStale(err error) bool {
	return errors.Is(err, ErrStale)
}

// ClassifiedError wraps an underlying error with retry classification.
type ClassifiedError struct {
	Underlying error
	Retryable  bool
	Message    string
}

func (e *ClassifiedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Underlying.Error()
}

func (e *ClassifiedError) Unwrap() error {
	if e.Retryable {
		return ErrRecoverable
	}
	return ErrFatal
}

// NewRecoverableError wraps err as recoverable with context.
func NewRecoverableError(err error, message string) error {
	return &ClassifiedError{Underlying: err, Retryable: true, Message: message}
}

// NewFatalError wraps err as fatal with context.
func NewFatalError(err error, message string) error {
	return &ClassifiedError{Underlying: err, Retryable: false, Message: message}
}
