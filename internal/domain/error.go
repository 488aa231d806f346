package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrUnknownJobType  = errors.New("unknown job type")
	ErrLeaseLost       = errors.New("job lease lost")
	ErrJobNotActive    = errors.New("job is not active")
	ErrJobCancelled    = errors.New("job cancelled")
	ErrRateLimited     = errors.New("rate limited")
	ErrReadDatabaseRow = errors.New("failed to read database row")
)

// TransientError marks a failure worth retrying: the same input may succeed
// later (timeouts, throttling, provider 5xx).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that retrying cannot fix (bad input,
// unsupported format, auth rejection). The job dead-letters immediately.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Transient(format string, args ...any) error {
	return &TransientError{Err: fmt.Errorf(format, args...)}
}

func Permanent(format string, args ...any) error {
	return &PermanentError{Err: fmt.Errorf(format, args...)}
}

func WrapTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func WrapPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err should dead-letter its job instead of
// requeueing it. Unclassified errors default to transient.
func IsPermanent(err error) bool {
	var pe *PermanentError
	if errors.As(err, &pe) {
		return true
	}
	return errors.Is(err, ErrInvalidPayload) || errors.Is(err, ErrUnknownJobType) || errors.Is(err, ErrJobCancelled)
}
