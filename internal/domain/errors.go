package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the job store
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when a status change is not allowed by the state machine
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrJobTerminal is returned when a worker tries to claim a job that already finished
	ErrJobTerminal = errors.New("job already in terminal status")

	// ErrLeaseLost is returned when another worker re-claimed the job after this one
	ErrLeaseLost = errors.New("job lease lost to another worker")

	// ErrValidation is the root of every request validation failure
	ErrValidation = errors.New("validation failed")

	// ErrInputTooLarge is returned when a source file exceeds the maximum input size
	ErrInputTooLarge = errors.New("input file too large")

	// ErrInvalidMessage is returned when a queue message body cannot be used
	ErrInvalidMessage = errors.New("invalid queue message")
)

// ValidationError describes one rejected field of a job request
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is lets callers match any validation failure with errors.Is(err, ErrValidation)
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RetryableError wraps transient errors that should trigger a redelivery
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err (or anything it wraps) is a RetryableError
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
