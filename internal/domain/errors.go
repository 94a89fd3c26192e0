// Package domain defines the core business entities and errors.
package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrUnknownApp is returned when an app code is not registered.
	ErrUnknownApp = errors.New("unknown app code")

	// ErrUnsupportedRequestType is returned when an app is not permitted
	// to submit the requested type.
	ErrUnsupportedRequestType = errors.New("unsupported request type")

	// ErrInvalidRequest is returned when a request payload is empty or too long.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrRateLimited is returned when an app has exhausted its quota for the
	// current window.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrQueueFull is returned when no queue slot is available.
	ErrQueueFull = errors.New("queue is full")

	// ErrJobNotFound is returned when a request id is unknown.
	ErrJobNotFound = errors.New("request not found")

	// ErrStaleTransition is returned when a job is not in the expected status.
	ErrStaleTransition = errors.New("stale transition")

	// ErrInvalidTransition is returned when a transition is not an edge of
	// the state machine.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrIDCollision is returned when a fresh request id could not be allocated.
	ErrIDCollision = errors.New("request id collision")
)

// ValidationError carries the field that failed validation.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError creates a ValidationError wrapping err.
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
