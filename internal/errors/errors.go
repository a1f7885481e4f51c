// Package errors provides domain-specific error types and sentinel errors
// shared by the admissions assistant.
//
// Import it as domerrors to avoid shadowing the standard library:
//
//	import domerrors "github.com/garyellow/dr-matricula-go/internal/errors"
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common scenarios.
// Use errors.Is() to check these errors in your code.
var (
	// ErrDataUnavailable indicates reference data could not be obtained from the
	// backend and no previously fetched copy exists.
	ErrDataUnavailable = errors.New("reference data unavailable")

	// ErrEntityNotFound indicates free text could not be resolved to a program.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrMalformedClassification indicates the classifier returned something
	// other than a single {"id": N} object. Callers treat it as ErrEntityNotFound.
	ErrMalformedClassification = errors.New("malformed classification")

	// ErrReasoningExceeded indicates the reasoning loop ran out of iterations or time.
	ErrReasoningExceeded = errors.New("reasoning budget exceeded")

	// ErrNoConvergence indicates the reasoning loop stopped without a usable answer.
	ErrNoConvergence = errors.New("reasoning did not converge")

	// ErrRateLimitExceeded indicates rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates user provided invalid input.
	ErrInvalidInput = errors.New("invalid input")
)

// IsDataUnavailable reports whether err is or wraps ErrDataUnavailable.
func IsDataUnavailable(err error) bool {
	return errors.Is(err, ErrDataUnavailable)
}

// IsNotFound reports whether err is or wraps ErrNotFound or ErrEntityNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrEntityNotFound)
}

// IsRateLimitExceeded reports whether err is or wraps ErrRateLimitExceeded.
func IsRateLimitExceeded(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded)
}

// IsInvalidInput reports whether err is or wraps ErrInvalidInput.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// ValidationError represents input validation failures.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// BackendError represents a failed call to the admissions backend.
// It always matches ErrDataUnavailable through errors.Is.
type BackendError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("backend error (endpoint=%s, status=%d): %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("backend error (endpoint=%s): %v", e.Endpoint, e.Err)
}

// Unwrap returns both the cause and ErrDataUnavailable.
func (e *BackendError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDataUnavailable}
	}
	return []error{e.Err, ErrDataUnavailable}
}

// NewBackendError creates a new backend error.
func NewBackendError(endpoint string, statusCode int, err error) *BackendError {
	return &BackendError{
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Err:        err,
	}
}
