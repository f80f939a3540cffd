package errors

import (
	"errors"
	"fmt"
)

// ChaekkoError is the structured error type for the retrieval core.
// It provides rich context for error handling, logging, and caller presentation.
type ChaekkoError struct {
	// Code is the unique error code (e.g., "ERR_401_BAD_QUERY_CONTEXT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Network, Validation, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs
	// (trace and request identifiers ride here).
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *ChaekkoError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ChaekkoError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *ChaekkoError) Is(target error) bool {
	if t, ok := target.(*ChaekkoError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *ChaekkoError) WithDetail(key, value string) *ChaekkoError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new ChaekkoError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *ChaekkoError {
	return &ChaekkoError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a ChaekkoError from an existing error.
func Wrap(code string, err error) *ChaekkoError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// BadRequest creates a validation error for a malformed or
// under-specified query context. Never retried; surfaced to the caller.
func BadRequest(message string, cause error) *ChaekkoError {
	return New(ErrCodeBadQueryContext, message, cause)
}

// Unavailable creates a dependency-unreachable error.
func Unavailable(message string, cause error) *ChaekkoError {
	return New(ErrCodeBackendUnavailable, message, cause)
}

// Internal creates an internal error.
func Internal(message string, cause error) *ChaekkoError {
	return New(ErrCodeInternal, message, cause)
}

// IsBadRequest reports whether err is a validation-category error.
func IsBadRequest(err error) bool {
	var ce *ChaekkoError
	if errors.As(err, &ce) {
		return ce.Category == CategoryValidation
	}
	return false
}

// IsUnavailable reports whether err is a network-category error.
func IsUnavailable(err error) bool {
	var ce *ChaekkoError
	if errors.As(err, &ce) {
		return ce.Category == CategoryNetwork
	}
	return false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var ce *ChaekkoError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}
