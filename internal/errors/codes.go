// Package errors provides structured error handling for chaekko.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 3XX: Network / dependency errors
//   - 4XX: Request validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryNetwork indicates backend or provider connectivity errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates request validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityError indicates the operation failed but the process can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Network / dependency errors (300-399)
	ErrCodeBackendTimeout       = "ERR_301_BACKEND_TIMEOUT"
	ErrCodeBackendUnavailable   = "ERR_302_BACKEND_UNAVAILABLE"
	ErrCodeEmbeddingUnavailable = "ERR_303_EMBEDDING_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeBadQueryContext   = "ERR_401_BAD_QUERY_CONTEXT"
	ErrCodeUnknownTextSource = "ERR_402_UNKNOWN_TEXT_SOURCE"
	ErrCodeInvalidFilter     = "ERR_403_INVALID_FILTER"
	ErrCodeQueryEmpty        = "ERR_404_QUERY_EMPTY"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeSearchExhausted = "ERR_502_SEARCH_EXHAUSTED"
	ErrCodeEnrichFailed    = "ERR_503_ENRICH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeBackendTimeout, ErrCodeBackendUnavailable, ErrCodeEmbeddingUnavailable:
		return true
	default:
		return false
	}
}
