// Package errors provides structured error handling for filesearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Directory and backend lifecycle errors
//   - 4XX: Validation errors
//   - 5XX: Query errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration and strategy resolution errors.
	CategoryConfig Category = "CONFIG"
	// CategoryBackend indicates per-directory backend lifecycle errors.
	CategoryBackend Category = "BACKEND"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryQuery indicates failures while executing a query.
	CategoryQuery Category = "QUERY"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid    = "ERR_101_CONFIG_INVALID"
	ErrCodeConfigResolution = "ERR_102_CONFIG_RESOLUTION"

	// Backend lifecycle errors (200-299)
	ErrCodeDirectoryNotFound   = "ERR_201_DIRECTORY_NOT_FOUND"
	ErrCodeBackendConstruction = "ERR_202_BACKEND_CONSTRUCTION"
	ErrCodeDisposal            = "ERR_203_DISPOSAL"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty   = "ERR_403_QUERY_EMPTY"

	// Query and internal errors (500-599)
	ErrCodeInternal       = "ERR_501_INTERNAL"
	ErrCodeQueryExecution = "ERR_503_QUERY_EXECUTION"
	ErrCodeCustomSearch   = "ERR_504_CUSTOM_SEARCH"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "102" from "ERR_102_CONFIG_RESOLUTION"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryBackend
	case '4':
		return CategoryValidation
	case '5':
		if code == ErrCodeInternal {
			return CategoryInternal
		}
		return CategoryQuery
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeDisposal:
		// The handle is dropped from tracking regardless.
		return SeverityWarning
	case ErrCodeConfigInvalid:
		return SeverityFatal
	}
	return SeverityError
}
