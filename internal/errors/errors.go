package errors

import (
	"errors"
	"fmt"
)

// SearchError is the structured error type for filesearch.
// It carries enough context for logging, CLI presentation and the daemon wire format.
type SearchError struct {
	// Code is the unique error code (e.g., "ERR_202_BACKEND_CONSTRUCTION").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Backend, Query, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *SearchError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SearchError) Unwrap() error {
	return e.Cause
}

// Is matches another SearchError by code, so errors.Is works against the
// sentinel values below.
func (e *SearchError) Is(target error) bool {
	if t, ok := target.(*SearchError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *SearchError) WithDetail(key, value string) *SearchError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *SearchError) WithSuggestion(suggestion string) *SearchError {
	e.Suggestion = suggestion
	return e
}

// New creates a new SearchError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *SearchError {
	return &SearchError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates a SearchError from an existing error.
// The error's message becomes the SearchError message.
func Wrap(code string, err error) *SearchError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is comparisons. They match any SearchError with the same code.
var (
	ErrConfigResolution    = &SearchError{Code: ErrCodeConfigResolution}
	ErrBackendConstruction = &SearchError{Code: ErrCodeBackendConstruction}
	ErrDirectoryNotFound   = &SearchError{Code: ErrCodeDirectoryNotFound}
	ErrDisposal            = &SearchError{Code: ErrCodeDisposal}
	ErrQueryExecution      = &SearchError{Code: ErrCodeQueryExecution}
	ErrInvalidInput        = &SearchError{Code: ErrCodeInvalidInput}
)

// ConfigResolutionError reports a failed strategy resolution for a directory.
func ConfigResolutionError(dir string, cause error) *SearchError {
	return New(ErrCodeConfigResolution, fmt.Sprintf("resolve search config for %s", dir), cause).
		WithDetail("directory", dir)
}

// BackendConstructionError reports that a default backend could not be built.
func BackendConstructionError(dir string, cause error) *SearchError {
	code := ErrCodeBackendConstruction
	var se *SearchError
	if errors.As(cause, &se) && se.Code == ErrCodeDirectoryNotFound {
		code = ErrCodeDirectoryNotFound
	}
	return New(code, fmt.Sprintf("create search backend for %s", dir), cause).
		WithDetail("directory", dir)
}

// QueryExecutionError reports a backend or custom search failing at request time.
func QueryExecutionError(dir string, cause error) *SearchError {
	return New(ErrCodeQueryExecution, fmt.Sprintf("query %s", dir), cause).
		WithDetail("directory", dir)
}

// DisposalError reports a backend that failed to release its resources.
func DisposalError(dir string, cause error) *SearchError {
	return New(ErrCodeDisposal, fmt.Sprintf("dispose search backend for %s", dir), cause).
		WithDetail("directory", dir)
}

// DirectoryNotFoundError reports a root that does not exist or is not a directory.
func DirectoryNotFoundError(dir string) *SearchError {
	return New(ErrCodeDirectoryNotFound, fmt.Sprintf("directory not found: %s", dir), nil).
		WithDetail("directory", dir).
		WithSuggestion("Check that the project root still exists and is readable")
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *SearchError {
	return New(ErrCodeInvalidInput, message, cause)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *SearchError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// GetCode extracts the error code from a SearchError anywhere in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from a SearchError anywhere in the chain.
func GetCategory(err error) Category {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Severity == SeverityFatal
	}
	return false
}
