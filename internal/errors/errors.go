package errors

import (
	"errors"
	"fmt"
	"strconv"
)

// KestrelError is the structured error type for Kestrel.
// It provides rich context for error handling, logging, and user presentation.
type KestrelError struct {
	// Code is the unique error code (e.g., "ERR_302_HTTP_STATUS").
	Code string

	// Message is the human-readable error message. Messages are sanitized:
	// they never embed response bodies, api keys, or document contents.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *KestrelError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *KestrelError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with KestrelError.
func (e *KestrelError) Is(target error) bool {
	if t, ok := target.(*KestrelError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *KestrelError) WithDetail(key, value string) *KestrelError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *KestrelError) WithSuggestion(suggestion string) *KestrelError {
	e.Suggestion = suggestion
	return e
}

// New creates a new KestrelError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *KestrelError {
	return &KestrelError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a KestrelError from an existing error with an added
// message. Returns nil for a nil error.
func Wrap(err error, code string, message string) *KestrelError {
	if err == nil {
		return nil
	}
	return New(code, message+": "+err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *KestrelError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// RequestError creates a network-related error. Retryable.
func RequestError(message string, cause error) *KestrelError {
	return New(ErrCodeRequestFailed, message, cause)
}

// HTTPStatusError creates an error for a non-2xx response after retries.
// Only method, path, and status are recorded; bodies stay redacted.
func HTTPStatusError(method, path string, status int) *KestrelError {
	e := New(ErrCodeHTTPStatus, fmt.Sprintf("%s %s returned HTTP %d", method, path, status), nil)
	e.WithDetail("method", method)
	e.WithDetail("path", path)
	e.WithDetail("status", fmt.Sprintf("%d", status))
	return e
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *KestrelError {
	return New(ErrCodeInvalidInput, message, cause)
}

// SchemaError creates a schema incompatibility error.
func SchemaError(message string, cause error) *KestrelError {
	return New(ErrCodeSchemaIncompatible, message, cause).
		WithSuggestion("the desired schema cannot be applied in place; consider a drop-rebuild reindex")
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *KestrelError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error chain contains a retryable KestrelError.
func IsRetryable(err error) bool {
	var ke *KestrelError
	if errors.As(err, &ke) {
		return ke.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var ke *KestrelError
	if errors.As(err, &ke) {
		return ke.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a KestrelError.
// Returns empty string if the chain contains none.
func GetCode(err error) string {
	var ke *KestrelError
	if errors.As(err, &ke) {
		return ke.Code
	}
	return ""
}

// HTTPStatus extracts the HTTP status carried by an HTTPStatusError.
// Returns 0 if the chain carries none.
func HTTPStatus(err error) int {
	var ke *KestrelError
	if errors.As(err, &ke) {
		if s, ok := ke.Details["status"]; ok {
			n, _ := strconv.Atoi(s)
			return n
		}
	}
	return 0
}

// IsNotFound reports whether the error is an HTTP 404 from the service.
func IsNotFound(err error) bool {
	return HTTPStatus(err) == 404
}

// GetCategory extracts the category from a KestrelError.
// Returns empty string if the chain contains none.
func GetCategory(err error) Category {
	var ke *KestrelError
	if errors.As(err, &ke) {
		return ke.Category
	}
	return ""
}
