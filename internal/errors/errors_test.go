package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDerivesClassification(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigMissing, CategoryConfig, SeverityFatal, false},
		{ErrCodeFileNotFound, CategoryIO, SeverityError, false},
		{ErrCodeRequestFailed, CategoryNetwork, SeverityError, true},
		{ErrCodeRateLimited, CategoryNetwork, SeverityError, true},
		{ErrCodeTimeout, CategoryNetwork, SeverityError, true},
		{ErrCodeInvalidInput, CategoryValidation, SeverityError, false},
		{ErrCodeInjectionRejected, CategoryValidation, SeverityWarning, false},
		{ErrCodeSchemaIncompatible, CategorySchema, SeverityError, false},
		{ErrCodeInternal, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "anything"))
}

func TestErrorChain(t *testing.T) {
	cause := errors.New("connection refused")
	err := RequestError("request to service failed", cause)

	require.ErrorIs(t, err, cause)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, ErrCodeRequestFailed, GetCode(err))

	// Wrapping with fmt keeps the chain queryable.
	wrapped := fmt.Errorf("bulk upload: %w", err)
	assert.True(t, IsRetryable(wrapped))
	assert.Equal(t, CategoryNetwork, GetCategory(wrapped))
}

func TestHTTPStatusErrorRedactsBody(t *testing.T) {
	err := HTTPStatusError("PUT", "/indexes/code-index", 503)
	assert.Contains(t, err.Error(), "PUT")
	assert.Contains(t, err.Error(), "/indexes/code-index")
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, "503", err.Details["status"])
}

func TestIsByCode(t *testing.T) {
	a := New(ErrCodeTimeout, "search deadline exceeded", nil)
	b := New(ErrCodeTimeout, "different message", nil)
	assert.True(t, errors.Is(a, b))

	c := New(ErrCodeRateLimited, "429", nil)
	assert.False(t, errors.Is(a, c))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 2, ExitCode(ConfigError("missing endpoint", nil)))
	assert.Equal(t, 3, ExitCode(ValidationError("bad dimensions", nil)))
	assert.Equal(t, 1, ExitCode(RequestError("boom", nil)))
	assert.Equal(t, 1, ExitCode(errors.New("plain")))
}

func TestFormatForCLI(t *testing.T) {
	err := ConfigError("endpoint is required", nil).
		WithSuggestion("set KESTREL_ENDPOINT or the endpoint config key")
	out := FormatForCLI(err)
	assert.Contains(t, out, "Error: endpoint is required")
	assert.Contains(t, out, "Suggestion: set KESTREL_ENDPOINT")
	assert.Contains(t, out, ErrCodeConfigInvalid)
}
