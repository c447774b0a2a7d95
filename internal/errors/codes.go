// Package errors provides structured error handling for Kestrel.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk)
//   - 3XX: Network and service errors
//   - 4XX: Validation errors
//   - 5XX: Schema and internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates network and managed-service errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategorySchema indicates index schema errors.
	CategorySchema Category = "SCHEMA"
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
	ErrCodeConfigMissing = "ERR_101_CONFIG_MISSING"
	ErrCodeConfigInvalid = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound   = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission = "ERR_202_FILE_PERMISSION"
	ErrCodeBackupWrite    = "ERR_203_BACKUP_WRITE"

	// Network and service errors (300-399)
	ErrCodeRequestFailed = "ERR_301_REQUEST_FAILED"
	ErrCodeHTTPStatus    = "ERR_302_HTTP_STATUS"
	ErrCodeRateLimited   = "ERR_303_RATE_LIMITED"
	ErrCodeTimeout       = "ERR_304_TIMEOUT"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeDocumentTooLarge  = "ERR_403_DOCUMENT_TOO_LARGE"
	ErrCodeInjectionRejected = "ERR_404_INJECTION_REJECTED"
	ErrCodeMissingRequired   = "ERR_405_MISSING_REQUIRED_FIELD"
	ErrCodeUnsafeRoot        = "ERR_406_UNSAFE_ROOT"

	// Schema and internal errors (500-599)
	ErrCodeSchemaIncompatible = "ERR_501_SCHEMA_INCOMPATIBLE"
	ErrCodeInternal           = "ERR_502_INTERNAL"
	ErrCodeEmbeddingFailed    = "ERR_503_EMBEDDING_FAILED"
)

// categoryFromCode derives the category from an error code prefix.
func categoryFromCode(code string) Category {
	if len(code) < 5 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	case '5':
		if code == ErrCodeSchemaIncompatible {
			return CategorySchema
		}
		return CategoryInternal
	default:
		return CategoryInternal
	}
}

// severityFromCode derives the default severity from an error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigMissing, ErrCodeConfigInvalid:
		return SeverityFatal
	case ErrCodeInjectionRejected:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// retryableCodes lists codes for which the failed operation may be retried.
var retryableCodes = map[string]bool{
	ErrCodeRequestFailed: true,
	ErrCodeRateLimited:   true,
	ErrCodeTimeout:       true,
}

func isRetryableCode(code string) bool {
	return retryableCodes[code]
}
