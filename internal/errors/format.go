package errors

import (
	"fmt"
	"strings"
)

// FormatForCLI formats an error for CLI output.
// Uses a concise format suitable for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	ke, ok := err.(*KestrelError)
	if !ok {
		ke = New(ErrCodeInternal, err.Error(), err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", ke.Message))
	if ke.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("Suggestion: %s\n", ke.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("[%s]", ke.Code))
	return sb.String()
}

// ExitCode maps an error to a process exit code.
// 0 success, 1 operational failure, 2 configuration, 3 validation.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch GetCategory(err) {
	case CategoryConfig:
		return 2
	case CategoryValidation:
		return 3
	default:
		return 1
	}
}
