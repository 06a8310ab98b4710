package helpers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/gnoskos/gnoskos/engine/core"
)

// CliError is a categorized command failure.
type CliError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Details string `json:"details,omitempty"`
	cause   error
}

func (e *CliError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CliError) Unwrap() error {
	return e.cause
}

func NewCliError(code, message string, details ...string) *CliError {
	err := &CliError{Code: code, Message: message}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

// Categorize maps err onto a CliError by its error kind. The original error
// stays reachable through errors.Is.
func Categorize(err error) *CliError {
	if err == nil {
		return nil
	}
	var cliErr *CliError
	if errors.As(err, &cliErr) {
		return cliErr
	}
	var out *CliError
	switch {
	case errors.Is(err, context.Canceled):
		out = NewCliError("OPERATION_CANCELED", "Operation was canceled")
	case errors.Is(err, core.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		out = NewCliError("OPERATION_TIMEOUT", "Operation timed out", core.RedactError(err))
	case errors.Is(err, core.ErrInvalidConfiguration):
		out = NewCliError("INVALID_CONFIGURATION", "Configuration is invalid", core.RedactError(err))
	case errors.Is(err, core.ErrInvalidRequest):
		out = NewCliError("INVALID_REQUEST", "Request is invalid", core.RedactError(err))
	case errors.Is(err, core.ErrEmbeddingFailure):
		out = NewCliError("EMBEDDING_FAILURE", "Embedding service failed", core.RedactError(err))
	case errors.Is(err, core.ErrStorageFailure):
		out = NewCliError("STORAGE_FAILURE", "Vector store failed", core.RedactError(err))
	case errors.Is(err, core.ErrCompletionFailure):
		out = NewCliError("COMPLETION_FAILURE", "Completion service failed", core.RedactError(err))
	default:
		out = NewCliError("COMMAND_FAILED", "Command failed", core.RedactError(err))
	}
	out.cause = err
	return out
}

// FormatError renders err for the given mode.
func FormatError(err error, mode Mode) string {
	if err == nil {
		return ""
	}
	cliErr := Categorize(err)
	if mode == ModeJSON {
		data, mErr := json.MarshalIndent(cliErr, "", "  ")
		if mErr != nil {
			return `{"error": "JSON marshaling failed"}`
		}
		return string(data)
	}
	result := errorStyle.Render("✗ " + cliErr.Message)
	if cliErr.Details != "" {
		result += "\n" + detailStyle.Render("Details: "+cliErr.Details)
	}
	return result
}

func OutputError(w io.Writer, err error, mode Mode) {
	if err == nil {
		return
	}
	fmt.Fprintln(w, FormatError(err, mode))
}

var (
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Italic(true)
)
