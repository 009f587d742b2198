package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/tally/internal/config"
	"github.com/roach88/tally/internal/ledger"
	"github.com/roach88/tally/internal/remote"
	"github.com/roach88/tally/internal/syncer"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failed (validation, sync, failing scenarios)
	ExitCommandError = 2 // Command error (bad config, missing files, bad flags)
)

// Error codes reported in JSON output.
const (
	CodeValidation = "E001"
	CodeTrashed    = "E002"
	CodeSignedOut  = "E003"
	CodeMerge      = "E004"
	CodeAuth       = "E005"
	CodeRemote     = "E006"
	CodeStorage    = "E007"
	CodeConfig     = "E008"
	CodeInternal   = "E999"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Config errors are command errors; anything else without an explicit
// code is ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		return ExitCommandError
	}
	return ExitFailure
}

// ErrorCode classifies err for JSON output. MergeError is checked before
// remote errors because it wraps them.
func ErrorCode(err error) string {
	var cfgErr *config.Error
	switch {
	case ledger.IsValidationError(err):
		return CodeValidation
	case errors.Is(err, ledger.ErrTrashed):
		return CodeTrashed
	case errors.Is(err, syncer.ErrSignedOut):
		return CodeSignedOut
	case syncer.IsMergeError(err):
		return CodeMerge
	case errors.Is(err, remote.ErrUnauthenticated):
		return CodeAuth
	case remote.IsRemoteError(err):
		return CodeRemote
	case ledger.IsStorageError(err):
		return CodeStorage
	case errors.As(err, &cfgErr):
		return CodeConfig
	default:
		return CodeInternal
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string      `json:"status"`          // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`  // success payload
	Error  *CLIError   `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // "E001", "E002", etc.
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

// Success outputs a successful result. In text mode data is printed with
// fmt.Fprintln; text is used instead when non-empty.
func (f *OutputFormatter) Success(data interface{}, text ...string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	if len(text) > 0 {
		for _, line := range text {
			fmt.Fprintln(f.Writer, line)
		}
		return nil
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err with its classified code. A *syncer.MergeError lists
// the failed rows as details.
func (f *OutputFormatter) Fail(err error) error {
	var details interface{}
	var mergeErr *syncer.MergeError
	if errors.As(err, &mergeErr) {
		details = map[string]interface{}{
			"attempted": mergeErr.Attempted,
			"failed":    mergeErr.Failed,
		}
	}
	return f.Error(ErrorCode(err), err.Error(), details)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
