package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/stratagem/internal/engine"
	"github.com/roach88/stratagem/internal/host"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Transaction rejected or scenarios failed
	ExitCommandError = 2 // Command error (bad arguments, database not found, etc.)
)

// Error codes for CLI output that are not strategy runtime codes.
const (
	ErrCodeGeneric  = "E001"
	ErrCodeNotFound = "E002"
	ErrCodeCompile  = "E003"
	ErrCodeInvalid  = "E004"
	ErrCodeTxFailed = "E005"
	ErrCodeFailed   = "E_TEST_FAILED"
)

// ExitError represents an error with a specific exit code.
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
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Diagnostics go here so JSON on Writer stays parseable
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload, or the failed receipt
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "UNAUTHORIZED", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a result. text renders it for humans; when text is nil
// the data is printed as is.
func (f *OutputFormatter) Success(data any, text func(io.Writer)) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	if text != nil {
		text(f.Writer)
		return nil
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// Receipt reports a transaction outcome. A failed transaction prints its
// receipt with the runtime error code and returns an ExitFailure error.
func (f *OutputFormatter) Receipt(r host.Receipt, txErr error) error {
	if txErr == nil {
		return f.Success(r, func(w io.Writer) { writeReceipt(w, r) })
	}

	code := string(engine.CodeOf(txErr))
	if code == "" {
		code = ErrCodeTxFailed
	}
	if f.Format == "json" {
		if err := f.encode(CLIResponse{
			Status: "error",
			Data:   r,
			Error:  &CLIError{Code: code, Message: txErr.Error()},
		}); err != nil {
			return err
		}
	} else {
		if r.TxID != "" {
			writeReceipt(f.Writer, r)
		}
		fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, txErr.Error())
	}
	return WrapExitError(ExitFailure, "transaction failed", txErr)
}

// writeReceipt renders a receipt and its message tree.
func writeReceipt(w io.Writer, r host.Receipt) {
	fmt.Fprintf(w, "tx %s: %s (height %d)\n", r.TxID, r.Status, r.Height)
	for _, m := range r.Messages {
		fmt.Fprintf(w, "  %s%d %s@%s from %s\n", strings.Repeat("  ", m.Depth), m.Seq, m.Kind, m.Target, m.Sender)
	}
}
