package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/stratagem/internal/compiler"
)

// RuntimeError represents an error detected while a strategy contract
// handles a message.
//
// Runtime errors include:
//   - Graph validation: the graph or an operation's parameters are invalid
//   - Authorization: the sender may not call the entry
//   - Reentrancy: a top-level entry found the guard already set
//   - Escrow violation: a withdrawal named an escrowed denom
//   - Operation failure: a node's operation or condition failed
//   - Repeated continuation: the same resumption arrived twice in one transaction
//
// Every runtime error aborts the enclosing transaction.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Strategy is the address of the affected contract.
	Strategy string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	ErrCodeGraphInvalid         RuntimeErrorCode = "GRAPH_INVALID"
	ErrCodeUnauthorized         RuntimeErrorCode = "UNAUTHORIZED"
	ErrCodeReentrant            RuntimeErrorCode = "REENTRANT"
	ErrCodeEscrowViolation      RuntimeErrorCode = "ESCROW_VIOLATION"
	ErrCodeOperationFailed      RuntimeErrorCode = "OPERATION_FAILED"
	ErrCodeStepsExceeded        RuntimeErrorCode = "STEPS_EXCEEDED"
	ErrCodeContinuationRepeated RuntimeErrorCode = "CONTINUATION_REPEATED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Strategy != "" {
		msg += fmt.Sprintf(" (strategy=%s)", e.Strategy)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first RuntimeError or StepsExceededError
// in err's chain, or "" when there is none.
func CodeOf(err error) RuntimeErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	var se *StepsExceededError
	if errors.As(err, &se) {
		return ErrCodeStepsExceeded
	}
	return ""
}

// IsGraphValidationError reports whether err is a graph validation error.
func IsGraphValidationError(err error) bool { return CodeOf(err) == ErrCodeGraphInvalid }

// IsAuthorizationError reports whether err is an authorization error.
func IsAuthorizationError(err error) bool { return CodeOf(err) == ErrCodeUnauthorized }

// IsReentrancyError reports whether err is a reentrancy error.
func IsReentrancyError(err error) bool { return CodeOf(err) == ErrCodeReentrant }

// IsEscrowViolationError reports whether err is an escrow violation.
func IsEscrowViolationError(err error) bool { return CodeOf(err) == ErrCodeEscrowViolation }

// IsOperationExecutionError reports whether err is a node failure.
func IsOperationExecutionError(err error) bool { return CodeOf(err) == ErrCodeOperationFailed }

// IsContinuationError reports whether err is a repeated continuation.
func IsContinuationError(err error) bool { return CodeOf(err) == ErrCodeContinuationRepeated }

// NewGraphValidationError wraps a compiler.ValidationError.
func NewGraphValidationError(strategy string, err error) *RuntimeError {
	re := &RuntimeError{
		Code:     ErrCodeGraphInvalid,
		Message:  "graph is invalid",
		Strategy: strategy,
		Err:      err,
	}
	var verr compiler.ValidationError
	if errors.As(err, &verr) {
		re.Details = map[string]string{
			"code":  verr.Code,
			"field": verr.Field,
		}
	}
	return re
}

// NewAuthorizationError creates a RuntimeError for a sender that may not
// call entry.
func NewAuthorizationError(strategy, entry, sender string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeUnauthorized,
		Message:  fmt.Sprintf("%s may not call %s", sender, entry),
		Strategy: strategy,
		Details: map[string]string{
			"entry":  entry,
			"sender": sender,
		},
	}
}

// NewReentrancyError creates a RuntimeError for a guarded entry.
func NewReentrancyError(strategy, entry string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeReentrant,
		Message:  fmt.Sprintf("%s called while the strategy is executing", entry),
		Strategy: strategy,
		Details:  map[string]string{"entry": entry},
	}
}

// NewEscrowViolationError creates a RuntimeError for a withdrawal of an
// escrowed denom.
func NewEscrowViolationError(strategy, denom string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeEscrowViolation,
		Message:  fmt.Sprintf("cannot withdraw escrowed denom %s", denom),
		Strategy: strategy,
		Details:  map[string]string{"denom": denom},
	}
}

// NewOperationExecutionError wraps a node failure. stage names the
// lifecycle method that failed: init, execute, commit, withdraw, cancel,
// evaluate, or balances.
func NewOperationExecutionError(strategy string, index uint16, stage string, err error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeOperationFailed,
		Message:  fmt.Sprintf("node %d failed to %s", index, stage),
		Strategy: strategy,
		Details: map[string]string{
			"index": fmt.Sprintf("%d", index),
			"stage": stage,
		},
		Err: err,
	}
}

// NewContinuationError creates a RuntimeError for a resumption that was
// already dispatched in the same transaction.
func NewContinuationError(strategy, mode, previous string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeContinuationRepeated,
		Message:  fmt.Sprintf("continuation %s after %s already ran in this transaction", mode, previous),
		Strategy: strategy,
		Details: map[string]string{
			"mode":     mode,
			"previous": previous,
		},
	}
}
