package core

import (
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // W3C error code or local code: no such element, timeout, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context (command, handle, frame path)
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	msg := e.Message
	if cmd, ok := e.Details["command"]; ok {
		msg = fmt.Sprintf("%v: %s", cmd, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an ExecutionError with the same code.
// This lets callers match against the predefined errors below after
// WithCause/WithDetails copies have been made. ErrTransport and ErrRemote
// match every error of their category.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	if t.Category != e.Category {
		return false
	}
	if t == ErrTransport || t == ErrRemote {
		return true
	}
	return t.Code == e.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// W3C WebDriver error codes the client distinguishes.
const (
	CodeNoSuchElement   = "no such element"
	CodeNoSuchFrame     = "no such frame"
	CodeStaleElement    = "stale element reference"
	CodeInvalidArgument = "invalid argument"
	CodeTimeout         = "timeout"
	CodeTransport       = "transport"
	CodeUnknown         = "unknown error"
	CodeAssertion       = "assertion failed"
)

// Predefined errors (W3C error codes)
var (
	// Transport errors
	ErrTransport = &ExecutionError{
		Category: ErrCategoryTransport,
		Code:     CodeTransport,
		Message:  "could not exchange command with remote end",
	}
	ErrTimeout = &ExecutionError{
		Category: ErrCategoryTransport,
		Code:     CodeTimeout,
		Message:  "command timed out",
	}

	// Remote errors
	ErrRemote = &ExecutionError{
		Category: ErrCategoryRemote,
		Code:     CodeUnknown,
		Message:  "remote end returned an error",
	}
	ErrNoSuchElement = &ExecutionError{
		Category: ErrCategoryRemote,
		Code:     CodeNoSuchElement,
		Message:  "no such element",
	}
	ErrNoSuchFrame = &ExecutionError{
		Category: ErrCategoryRemote,
		Code:     CodeNoSuchFrame,
		Message:  "no such frame",
	}
	ErrStaleElement = &ExecutionError{
		Category: ErrCategoryRemote,
		Code:     CodeStaleElement,
		Message:  "stale element reference",
	}

	// Local argument errors, raised before a round trip
	ErrInvalidArgument = &ExecutionError{
		Category: ErrCategoryArgument,
		Code:     CodeInvalidArgument,
		Message:  "invalid argument",
	}

	// Check assertion failures
	ErrAssertion = &ExecutionError{
		Category: ErrCategoryAssertion,
		Code:     CodeAssertion,
		Message:  "expectation not met",
	}
)

// RemoteErrorFor maps a W3C error code to the matching predefined error.
// Unrecognised codes keep their code under ErrCategoryRemote. The message
// always leads with the code, e.g. "no such element: Unable to locate element".
func RemoteErrorFor(code, message string) *ExecutionError {
	var base *ExecutionError
	switch code {
	case CodeNoSuchElement:
		base = ErrNoSuchElement
	case CodeNoSuchFrame:
		base = ErrNoSuchFrame
	case CodeStaleElement:
		base = ErrStaleElement
	case CodeInvalidArgument:
		base = ErrInvalidArgument
	default:
		base = NewExecutionError(ErrCategoryRemote, code, "remote end returned an error")
	}
	msg := base.Message
	if message != "" {
		msg = message
	}
	if msg != code {
		msg = code + ": " + msg
	}
	return base.WithMessage(msg)
}

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}
