package core

import (
	"errors"
	"fmt"
)

// CheckStatus represents the execution status of a geometry check
type CheckStatus int

const (
	StatusPending CheckStatus = iota // Not yet started
	StatusRunning                    // Currently executing
	StatusPassed                     // All expectations met
	StatusFailed                     // An expectation was not met
	StatusErrored                    // Transport, remote or argument error
	StatusSkipped                    // Filtered out by tags
)

// String returns the string representation of CheckStatus
func (s CheckStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusErrored:
		return "errored"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status written by MarshalText.
func (s *CheckStatus) UnmarshalText(text []byte) error {
	for c := StatusPending; c <= StatusSkipped; c++ {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown check status %q", text)
}

// IsTerminal returns true if the status is a final state
func (s CheckStatus) IsTerminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusErrored, StatusSkipped:
		return true
	default:
		return false
	}
}

// IsSuccess returns true if the status does not fail a run
func (s CheckStatus) IsSuccess() bool {
	return s == StatusPassed || s == StatusSkipped
}

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone      ErrorCategory = iota // No error
	ErrCategoryTransport                      // Connection refused, timeout, malformed response
	ErrCategoryRemote                         // Well-formed error response from the remote end
	ErrCategoryArgument                       // Malformed locator or frame argument, caught locally
	ErrCategoryAssertion                      // Check expectation not met
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryTransport:
		return "transport"
	case ErrCategoryRemote:
		return "remote"
	case ErrCategoryArgument:
		return "argument"
	case ErrCategoryAssertion:
		return "assertion"
	default:
		return "unknown"
	}
}

// StatusForError picks the check status an error should produce.
func StatusForError(err error) CheckStatus {
	if err == nil {
		return StatusPassed
	}
	var e *ExecutionError
	if errors.As(err, &e) && e.Category == ErrCategoryAssertion {
		return StatusFailed
	}
	return StatusErrored
}
