package graph

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes errors raised by the access layer.
type ErrorCode string

const (
	// ErrCodeNotFound indicates an entity believed to exist could not be
	// re-fetched by identity (usually deleted by a concurrent transaction).
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeRetryExhausted indicates a transient transport error persisted
	// past the bounded retry count.
	ErrCodeRetryExhausted ErrorCode = "RETRY_EXHAUSTED"

	// ErrCodeCompilationGap indicates a predicate kind with no registered
	// compiler. Only returned in strict mode; otherwise logged.
	ErrCodeCompilationGap ErrorCode = "COMPILATION_GAP"

	// ErrCodeInvalidPredicate indicates a predicate failed validation.
	ErrCodeInvalidPredicate ErrorCode = "INVALID_PREDICATE"

	// ErrCodeTransportFailed indicates the transport rejected or failed a call.
	ErrCodeTransportFailed ErrorCode = "TRANSPORT_FAILED"

	// ErrCodeInvalidConfig indicates configuration failed validation.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
)

// Error is the structured error type of the access layer.
//
// Two errors are considered equal by errors.Is when their codes match, so
// callers can test against the sentinel values below:
//
//	if errors.Is(err, graph.ErrNotFound) { ... }
type Error struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound         = &Error{Code: ErrCodeNotFound}
	ErrRetryExhausted   = &Error{Code: ErrCodeRetryExhausted}
	ErrCompilationGap   = &Error{Code: ErrCodeCompilationGap}
	ErrInvalidPredicate = &Error{Code: ErrCodeInvalidPredicate}
	ErrInvalidConfig    = &Error{Code: ErrCodeInvalidConfig}
	ErrTransportFailed  = &Error{Code: ErrCodeTransportFailed}
)

// Error implements the error interface.
// Format: "CODE: message" or "CODE: message: cause".
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var ge *Error
	if errors.As(target, &ge) {
		return e.Code == ge.Code
	}
	return false
}

// NewError creates a non-retryable error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a non-retryable error wrapping cause.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// NewNotFound creates a NOT_FOUND error for the given entity kind and identity.
func NewNotFound(kind Kind, id int64) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %d not found", kind, id),
	}
}

// IsNotFound reports whether err (or anything it wraps) is a NOT_FOUND error.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsRetryExhausted reports whether err is a RETRY_EXHAUSTED error.
func IsRetryExhausted(err error) bool {
	return hasCode(err, ErrCodeRetryExhausted)
}

// IsCompilationGap reports whether err is a COMPILATION_GAP error.
func IsCompilationGap(err error) bool {
	return hasCode(err, ErrCodeCompilationGap)
}

// IsRetryable reports whether err is marked retryable anywhere in its chain.
func IsRetryable(err error) bool {
	var ge *Error
	for errors.As(err, &ge) {
		if ge.Retryable {
			return true
		}
		err = ge.Cause
		ge = nil
	}
	return false
}

func hasCode(err error, code ErrorCode) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code == code
	}
	return false
}
