package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable, caller-visible error classification.
type ErrorCode string

const (
	CodeValidation        ErrorCode = "VALIDATION"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeForbidden         ErrorCode = "FORBIDDEN"
	CodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	CodeInsufficientStock ErrorCode = "INSUFFICIENT_STOCK"
	CodeWouldUnderflow    ErrorCode = "WOULD_UNDERFLOW"
	CodeInvalidCommit     ErrorCode = "INVALID_COMMIT"
	CodeStaleWrite        ErrorCode = "STALE_WRITE"
	CodeContended         ErrorCode = "CONTENDED"
	CodeInconsistent      ErrorCode = "INCONSISTENT"
)

// Error is the engine's error value: a stable code, a human message, and
// optional structured details.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]string
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports code equality, so errors.Is(err, ErrInsufficientStock) matches
// any *Error carrying the same code regardless of message or details.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrNotFound          = &Error{Code: CodeNotFound, Message: "not found"}
	ErrForbidden         = &Error{Code: CodeForbidden, Message: "actor role not permitted"}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition, Message: "invalid status transition"}
	ErrInsufficientStock = &Error{Code: CodeInsufficientStock, Message: "insufficient stock available"}
	ErrWouldUnderflow    = &Error{Code: CodeWouldUnderflow, Message: "inventory mutation would underflow"}
	ErrInvalidCommit     = &Error{Code: CodeInvalidCommit, Message: "commit exceeds reserved units"}
	ErrStaleWrite        = &Error{Code: CodeStaleWrite, Message: "concurrent mutation intervened"}
	ErrContended         = &Error{Code: CodeContended, Message: "retries exhausted, try again"}
	ErrInconsistent      = &Error{Code: CodeInconsistent, Message: "inventory inconsistent, reconciliation required"}
)

// Validationf builds a VALIDATION error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a NOT_FOUND error naming the missing thing.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// WithDetails returns a copy of e carrying the given details.
func (e *Error) WithDetails(details map[string]string) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: details}
}

// CodeOf extracts the stable code from any error in err's chain, or "" when
// the error did not originate in the domain.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
