// Package errors provides standardized domain errors with codes for fitconv.
//
// Usage:
//
//	// In the converter - return typed errors
//	if !bytes.Equal(tag, fitTag) {
//	    return errors.Conversion("bad header")
//	}
//
//	// In the pipeline - check with errors.Is
//	if errors.Is(err, errors.ErrConversion) {
//	    // permanent failure, quarantine the file
//	}
//
//	// Or use the Code directly for switch statements
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    switch domainErr.Code {
//	    case errors.CodeConversion:
//	        response.UnprocessableEntity(w, domainErr.Message, logger)
//	    case errors.CodeValidation:
//	        response.BadRequest(w, domainErr.Message, logger)
//	    }
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	// CodeConversion marks a domain-level defect in the input file itself
	// (corrupt, truncated, unsupported). Never retried.
	CodeConversion Code = "CONVERSION"
	// CodeNeverSettled marks a file that kept changing past the maximum
	// stabilization wait. Treated as permanent.
	CodeNeverSettled Code = "NEVER_SETTLED"
	// CodeUnavailable marks a transient operational fault (I/O error,
	// resource exhaustion). Eligible for retry.
	CodeUnavailable Code = "UNAVAILABLE"
	CodeNotFound    Code = "NOT_FOUND"
	CodeValidation  Code = "VALIDATION"
	CodeInternal    Code = "INTERNAL"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeConversion:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnavailable, CodeNeverSettled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional cause.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error  // unexported, for wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrConversion   = &Error{Code: CodeConversion, Message: "conversion failed"}
	ErrNeverSettled = &Error{Code: CodeNeverSettled, Message: "file never settled"}
	ErrUnavailable  = &Error{Code: CodeUnavailable, Message: "temporarily unavailable"}
	ErrNotFound     = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation   = &Error{Code: CodeValidation, Message: "validation error"}
	ErrInternal     = &Error{Code: CodeInternal, Message: "internal error"}
)

// Constructor functions for creating errors with custom messages.

// Conversion creates a permanent conversion error.
func Conversion(msg string) *Error {
	return &Error{Code: CodeConversion, Message: msg}
}

// Conversionf creates a permanent conversion error with formatted message.
func Conversionf(format string, args ...any) *Error {
	return &Error{Code: CodeConversion, Message: fmt.Sprintf(format, args...)}
}

// NeverSettled creates a stabilization timeout error.
func NeverSettled(msg string) *Error {
	return &Error{Code: CodeNeverSettled, Message: msg}
}

// Unavailable creates a transient error.
func Unavailable(msg string) *Error {
	return &Error{Code: CodeUnavailable, Message: msg}
}

// Unavailablef creates a transient error with formatted message.
func Unavailablef(format string, args ...any) *Error {
	return &Error{Code: CodeUnavailable, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
