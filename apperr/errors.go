package apperr

import "errors"

// Error is the application error type.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message, safe to show to clients
	Cause   error  // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates an error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Validation, NotFound and friends are shorthands used by the services.
func Validation(message string) *Error { return New(CodeValidation, message) }

func Conflict(message string) *Error { return New(CodeConflict, message) }

func NotFound(message string) *Error { return New(CodeNotFound, message) }

// Internal wraps an unexpected failure. The cause is kept for logs only.
func Internal(cause error) *Error {
	return Wrap(CodeInternal, "Server error", cause)
}

// As extracts an *Error from err. Errors that carry no code are reported as
// internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// CodeOf returns the code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	return As(err).Code
}
