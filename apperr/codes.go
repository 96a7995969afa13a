// Package apperr provides coded errors that map onto HTTP responses.
package apperr

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	CodeValidation         Code = "VALIDATION"
	CodeConflict           Code = "CONFLICT"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeInternal           Code = "INTERNAL"
)

// HTTPStatus maps a code to the status written at the handler boundary.
func (c Code) HTTPStatus() int {
	switch c {
	// Duplicate usernames/emails are reported as bad requests, not 409.
	case CodeValidation, CodeConflict:
		return http.StatusBadRequest
	case CodeInvalidCredentials, CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
