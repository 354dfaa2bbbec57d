/**
 * @description
 * This file defines the tagged error type used across the service. Errors are
 * constructed with a machine-readable code and a human message at the point
 * of detection and propagate unmodified to the API boundary, which maps the
 * kind to an HTTP status. This replaces duck-typed exception-shape inspection
 * with an explicit, matchable type.
 */

package domain

import "net/http"

// ErrorKind classifies an error for HTTP mapping and retryability decisions.
type ErrorKind string

const (
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindValidation   ErrorKind = "validation"
	KindAuthFailure  ErrorKind = "auth_failure" // decryption/token failures at the transport boundary
	KindInternal     ErrorKind = "internal"
)

// Error is the structured error carried through the service.
type Error struct {
	Kind    ErrorKind `json:"-"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// HTTPStatus maps the error kind to the status class the boundary returns.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized, KindAuthFailure:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func NotFoundError(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func ConflictError(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func UnauthorizedError(code, message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: code, Message: message}
}

func ForbiddenError(code, message string) *Error {
	return &Error{Kind: KindForbidden, Code: code, Message: message}
}

func ValidationError(code, message, field string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message, Field: field}
}

func AuthFailureError(code, message string) *Error {
	return &Error{Kind: KindAuthFailure, Code: code, Message: message}
}

func InternalError(message string) *Error {
	return &Error{Kind: KindInternal, Code: "internal_error", Message: message}
}
