package httputil

import (
	"errors"
	"net/http"
)

// AppError is an operational error with an HTTP status. Handlers return
// it up the stack; WriteError renders it as the standard envelope.
// Errors without a status (programmer errors, wrapped driver failures)
// surface as a generic 500.
type AppError struct {
	Message    string
	StatusCode int
	Details    map[string]interface{}
	cause      error
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause attaches the underlying error without changing what clients see.
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails attaches structured detail rendered in the error envelope.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// NewAppError builds an error with an explicit status code.
func NewAppError(message string, status int) *AppError {
	return &AppError{Message: message, StatusCode: status}
}

// NewValidationError builds a 400 error.
func NewValidationError(message string) *AppError {
	return &AppError{Message: message, StatusCode: http.StatusBadRequest}
}

// NewAuthenticationError builds a 401 error.
func NewAuthenticationError(message string) *AppError {
	return &AppError{Message: message, StatusCode: http.StatusUnauthorized}
}

// NewAuthorizationError builds a 403 error.
func NewAuthorizationError(message string) *AppError {
	return &AppError{Message: message, StatusCode: http.StatusForbidden}
}

// NewNotFoundError builds a 404 error.
func NewNotFoundError(message string) *AppError {
	return &AppError{Message: message, StatusCode: http.StatusNotFound}
}

// NewConflictError builds a 409 error.
func NewConflictError(message string) *AppError {
	return &AppError{Message: message, StatusCode: http.StatusConflict}
}

// NewServiceUnavailableError builds a 500 error for a failed dependency.
// Upstream outages are reported as internal failures, not client faults.
func NewServiceUnavailableError(message string) *AppError {
	return &AppError{Message: message, StatusCode: http.StatusInternalServerError}
}

// AsAppError unwraps err looking for an *AppError anywhere in the chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// StatusOf returns the HTTP status an error maps to.
func StatusOf(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
