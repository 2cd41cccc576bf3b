// Package errors defines the application error taxonomy shared by every
// layer, with HTTP mapping information for the delivery layer.
package errors

import (
	"net/http"

	"lens/internal/errors"
)

// AppError defines the interface for application-specific errors
type AppError interface {
	error
	HTTPCode() int     // HTTP status code
	ErrorCode() string // Business error code
	Message() string   // User-friendly error message
	Details() string   // Detailed error information (optional)
}

// BaseError is a basic error structure that implements the AppError interface
type BaseError struct {
	httpCode  int
	errorCode string
	message   string
	details   string
}

// NewBaseError creates a new base error
func NewBaseError(httpCode int, errorCode, message, details string) *BaseError {
	return &BaseError{
		httpCode:  httpCode,
		errorCode: errorCode,
		message:   message,
		details:   details,
	}
}

// Error implements the error interface
func (e *BaseError) Error() string {
	return e.message
}

// WrapMessage wraps the error with additional context message
func (e *BaseError) WrapMessage(message string) error {
	return errors.Wrap(e, message)
}

// HTTPCode returns the HTTP status code
func (e *BaseError) HTTPCode() int {
	return e.httpCode
}

// ErrorCode returns the business error code
func (e *BaseError) ErrorCode() string {
	return e.errorCode
}

// Message returns the user-friendly error message
func (e *BaseError) Message() string {
	return e.message
}

// Details returns detailed error information
func (e *BaseError) Details() string {
	return e.details
}

// Is matches errors by business error code, so copies produced by
// WithDetails still compare equal to their sentinel under errors.Is.
func (e *BaseError) Is(target error) bool {
	t, ok := target.(*BaseError)

	return ok && t.errorCode == e.errorCode
}

// WithDetails adds detailed error information
func (e *BaseError) WithDetails(details string) *BaseError {
	return &BaseError{
		httpCode:  e.httpCode,
		errorCode: e.errorCode,
		message:   e.message,
		details:   details,
	}
}

// Predefined error types
var (
	// ErrResolutionFailed reports that a handle or DID could not be
	// resolved to an identity. Terminal for the lookup; never retried
	// internally.
	ErrResolutionFailed = NewBaseError(
		http.StatusNotFound,
		"RESOLUTION_FAILED",
		"identity could not be resolved",
		"",
	)

	// ErrNoStoredSession reports that no session material exists for the
	// requested account. The user must log in.
	ErrNoStoredSession = NewBaseError(
		http.StatusNotFound,
		"NO_STORED_SESSION",
		"no stored session for this account",
		"",
	)

	// ErrUnauthorized reports that the operation requires credentials the
	// caller does not have.
	ErrUnauthorized = NewBaseError(
		http.StatusUnauthorized,
		"UNAUTHORIZED",
		"operation requires authentication",
		"",
	)

	// ErrNetwork reports a transient network failure. Propagated untouched;
	// retry policy is a caller concern.
	ErrNetwork = NewBaseError(
		http.StatusBadGateway,
		"NETWORK_ERROR",
		"upstream request failed",
		"",
	)

	// ErrInvalidFormat reports corrupt or foreign data, such as a malformed
	// TID or AT-URI.
	ErrInvalidFormat = NewBaseError(
		http.StatusBadRequest,
		"INVALID_FORMAT",
		"value is not in the expected format",
		"",
	)

	// ErrAborted marks a call canceled by its context. Not a true error;
	// error-reporting paths must filter it out.
	ErrAborted = NewBaseError(
		499,
		"ABORTED",
		"request was canceled",
		"",
	)

	// ErrNotFound reports a missing record or repository.
	ErrNotFound = NewBaseError(
		http.StatusNotFound,
		"NOT_FOUND",
		"resource not found",
		"",
	)

	// ErrUpstream reports a non-2xx XRPC response that is not an auth or
	// not-found condition.
	ErrUpstream = NewBaseError(
		http.StatusBadGateway,
		"UPSTREAM_ERROR",
		"upstream service returned an error",
		"",
	)
)

// IsAborted reports whether err represents a canceled call. Callers use it
// to filter cancellation out of error handling.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted)
}
