package model

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Standard error codes.
const (
	ErrBadRequest         = "BAD_REQUEST"
	ErrNotFound           = "NOT_FOUND"
	ErrValidationError    = "VALIDATION_ERROR"
	ErrScreenBusy         = "SCREEN_BUSY"
	ErrTooManySessions    = "TOO_MANY_SESSIONS"
	ErrInternalError      = "INTERNAL_ERROR"
	ErrBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrBackendTimeout     = "BACKEND_TIMEOUT"
	ErrBackendRejected    = "BACKEND_REJECTED"
)

// ErrUserDeclined is returned by a row action whose confirmation was
// dismissed. It is an outcome, not a failure: nothing was sent.
var ErrUserDeclined = errors.New("action declined by user")

// ErrFlowInProgress is returned when a flow is started while another flow
// on the same screen still holds the lock.
var ErrFlowInProgress = errors.New("another operation is in progress")

// ErrorEnvelope is the standard error response envelope returned by the BFF.
// It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewScreenBusyError returns a SCREEN_BUSY error.
func NewScreenBusyError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrScreenBusy,
		Message: "Another operation is still running on this screen",
	}
}

// NewTooManySessionsError returns a TOO_MANY_SESSIONS error.
func NewTooManySessionsError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrTooManySessions,
		Message: "Too many open screens, try again later",
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewBackendUnavailableError returns a BACKEND_UNAVAILABLE error.
func NewBackendUnavailableError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrBackendUnavailable,
		Message: "The backend service is temporarily unavailable",
	}
}

// NewBackendTimeoutError returns a BACKEND_TIMEOUT error.
func NewBackendTimeoutError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrBackendTimeout,
		Message: "The backend service did not respond in time",
	}
}

// NewBackendRejectedError returns a BACKEND_REJECTED error carrying the
// backend's status code in the message.
func NewBackendRejectedError(status int) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrBackendRejected,
		Message: fmt.Sprintf("The backend service rejected the request (status %d)", status),
	}
}

// TransportError reports a failed exchange with the backend: the network
// was unreachable, the response status was not 2xx, or the body could not
// be decoded.
type TransportError struct {
	Op         string
	Method     string
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("backend %s %s %s: status %d: %v", e.Op, e.Method, e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("backend %s %s %s: status %d", e.Op, e.Method, e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("backend %s %s %s: %v", e.Op, e.Method, e.URL, e.Err)
	}
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the exchange failed because a deadline passed
// before the backend answered.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// IsTransportError reports whether err wraps a TransportError and returns it.
func IsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
