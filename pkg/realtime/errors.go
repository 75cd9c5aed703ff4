package realtime

import "fmt"

// Error is the session subsystem's error type.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrServiceUnavailable means the subsystem cannot start at all, for
	// example because no upstream credentials are configured.
	ErrServiceUnavailable ErrorType = "service_unavailable"
	// ErrCapacityExceeded rejects one admission request; existing sessions
	// are unaffected.
	ErrCapacityExceeded ErrorType = "capacity_exceeded"
	// ErrResourceNotFound means a referenced persona or scenario does not
	// exist; fatal to session creation only.
	ErrResourceNotFound ErrorType = "resource_not_found"
	// ErrUpstreamConnectFailure means the provider dial failed; fatal to
	// the session, never retried.
	ErrUpstreamConnectFailure ErrorType = "upstream_connect_failure"
	// ErrUpstreamDisconnect means the provider dropped an active session;
	// the client must start a new one.
	ErrUpstreamDisconnect ErrorType = "upstream_unexpected_disconnect"
	// ErrMalformedClientFrame is logged and absorbed; the session continues.
	ErrMalformedClientFrame ErrorType = "malformed_client_frame"
	// ErrInternal covers unexpected failures, including recovered panics.
	ErrInternal ErrorType = "internal_error"
	// ErrAuthentication rejects a request with a missing or invalid key.
	ErrAuthentication ErrorType = "authentication_error"
)

// NewServiceUnavailableError creates a subsystem-startup error.
func NewServiceUnavailableError(message string) *Error {
	return &Error{Type: ErrServiceUnavailable, Message: message}
}

// NewCapacityExceededError creates an admission rejection.
func NewCapacityExceededError(message string) *Error {
	return &Error{Type: ErrCapacityExceeded, Message: message}
}

// NewResourceNotFoundError creates a missing persona/scenario error.
func NewResourceNotFoundError(message string) *Error {
	return &Error{Type: ErrResourceNotFound, Message: message}
}

// NewUpstreamConnectFailureError creates a provider dial failure.
func NewUpstreamConnectFailureError(message string) *Error {
	return &Error{Type: ErrUpstreamConnectFailure, Message: message}
}

// NewUpstreamDisconnectError creates a provider disconnect error.
func NewUpstreamDisconnectError(message string) *Error {
	return &Error{Type: ErrUpstreamDisconnect, Message: message}
}

// NewMalformedClientFrameError creates a bad-frame error.
func NewMalformedClientFrameError(message string) *Error {
	return &Error{Type: ErrMalformedClientFrame, Message: message}
}

// NewInternalError creates a generic internal error.
func NewInternalError(message string) *Error {
	return &Error{Type: ErrInternal, Message: message}
}

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(message string) *Error {
	return &Error{Type: ErrAuthentication, Message: message}
}
