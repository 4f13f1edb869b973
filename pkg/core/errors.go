package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// ErrorType represents the category of a transport error.
type ErrorType int

// Error type constants categorize failures for retry and recovery decisions.
const (
	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeNetwork indicates a transport-level failure such as a refused
	// connection, a reset, a DNS failure, or a timeout. Retryable.
	ErrorTypeNetwork
	// ErrorTypeProtocol indicates a violated transport contract: a missing
	// endpoint, a malformed frame, or an unparsable response envelope.
	ErrorTypeProtocol
	// ErrorTypeAuth indicates missing, rejected, or expired credentials.
	ErrorTypeAuth
	// ErrorTypeApplication indicates a well-formed error returned by the
	// server for the operation itself. Never retried.
	ErrorTypeApplication
)

// String returns the string representation of the error type.
func (t ErrorType) String() string {
	return [...]string{
		"UNKNOWN",
		"NETWORK",
		"PROTOCOL",
		"AUTH",
		"APPLICATION",
	}[t]
}

// Sentinel errors for terminal transport conditions.
var (
	// ErrStreamingUnavailable is returned when a subscription is issued but
	// no streaming endpoint is configured.
	ErrStreamingUnavailable = errors.New("streaming endpoint not configured")
	// ErrSessionExpired is returned when a credential refresh fails and the
	// stored credential has been cleared.
	ErrSessionExpired = errors.New("session expired")
	// ErrRouterClosed is returned when attempting to use a closed router.
	ErrRouterClosed = errors.New("router is closed")
	// ErrStreamClosed is returned when attempting to use a closed stream.
	ErrStreamClosed = errors.New("stream is closed")
	// ErrChannelClosed is returned when subscribing on a closed socket channel.
	ErrChannelClosed = errors.New("socket channel is closed")
	// ErrCircuitOpen is returned when the circuit breaker rejects a request.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrSubscriptionLimit is returned when the concurrent subscription cap is reached.
	ErrSubscriptionLimit = errors.New("subscription limit reached")
)

// TransportError is a structured error produced by the transport layer.
// It provides the context needed for retry decisions and for UI rendering.
type TransportError struct {
	// Type categorizes the error for programmatic handling.
	Type ErrorType `json:"type"`
	// StatusCode is the HTTP status code, when a response was received.
	StatusCode int `json:"status_code,omitempty"`
	// Code is a stable machine-readable identifier for the condition.
	Code string `json:"code,omitempty"`
	// Message is the human-readable error description.
	Message string `json:"message"`
	// Op names the GraphQL operation the error belongs to, when known.
	Op string `json:"op,omitempty"`
	// Errors carries the server-returned GraphQL errors verbatim.
	Errors gqlerror.List `json:"errors,omitempty"`
	// Err is the underlying cause, if any.
	Err error `json:"-"`
	// Timestamp is when the error occurred.
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface for TransportError.
func (e *TransportError) Error() string {
	prefix := e.Type.String()
	if e.Op != "" {
		prefix = fmt.Sprintf("[%s] %s", e.Op, e.Type)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", prefix, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying cause for errors.Is and errors.As matching.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// WithCode returns the error with the specified error code set.
func (e *TransportError) WithCode(code ErrorCode) *TransportError {
	e.Code = string(code)
	return e
}

// WithOp returns the error with the operation name set.
func (e *TransportError) WithOp(op string) *TransportError {
	e.Op = op
	return e
}

// NewTransportError creates a new TransportError with the specified details.
// The timestamp is automatically set to the current time.
func NewTransportError(errorType ErrorType, statusCode int, message string) *TransportError {
	return &TransportError{
		Type:       errorType,
		StatusCode: statusCode,
		Message:    message,
		Timestamp:  time.Now(),
	}
}

// WrapTransportError wraps cause in a TransportError, preserving it for
// errors.Is and errors.As matching.
func WrapTransportError(errorType ErrorType, code ErrorCode, cause error) *TransportError {
	return &TransportError{
		Type:      errorType,
		Code:      string(code),
		Message:   cause.Error(),
		Err:       cause,
		Timestamp: time.Now(),
	}
}

// FromGraphQL converts a server-returned GraphQL error list into a
// TransportError. Classification is structural: only the extensions code is
// inspected, never the message text. An authentication code anywhere in the
// list takes precedence over other codes.
func FromGraphQL(statusCode int, errs gqlerror.List) *TransportError {
	if len(errs) == 0 {
		return nil
	}

	var code ErrorCode
	for _, ge := range errs {
		c := GraphQLErrorCode(ge)
		if code == "" {
			code = c
		}
		if c == ErrCodeUnauthenticated {
			code = c
			break
		}
	}

	return &TransportError{
		Type:       typeForCode(code),
		StatusCode: statusCode,
		Code:       string(code),
		Message:    errs[0].Message,
		Errors:     errs,
		Timestamp:  time.Now(),
	}
}

// typeForCode maps a server error code onto the transport error taxonomy.
// Codes without a known mapping are application errors by definition.
func typeForCode(code ErrorCode) ErrorType {
	switch code {
	case ErrCodeUnauthenticated, ErrCodeForbidden, ErrCodeSessionExpired:
		return ErrorTypeAuth
	case ErrCodeNetwork, ErrCodeTimeout, ErrCodeServerError, ErrCodeRateLimited, ErrCodeCircuitOpen:
		return ErrorTypeNetwork
	default:
		return ErrorTypeApplication
	}
}

// IsNetworkError returns true if the error is a transport-level network failure.
// Network errors are the only errors eligible for the HTTP retry loop.
func IsNetworkError(err error) bool {
	var terr *TransportError
	if errors.As(err, &terr) {
		return terr.Type == ErrorTypeNetwork
	}
	return false
}

// IsProtocolError returns true if the error indicates a violated transport contract.
func IsProtocolError(err error) bool {
	var terr *TransportError
	if errors.As(err, &terr) {
		return terr.Type == ErrorTypeProtocol
	}
	return false
}

// IsAuthError returns true if the error is an authentication failure.
func IsAuthError(err error) bool {
	var terr *TransportError
	if errors.As(err, &terr) {
		return terr.Type == ErrorTypeAuth
	}
	return false
}

// IsApplicationError returns true if the error was returned by the server for
// the operation itself. Application errors pass through to the caller verbatim.
func IsApplicationError(err error) bool {
	var terr *TransportError
	if errors.As(err, &terr) {
		return terr.Type == ErrorTypeApplication
	}
	return false
}

// IsRetryable reports whether the error may be retried on the HTTP path.
func IsRetryable(err error) bool {
	return IsNetworkError(err)
}
