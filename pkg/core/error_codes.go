package core

import (
	"errors"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// ErrorCode identifies a specific transport error condition.
// Error codes provide a stable, machine-readable way to distinguish failures
// without inspecting message text.
type ErrorCode string

// Error code constants define standardized identifiers for transport conditions.
const (
	// ErrCodeNetwork indicates a network connectivity failure.
	ErrCodeNetwork ErrorCode = "NETWORK_ERROR"
	// ErrCodeTimeout indicates the request exceeded its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeServerError indicates the endpoint answered with a 5xx status
	// instead of a GraphQL envelope. Treated as transient.
	ErrCodeServerError ErrorCode = "SERVER_ERROR"
	// ErrCodeRateLimited indicates the server throttled the request.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrCodeBadResponse indicates the response envelope could not be parsed.
	ErrCodeBadResponse ErrorCode = "BAD_RESPONSE"
	// ErrCodeInvalidOperation indicates the GraphQL document is malformed.
	ErrCodeInvalidOperation ErrorCode = "INVALID_OPERATION"
	// ErrCodeInvalidConfig indicates the router configuration is invalid.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// Server-assigned GraphQL error codes carried in error extensions.
	ErrCodeUnauthenticated ErrorCode = "UNAUTHENTICATED"
	ErrCodeForbidden       ErrorCode = "FORBIDDEN"
	ErrCodeBadUserInput    ErrorCode = "BAD_USER_INPUT"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeInternal        ErrorCode = "INTERNAL_SERVER_ERROR"

	// Session lifecycle errors
	ErrCodeSessionExpired ErrorCode = "SESSION_EXPIRED"
	ErrCodeNoCredentials  ErrorCode = "NO_CREDENTIALS"

	// Client state errors
	ErrCodeRouterClosed  ErrorCode = "ROUTER_CLOSED"
	ErrCodeChannelClosed ErrorCode = "CHANNEL_CLOSED"
	ErrCodeStreamClosed  ErrorCode = "STREAM_CLOSED"

	// Streaming errors
	ErrCodeStreamingUnavailable ErrorCode = "STREAMING_UNAVAILABLE"
	ErrCodeSubscriptionLimit    ErrorCode = "SUBSCRIPTION_LIMIT"

	// Circuit breaker errors
	ErrCodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"
)

// IsErrorCode checks if the error matches the specified error code.
// It extracts the transport error and compares its code field against the
// provided ErrorCode.
func IsErrorCode(err error, code ErrorCode) bool {
	var terr *TransportError
	if errors.As(err, &terr) {
		return ErrorCode(terr.Code) == code
	}
	return false
}

// GraphQLErrorCode extracts the extensions code from a server GraphQL error.
// It returns the empty code when none is present.
func GraphQLErrorCode(e *gqlerror.Error) ErrorCode {
	if e == nil || e.Extensions == nil {
		return ""
	}
	if c, ok := e.Extensions["code"].(string); ok {
		return ErrorCode(c)
	}
	return ""
}

// HasErrorCode reports whether any error in a GraphQL error list carries the
// given extensions code.
func HasErrorCode(errs gqlerror.List, code ErrorCode) bool {
	for _, e := range errs {
		if GraphQLErrorCode(e) == code {
			return true
		}
	}
	return false
}
