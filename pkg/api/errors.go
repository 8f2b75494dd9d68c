package api

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTimeout is returned when a request exceeds the client's fixed timeout.
var ErrTimeout = errors.New("api: request timed out")

// Backend error codes carried in the {"error":{"code","message"}} envelope.
const (
	CodeBadRequest      = "BAD_REQUEST"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeNotFound        = "NOT_FOUND"
	CodeInternal        = "INTERNAL"
	CodeSessionExpired  = "SESSION_EXPIRED"
	CodeSessionMismatch = "SESSION_MISMATCH"
	CodeSessionRequired = "SESSION_REQUIRED"
	CodeQuoteExpired    = "QUOTE_EXPIRED"
	CodeLimitExceeded   = "SESSION_LIMIT_EXCEEDED"
)

// HTTPError is a non-2xx response from the backend.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
	Method     string
	Path       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// NetworkError wraps transport failures that are neither timeouts nor HTTP statuses.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: network error: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == 404
}

// legacySessionMessages are matched only when the backend sends a generic code.
var legacySessionMessages = []string{
	"session expired",
	"session mismatch",
	"active session required",
}

// RequiresFallback reports whether err means the session fast path cannot be
// used and the payment should be retried with the primary wallet key.
func RequiresFallback(err error) bool {
	if err == nil {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		switch he.Code {
		case CodeSessionExpired, CodeSessionMismatch, CodeSessionRequired:
			return true
		}
		return RequiresFallbackMessage(he.Message)
	}
	return false
}

// RequiresFallbackMessage classifies a raw message for backends that predate
// structured session codes.
func RequiresFallbackMessage(message string) bool {
	normalized := strings.ToLower(message)
	for _, m := range legacySessionMessages {
		if strings.Contains(normalized, m) {
			return true
		}
	}
	return false
}
