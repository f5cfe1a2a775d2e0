package uber

import (
	"errors"
	"fmt"
	"time"
)

// AuthenticationError indicates the token was rejected (HTTP 401) or a token
// request failed. It is never retried here; the caller must trigger
// re-authorization.
type AuthenticationError struct {
	StatusCode int
	Body       string
}

func (e *AuthenticationError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("authentication failed: HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("authentication failed: HTTP %d", e.StatusCode)
}

// RateLimitError indicates HTTP 429 or an exhausted local call budget.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	if e.ResetAt.IsZero() {
		return "rate limited"
	}
	return fmt.Sprintf("rate limited until %s", e.ResetAt.Format(time.RFC3339))
}

// NotFoundError indicates HTTP 404 on any endpoint other than the
// current-ride endpoint (a 404 there means "no active ride" and is not an
// error).
type NotFoundError struct {
	Endpoint string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resource not found: %s", e.Endpoint)
}

// TransientNetworkError wraps a transport-level failure (timeout, connection
// refused). Eligible for retry on the caller's own schedule.
type TransientNetworkError struct {
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *TransientNetworkError) Unwrap() error {
	return e.Err
}

// IsAuthenticationError reports whether err is an AuthenticationError
// anywhere in its chain.
func IsAuthenticationError(err error) bool {
	var target *AuthenticationError
	return errors.As(err, &target)
}

// IsRateLimitError reports whether err is a RateLimitError anywhere in its
// chain.
func IsRateLimitError(err error) bool {
	var target *RateLimitError
	return errors.As(err, &target)
}

// IsNotFoundError reports whether err is a NotFoundError anywhere in its
// chain.
func IsNotFoundError(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// APIError is the catch-all for other 4xx/5xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error: %s", e.Message)
	}
	return fmt.Sprintf("API error: HTTP %d", e.StatusCode)
}
