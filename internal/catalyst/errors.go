package catalyst

import (
	"errors"
	"fmt"
)

// AuthError indicates the token endpoint rejected the configured credentials
// or was unreachable. Fatal for the calling extraction; never retried here.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("catalyst authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// APIError is a resource-endpoint failure carrying the HTTP status and the
// path that produced it. StatusCode 0 means the request never completed
// (network error or timeout).
type APIError struct {
	StatusCode int
	Path       string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalyst API error (status %d) for %s: %s: %v",
			e.StatusCode, e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("catalyst API error (status %d) for %s: %s",
		e.StatusCode, e.Path, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure is worth another attempt: rate
// limiting, server-side errors, and network failures. Other client errors are
// configuration or endpoint-mismatch problems and retrying cannot help.
func (e *APIError) Transient() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == 429:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
