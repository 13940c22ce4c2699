// Package xiaoban provides a Go client for the xiaoban companion API.
package xiaoban

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents an error from the xiaoban API with the HTTP status code
// and the server's error message.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("xiaoban: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

func hasStatus(err error, code int) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == code
	}
	return false
}

// IsUnauthorized returns true if the error is a 401.
func IsUnauthorized(err error) bool { return hasStatus(err, http.StatusUnauthorized) }

// IsRateLimited returns true if the error is a 429 (Too Many Requests).
func IsRateLimited(err error) bool { return hasStatus(err, http.StatusTooManyRequests) }

// IsUnavailable returns true if the error is a 503, which the server uses
// for features that are not configured (push keys, proactive engine).
func IsUnavailable(err error) bool { return hasStatus(err, http.StatusServiceUnavailable) }

// IsInvalidInput returns true if the error is a 400.
func IsInvalidInput(err error) bool { return hasStatus(err, http.StatusBadRequest) }
