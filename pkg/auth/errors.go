package auth

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoSession is returned when an operation needs a session and none is held.
	ErrNoSession = errors.New("no active session")
	// ErrTokenMalformed is returned when a token cannot be decoded.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenExpired is returned when a token is past its exp claim.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidGrant is returned when the API answers a refresh without a usable token.
	ErrInvalidGrant = errors.New("refresh returned no usable token")
)

// APIError is a non-2xx response from the membership API.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, msg)
}

// Terminal reports whether the session cannot be recovered by retrying.
func (e *APIError) Terminal() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsTerminal reports whether err carries a 401 or 403 from the API.
func IsTerminal(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Terminal()
}
