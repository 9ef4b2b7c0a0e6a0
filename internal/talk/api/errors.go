package api

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned for HTTP 401 responses. For the refresh
	// endpoint this means the refresh token itself was rejected.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMalformedSessionResponse is returned when a session-shaped
	// response matches none of the known payload conventions.
	ErrMalformedSessionResponse = errors.New("malformed session response")
)

// StatusError carries a non-2xx response that is not a plain 401.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Detail)
}
