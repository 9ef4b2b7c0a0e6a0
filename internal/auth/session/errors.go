package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLoggedIn is returned when no persisted session exists.
	// The caller must run the OTP flow before anything else can work.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrNoRefreshToken is returned when the persisted session has no
	// refresh token to exchange.
	ErrNoRefreshToken = errors.New("no refresh token")

	// ErrSessionExpired is returned when the refresh token itself was
	// rejected. Not retryable: requires full re-authentication.
	ErrSessionExpired = errors.New("session expired")
)

// RefreshFailedError is returned for refresh failures other than an
// outright rejection of the refresh token (transport faults, non-2xx
// statuses, unparseable or explicit-failure bodies).
type RefreshFailedError struct {
	Detail string
}

func (e *RefreshFailedError) Error() string {
	return fmt.Sprintf("session refresh failed: %s", e.Detail)
}
