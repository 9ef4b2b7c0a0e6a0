package client

import "errors"

var (
	// ErrNotConnected is returned for content sends while the client is
	// not Online. Chat-state notifications no-op instead.
	ErrNotConnected = errors.New("not connected")

	// ErrAuthFailed is returned when the platform rejects the SASL
	// exchange during connect.
	ErrAuthFailed = errors.New("stream authentication failed")
)
