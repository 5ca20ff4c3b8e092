package transport

import "errors"

// Package-level errors for the push-channel connection.
var (
	// ErrDialFailed indicates the channel handshake did not complete.
	ErrDialFailed = errors.New("transport: dial failed")

	// ErrRetriesExhausted indicates the automatic reconnect budget is spent;
	// the connection stays down until Retry is called.
	ErrRetriesExhausted = errors.New("transport: retries exhausted")

	// ErrNoToken indicates the session could not supply a channel token.
	ErrNoToken = errors.New("transport: no session token")
)
