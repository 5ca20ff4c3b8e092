package upstream

import "errors"

// Package-level errors for the upstream REST client.
var (
	// ErrAuthFailed indicates the token endpoint rejected the credentials.
	ErrAuthFailed = errors.New("upstream: authentication failed")

	// ErrUnauthorized indicates a data call returned 401; the session has
	// been invalidated and the next call will log in again.
	ErrUnauthorized = errors.New("upstream: unauthorized")

	// ErrRequestFailed indicates a non-2xx response on a data call.
	ErrRequestFailed = errors.New("upstream: request failed")

	// ErrCommandRejected indicates the server refused a device control call.
	ErrCommandRejected = errors.New("upstream: command rejected")
)
