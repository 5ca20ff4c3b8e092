package roster

import "errors"

// Package-level errors for roster management.
var (
	// ErrRefreshFailed indicates the authoritative listing could not be
	// fetched; the previous roster stays in effect.
	ErrRefreshFailed = errors.New("roster: refresh failed")

	// ErrCacheUnavailable indicates the local warm-start cache could not be
	// read or written.
	ErrCacheUnavailable = errors.New("roster: cache unavailable")
)
