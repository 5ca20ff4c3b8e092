package command

import "errors"

// Package-level errors for the command dispatcher.
var (
	// ErrInFlight indicates a command of the same kind is already pending
	// for the device; the new request is rejected rather than queued.
	ErrInFlight = errors.New("command: already in flight")

	// ErrRolledBack indicates the server call failed and the optimistic
	// write was reverted.
	ErrRolledBack = errors.New("command: failed and rolled back")

	// ErrInvalidSchedule indicates a schedule payload with out-of-range
	// hour, minute, or weekday values.
	ErrInvalidSchedule = errors.New("command: invalid schedule")
)
