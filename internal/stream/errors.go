package stream

import "errors"

// Package-level errors for message normalization.
var (
	// ErrMalformedFrame indicates a frame that is not valid JSON at all.
	ErrMalformedFrame = errors.New("stream: malformed frame")

	// ErrUnknownShape indicates a valid JSON object that matches none of the
	// recognized message shapes.
	ErrUnknownShape = errors.New("stream: unknown message shape")

	// ErrMissingDeviceID indicates a recognized shape without a usable
	// device identifier.
	ErrMissingDeviceID = errors.New("stream: missing device id")
)
