package influxdb

import "errors"

// Domain-specific errors for InfluxDB operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrDisabled is returned when connecting while the sink is disabled in config.
	ErrDisabled = errors.New("influxdb: sink disabled in configuration")

	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned when attempting operations on a closed client.
	ErrNotConnected = errors.New("influxdb: client not connected")
)
