package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/fleexa/device-sync/internal/state"
)

// WriteLiveState forwards the numeric telemetry of one applied update.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Boolean flags are written as 0/1 fields so connectivity and toggle
// transitions are queryable alongside the electrical readings.
func (c *Client) WriteLiveState(ls state.LiveState) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"power":        ls.Metrics.Power,
		"current":      ls.Metrics.Current,
		"voltage":      ls.Metrics.Voltage,
		"power_factor": ls.Metrics.PowerFactor,
		"total_energy": ls.Metrics.TotalEnergy,
		"connected":    boolToInt(ls.Connected),
		"toggle":       boolToInt(ls.On),
	}

	ts := ls.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	point := write.NewPoint(
		"device_state",
		map[string]string{"device_id": ls.DeviceID},
		fields,
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit WriteLiveState, e.g. connection
// transitions or roster sizes.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
