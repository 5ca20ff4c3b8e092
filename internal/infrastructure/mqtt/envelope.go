package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the broker-side telemetry wrapper. Devices publishing directly
// to the fleet broker wrap their readings in this shape; Payload carries the
// same partial-message JSON the push channel delivers, so both ingest paths
// share one normalizer.
type Envelope struct {
	DeviceID  string          `json:"device_id"`
	Timestamp time.Time       `json:"timestamp"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

// ParseEnvelope decodes and validates one broker message.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if env.DeviceID == "" {
		return Envelope{}, fmt.Errorf("%w: missing device_id", ErrBadEnvelope)
	}
	if len(env.Payload) == 0 {
		return Envelope{}, fmt.Errorf("%w: missing payload", ErrBadEnvelope)
	}
	return env, nil
}
