package mqtt

import (
	"errors"
	"testing"
)

func TestParseEnvelope(t *testing.T) {
	raw := []byte(`{"device_id":"D1","timestamp":"2026-08-30T12:00:00Z","type":"telemetry","payload":{"device_id":"D1","power":44.5}}`)

	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("ParseEnvelope() error = %v", err)
	}
	if env.DeviceID != "D1" {
		t.Errorf("DeviceID = %q, want %q", env.DeviceID, "D1")
	}
	if env.Type != "telemetry" {
		t.Errorf("Type = %q, want %q", env.Type, "telemetry")
	}
	if string(env.Payload) != `{"device_id":"D1","power":44.5}` {
		t.Errorf("Payload = %s", env.Payload)
	}
}

func TestParseEnvelope_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `garbage`},
		{"missing device id", `{"type":"telemetry","payload":{}}`},
		{"missing payload", `{"device_id":"D1","type":"telemetry"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseEnvelope([]byte(tt.raw)); !errors.Is(err, ErrBadEnvelope) {
				t.Errorf("error = %v, want ErrBadEnvelope", err)
			}
		})
	}
}
