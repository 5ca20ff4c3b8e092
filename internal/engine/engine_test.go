package engine

import (
	"encoding/json"
	"testing"

	"github.com/fleexa/device-sync/internal/state"
	"github.com/fleexa/device-sync/internal/stream"
)

func TestIngestAppliesNormalizedUpdates(t *testing.T) {
	store := state.NewStore()
	handler := ingest(stream.NewNormalizer(), store)

	handler([]byte(`{"device_id":"plug-1","power":42.5,"voltage":"231.2"}`))

	ls, ok := store.Get("plug-1")
	if !ok {
		t.Fatal("expected plug-1 to exist after ingest")
	}
	if ls.Metrics.Power != 42.5 || ls.Metrics.Voltage != 231.2 {
		t.Errorf("metrics = %+v", ls.Metrics)
	}
	if !ls.Connected {
		t.Error("recognized telemetry should mark the device connected")
	}
}

func TestIngestDropsMalformedFrames(t *testing.T) {
	store := state.NewStore()
	handler := ingest(stream.NewNormalizer(), store)

	handler([]byte(`not json at all`))
	handler([]byte(`{"unrelated":"shape"}`))

	if store.Count() != 0 {
		t.Errorf("store count = %d, want 0", store.Count())
	}
}

func TestIngestEnvelope(t *testing.T) {
	store := state.NewStore()
	handler := ingestEnvelope(stream.NewNormalizer(), store)

	inner, _ := json.Marshal(map[string]any{ //nolint:errcheck
		"device_id": "plug-2",
		"toggle":    1,
		"power":     10.0,
	})
	envelope, _ := json.Marshal(map[string]any{ //nolint:errcheck
		"device_id": "plug-2",
		"type":      "telemetry",
		"payload":   json.RawMessage(inner),
	})

	if err := handler("fleet/telemetry/plug-2", envelope); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	ls, ok := store.Get("plug-2")
	if !ok {
		t.Fatal("expected plug-2 to exist after envelope ingest")
	}
	if !ls.On || ls.Metrics.Power != 10.0 {
		t.Errorf("state = %+v", ls)
	}
}

func TestIngestEnvelopeRejectsBadEnvelope(t *testing.T) {
	store := state.NewStore()
	handler := ingestEnvelope(stream.NewNormalizer(), store)

	if err := handler("fleet/telemetry/x", []byte(`{"no":"envelope"}`)); err == nil {
		t.Error("expected an error for a payload without envelope fields")
	}
	if store.Count() != 0 {
		t.Errorf("store count = %d, want 0", store.Count())
	}
}
