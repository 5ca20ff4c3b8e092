package stream

import (
	"errors"
	"testing"

	"github.com/fleexa/device-sync/internal/state"
)

func TestNormalize_StateShape(t *testing.T) {
	n := NewNormalizer()

	updates, err := n.Normalize([]byte(`{"_id":"D1","toggle":true,"auto":false,"hour_on":6,"minute_on":30}`))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(updates))
	}

	u := updates[0]
	if u.DeviceID != "D1" {
		t.Errorf("DeviceID = %q, want %q", u.DeviceID, "D1")
	}
	if u.Kind != KindState {
		t.Errorf("Kind = %v, want %v", u.Kind, KindState)
	}
	if u.Partial.On == nil || !*u.Partial.On {
		t.Error("On not set to true")
	}
	if u.Partial.Auto == nil || *u.Partial.Auto {
		t.Error("Auto not set to false")
	}
	if u.Partial.HourOn == nil || *u.Partial.HourOn != 6 {
		t.Error("HourOn not set to 6")
	}
	if u.Partial.Connected == nil || !*u.Partial.Connected {
		t.Error("message arrival must imply connected=true")
	}
	if u.Partial.Power != nil {
		t.Error("Power set but absent from payload")
	}
}

func TestNormalize_MetricsShape(t *testing.T) {
	n := NewNormalizer()

	updates, err := n.Normalize([]byte(`{"device_id":"D1","power":120.5,"current":0.52,"voltage":231,"power_factor":0.98,"total_energy":1042.7}`))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	u := updates[0]
	if u.Kind != KindMetrics {
		t.Errorf("Kind = %v, want %v", u.Kind, KindMetrics)
	}
	if u.Partial.Power == nil || *u.Partial.Power != 120.5 {
		t.Error("Power not extracted")
	}
	if u.Partial.TotalEnergy == nil || *u.Partial.TotalEnergy != 1042.7 {
		t.Error("TotalEnergy not extracted")
	}
	if u.Partial.On != nil {
		t.Error("On set on a metrics-only frame")
	}
}

func TestNormalize_CombinedShape(t *testing.T) {
	n := NewNormalizer()

	updates, err := n.Normalize([]byte(`{"_id":"D1","device_id":"D1","name":"Pump A","latitude":10.5,"toggle":1,"power":44}`))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	u := updates[0]
	if u.Kind != KindCombined {
		t.Errorf("Kind = %v, want %v", u.Kind, KindCombined)
	}
	if u.Partial.Name == nil || *u.Partial.Name != "Pump A" {
		t.Error("Name not extracted")
	}
	if u.Partial.Latitude == nil || *u.Partial.Latitude != 10.5 {
		t.Error("Latitude not extracted")
	}
	if u.Partial.On == nil || !*u.Partial.On {
		t.Error("numeric toggle 1 not decoded as true")
	}
	if u.Partial.Power == nil || *u.Partial.Power != 44 {
		t.Error("Power not extracted")
	}
}

func TestNormalize_LivenessFrames(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"string zero", `{"device_id":"D1","alive":"0"}`, false},
		{"string one", `{"device_id":"D1","alive":"1"}`, true},
		{"number", `{"device_id":"D1","alive":0}`, false},
		{"bool", `{"_id":"D1","alive":true}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updates, err := n.Normalize([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			u := updates[0]
			if u.Kind != KindLiveness {
				t.Errorf("Kind = %v, want %v", u.Kind, KindLiveness)
			}
			if u.Partial.Connected == nil || *u.Partial.Connected != tt.want {
				t.Errorf("Connected = %v, want %v", u.Partial.Connected, tt.want)
			}
			// Liveness must not touch anything else.
			p := u.Partial
			p.Connected = nil
			if !p.IsZero() {
				t.Error("liveness frame produced non-connectivity fields")
			}
		})
	}
}

func TestNormalize_ArrayOfObjects(t *testing.T) {
	n := NewNormalizer()

	updates, err := n.Normalize([]byte(`[{"_id":"D1","toggle":true},{"device_id":"D2","power":9}]`))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("got %d updates, want 2", len(updates))
	}
	if updates[0].DeviceID != "D1" || updates[1].DeviceID != "D2" {
		t.Errorf("device ids = %q, %q", updates[0].DeviceID, updates[1].DeviceID)
	}
}

func TestNormalize_ArrayOfEncodedStrings(t *testing.T) {
	n := NewNormalizer()

	raw := `["{\"_id\":\"D1\",\"toggle\":true}","{\"device_id\":\"D2\",\"power\":7.5}"]`
	updates, err := n.Normalize([]byte(raw))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("got %d updates, want 2", len(updates))
	}
	if updates[0].Kind != KindState || updates[1].Kind != KindMetrics {
		t.Errorf("kinds = %v, %v", updates[0].Kind, updates[1].Kind)
	}
}

func TestNormalize_BadElementsAreIsolated(t *testing.T) {
	n := NewNormalizer()

	raw := `[{"_id":"D1","toggle":true},{"unrelated":"junk"},"not json at all",{"device_id":"D2","power":3}]`
	updates, err := n.Normalize([]byte(raw))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("got %d updates, want 2 (bad elements dropped)", len(updates))
	}
}

func TestNormalize_MalformedFrames(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ``},
		{"not json", `hello`},
		{"truncated object", `{"_id":"D1"`},
		{"bare number", `42`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := n.Normalize([]byte(tt.raw)); !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("error = %v, want ErrMalformedFrame", err)
			}
		})
	}
}

func TestNormalize_UnknownShapeDropped(t *testing.T) {
	n := NewNormalizer()

	if _, err := n.Normalize([]byte(`{"something":"else"}`)); !errors.Is(err, ErrUnknownShape) {
		t.Errorf("error = %v, want ErrUnknownShape", err)
	}
	if _, err := n.Normalize([]byte(`{"alive":"1"}`)); !errors.Is(err, ErrMissingDeviceID) {
		t.Errorf("error = %v, want ErrMissingDeviceID", err)
	}
}

func TestNormalize_TolerantBooleans(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"json true", `{"_id":"D1","toggle":true}`, true},
		{"number one", `{"_id":"D1","toggle":1}`, true},
		{"number zero", `{"_id":"D1","toggle":0}`, false},
		{"string one", `{"_id":"D1","toggle":"1"}`, true},
		{"string false", `{"_id":"D1","toggle":"false"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updates, err := n.Normalize([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			got := updates[0].Partial.On
			if got == nil || *got != tt.want {
				t.Errorf("On = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalize_NumericStrings(t *testing.T) {
	n := NewNormalizer()

	updates, err := n.Normalize([]byte(`{"device_id":"D1","power":"120.5","voltage":"231"}`))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	p := updates[0].Partial
	if p.Power == nil || *p.Power != 120.5 {
		t.Errorf("Power = %v, want 120.5", p.Power)
	}
	if p.Voltage == nil || *p.Voltage != 231 {
		t.Errorf("Voltage = %v, want 231", p.Voltage)
	}
}

// End-to-end check of the normalizer feeding the store: a state frame, a
// metrics frame, then a liveness-false frame.
func TestNormalize_IntoStore(t *testing.T) {
	n := NewNormalizer()
	store := state.NewStore()

	frames := []string{
		`{"_id":"D1","toggle":true}`,
		`{"device_id":"D1","power":120}`,
	}
	for _, frame := range frames {
		updates, err := n.Normalize([]byte(frame))
		if err != nil {
			t.Fatalf("Normalize(%s) error = %v", frame, err)
		}
		for _, u := range updates {
			store.Apply(u.DeviceID, u.Partial)
		}
	}

	got, ok := store.Get("D1")
	if !ok {
		t.Fatal("device missing from store")
	}
	if !got.On || got.Metrics.Power != 120 || !got.Connected {
		t.Errorf("state = toggle:%v power:%v connected:%v, want true/120/true",
			got.On, got.Metrics.Power, got.Connected)
	}

	updates, err := n.Normalize([]byte(`{"device_id":"D1","alive":"0"}`))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	store.Apply(updates[0].DeviceID, updates[0].Partial)

	got, _ = store.Get("D1")
	if got.Connected {
		t.Error("Connected = true after liveness-false")
	}
	if !got.On || got.Metrics.Power != 120 {
		t.Error("liveness-false disturbed toggle or power")
	}
}
