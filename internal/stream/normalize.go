package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fleexa/device-sync/internal/state"
)

// Logger defines the logging interface used by the Normalizer.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Normalizer converts raw inbound frames into normalized partial updates.
//
// A frame may be a single JSON object, an array of objects, or an array of
// JSON-encoded strings that each contain an object. Elements are decoded
// independently: a bad element is logged and skipped without affecting the
// rest of the frame.
type Normalizer struct {
	logger Logger
}

// NewNormalizer creates a Normalizer with a no-op logger.
func NewNormalizer() *Normalizer {
	return &Normalizer{logger: noopLogger{}}
}

// SetLogger sets the logger for the normalizer.
func (n *Normalizer) SetLogger(logger Logger) {
	n.logger = logger
}

// Normalize decodes one raw frame into zero or more updates.
//
// It returns an error only when the frame as a whole is unusable (not JSON,
// or neither an object nor an array). Unrecognized or broken elements inside
// an array are dropped with a warning and do not fail the frame.
func (n *Normalizer) Normalize(raw []byte) ([]Update, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}

	switch trimmed[0] {
	case '{':
		update, err := n.decodeObject(trimmed)
		if err != nil {
			return nil, err
		}
		return []Update{update}, nil

	case '[':
		var elements []json.RawMessage
		if err := json.Unmarshal(trimmed, &elements); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		updates := make([]Update, 0, len(elements))
		for i, element := range elements {
			payload := bytes.TrimSpace(element)
			// Array elements may be JSON-encoded strings needing a second
			// parse pass.
			if len(payload) > 0 && payload[0] == '"' {
				var inner string
				if err := json.Unmarshal(payload, &inner); err != nil {
					n.logger.Warn("dropping unreadable frame element", "index", i, "error", err)
					continue
				}
				payload = []byte(inner)
			}
			update, err := n.decodeObject(payload)
			if err != nil {
				n.logger.Warn("dropping frame element", "index", i, "error", err)
				continue
			}
			updates = append(updates, update)
		}
		return updates, nil

	default:
		return nil, fmt.Errorf("%w: frame is neither object nor array", ErrMalformedFrame)
	}
}

// decodeObject classifies one JSON object and extracts the fields it carries.
func (n *Normalizer) decodeObject(raw []byte) (Update, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Update{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	identityID := stringField(fields, "_id")
	referenceID := stringField(fields, "device_id")

	deviceID := identityID
	if deviceID == "" {
		deviceID = referenceID
	}

	// Liveness frames take priority: they flip only the connectivity flag,
	// whatever else the payload happens to mention.
	if aliveRaw, ok := fields["alive"]; ok {
		if deviceID == "" {
			return Update{}, ErrMissingDeviceID
		}
		alive, err := flexBool(aliveRaw)
		if err != nil {
			return Update{}, fmt.Errorf("%w: alive field: %v", ErrMalformedFrame, err)
		}
		return Update{
			DeviceID: deviceID,
			Kind:     KindLiveness,
			Partial:  state.PartialUpdate{Connected: state.Bool(alive)},
		}, nil
	}

	var kind Kind
	switch {
	case identityID != "" && referenceID != "":
		kind = KindCombined
	case identityID != "":
		kind = KindState
	case referenceID != "":
		kind = KindMetrics
	default:
		return Update{}, ErrUnknownShape
	}

	partial, err := extractFields(fields, kind)
	if err != nil {
		return Update{}, err
	}

	// Any recognized message implies the device is live, unless the payload
	// says otherwise explicitly.
	if partial.Connected == nil {
		partial.Connected = state.Bool(true)
	}

	n.logger.Debug("frame normalized", "device_id", deviceID, "shape", kind.String())
	return Update{DeviceID: deviceID, Kind: kind, Partial: partial}, nil
}

// extractFields builds a partial update from whichever known fields the
// object carries. Absent fields stay nil so the store's merge cannot lose
// information.
func extractFields(fields map[string]json.RawMessage, kind Kind) (state.PartialUpdate, error) {
	var p state.PartialUpdate

	if raw, ok := fields["is_connected"]; ok {
		v, err := flexBool(raw)
		if err != nil {
			return p, fmt.Errorf("%w: is_connected: %v", ErrMalformedFrame, err)
		}
		p.Connected = state.Bool(v)
	}
	if raw, ok := fields["toggle"]; ok {
		v, err := flexBool(raw)
		if err != nil {
			return p, fmt.Errorf("%w: toggle: %v", ErrMalformedFrame, err)
		}
		p.On = state.Bool(v)
	}
	if raw, ok := fields["auto"]; ok {
		v, err := flexBool(raw)
		if err != nil {
			return p, fmt.Errorf("%w: auto: %v", ErrMalformedFrame, err)
		}
		p.Auto = state.Bool(v)
	}

	for key, dst := range map[string]**int{
		"hour_on":    &p.HourOn,
		"minute_on":  &p.MinuteOn,
		"hour_off":   &p.HourOff,
		"minute_off": &p.MinuteOff,
	} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		v, err := flexInt(raw)
		if err != nil {
			return p, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, key, err)
		}
		*dst = state.Int(v)
	}

	if raw, ok := fields["days"]; ok {
		var days []int
		if err := json.Unmarshal(raw, &days); err != nil {
			return p, fmt.Errorf("%w: days: %v", ErrMalformedFrame, err)
		}
		p.Days = days
	}

	for key, dst := range map[string]**float64{
		"power":        &p.Power,
		"current":      &p.Current,
		"voltage":      &p.Voltage,
		"power_factor": &p.PowerFactor,
		"total_energy": &p.TotalEnergy,
		"latitude":     &p.Latitude,
		"longitude":    &p.Longitude,
	} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		v, err := flexFloat(raw)
		if err != nil {
			return p, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, key, err)
		}
		*dst = state.Float(v)
	}

	// Identity fields ride only on combined-shape messages.
	if kind == KindCombined {
		if raw, ok := fields["name"]; ok {
			var name string
			if err := json.Unmarshal(raw, &name); err != nil {
				return p, fmt.Errorf("%w: name: %v", ErrMalformedFrame, err)
			}
			p.Name = state.String(name)
		}
	}

	return p, nil
}

// stringField returns the field's string value, or "" if absent or not a
// string.
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// flexBool decodes a boolean that may arrive as a JSON bool, a 0/1 number,
// or a string ("0", "1", "true", "false"). Device firmware revisions differ
// on which encoding they emit.
func flexBool(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f != 0, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "1", "true", "on":
			return true, nil
		case "0", "false", "off", "":
			return false, nil
		}
		return false, fmt.Errorf("unrecognized boolean string %q", s)
	}
	return false, fmt.Errorf("not a boolean: %s", raw)
}

// flexFloat decodes a number that may arrive as a JSON number or a numeric
// string.
func flexFloat(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("unrecognized number string %q", s)
		}
		return v, nil
	}
	return 0, fmt.Errorf("not a number: %s", raw)
}

// flexInt decodes an integer with the same tolerance as flexFloat.
func flexInt(raw json.RawMessage) (int, error) {
	f, err := flexFloat(raw)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}
