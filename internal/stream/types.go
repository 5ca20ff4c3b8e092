package stream

import "github.com/fleexa/device-sync/internal/state"

// Kind identifies which of the recognized message shapes a frame decoded as.
type Kind int

const (
	// KindUnknown marks a frame that matched no recognized shape.
	KindUnknown Kind = iota

	// KindCombined carries identity fields and live-state fields together
	// (both `_id` and `device_id` present).
	KindCombined

	// KindState carries control/state fields keyed by `_id` only.
	KindState

	// KindMetrics carries numeric telemetry keyed by `device_id` only.
	KindMetrics

	// KindLiveness is an explicit alive/dead signal; it touches only the
	// connectivity flag.
	KindLiveness
)

// String returns the shape name for logging.
func (k Kind) String() string {
	switch k {
	case KindCombined:
		return "combined"
	case KindState:
		return "state"
	case KindMetrics:
		return "metrics"
	case KindLiveness:
		return "liveness"
	default:
		return "unknown"
	}
}

// Update is one normalized (device, partial-update) pair produced from an
// inbound frame. Partial carries only the fields the frame mentioned.
type Update struct {
	DeviceID string
	Kind     Kind
	Partial  state.PartialUpdate
}
