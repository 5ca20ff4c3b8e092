package state

import "time"

// DeviceIdentity is the slow-changing catalogue record for one device,
// sourced from the upstream roster listing.
type DeviceIdentity struct {
	ID        string     `json:"_id"`
	Name      string     `json:"name"`
	MAC       string     `json:"mac"`
	TenantID  string     `json:"tenant_id,omitempty"`
	Latitude  *float64   `json:"latitude,omitempty"`
	Longitude *float64   `json:"longitude,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// DeepCopy creates an independent copy of the identity.
func (d *DeviceIdentity) DeepCopy() *DeviceIdentity {
	if d == nil {
		return nil
	}
	cpy := *d
	cpy.Latitude = copyFloat(d.Latitude)
	cpy.Longitude = copyFloat(d.Longitude)
	if d.CreatedAt != nil {
		t := *d.CreatedAt
		cpy.CreatedAt = &t
	}
	if d.UpdatedAt != nil {
		t := *d.UpdatedAt
		cpy.UpdatedAt = &t
	}
	return &cpy
}

// Schedule is an on/off timer programme: the device switches on at
// HourOn:MinuteOn and off at HourOff:MinuteOff on the listed weekdays
// (0 = Sunday). An empty Days slice means every day.
type Schedule struct {
	HourOn    int   `json:"hour_on"`
	MinuteOn  int   `json:"minute_on"`
	HourOff   int   `json:"hour_off"`
	MinuteOff int   `json:"minute_off"`
	Days      []int `json:"days,omitempty"`
}

// DeepCopy creates an independent copy of the schedule.
func (s Schedule) DeepCopy() Schedule {
	cpy := s
	if s.Days != nil {
		cpy.Days = make([]int, len(s.Days))
		copy(cpy.Days, s.Days)
	}
	return cpy
}

// Metrics holds the instantaneous electrical telemetry for one device.
type Metrics struct {
	Power       float64 `json:"power"`
	Current     float64 `json:"current"`
	Voltage     float64 `json:"voltage"`
	PowerFactor float64 `json:"power_factor"`
	TotalEnergy float64 `json:"total_energy"`
}

// LiveState is the mutable, push-updated record for one device.
// There is exactly one per known device ID; entries are created lazily on
// first message or on roster seed, and destroyed only when the identity is
// pruned.
type LiveState struct {
	DeviceID  string    `json:"device_id"`
	Connected bool      `json:"is_connected"`
	On        bool      `json:"toggle"`
	Auto      bool      `json:"auto"`
	Schedule  Schedule  `json:"schedule"`
	Metrics   Metrics   `json:"metrics"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates an independent copy of the live state.
func (l *LiveState) DeepCopy() *LiveState {
	if l == nil {
		return nil
	}
	cpy := *l
	cpy.Schedule = l.Schedule.DeepCopy()
	return &cpy
}

// Device is the merged identity + live state view served to the UI.
type Device struct {
	DeviceIdentity
	State LiveState `json:"state"`
}

// PartialUpdate carries only the fields explicitly present in an inbound
// message or command. Nil pointers mean "not mentioned"; the store's merge
// never touches them. This is what makes merging commutative at the field
// level rather than the message level.
type PartialUpdate struct {
	// Identity fields (combined-shape messages may rename or move a device).
	Name      *string
	Latitude  *float64
	Longitude *float64

	// Control/state fields.
	Connected *bool
	On        *bool
	Auto      *bool
	HourOn    *int
	MinuteOn  *int
	HourOff   *int
	MinuteOff *int
	Days      []int

	// Telemetry fields.
	Power       *float64
	Current     *float64
	Voltage     *float64
	PowerFactor *float64
	TotalEnergy *float64
}

// IsZero reports whether the update carries no fields at all.
func (p *PartialUpdate) IsZero() bool {
	return p.Name == nil && p.Latitude == nil && p.Longitude == nil &&
		p.Connected == nil && p.On == nil && p.Auto == nil &&
		p.HourOn == nil && p.MinuteOn == nil && p.HourOff == nil && p.MinuteOff == nil &&
		p.Days == nil &&
		p.Power == nil && p.Current == nil && p.Voltage == nil &&
		p.PowerFactor == nil && p.TotalEnergy == nil
}

// overlay applies the update's present fields onto dst. Absent fields are
// left exactly as they were: partial updates are monotonic overlays, never
// resets.
func (p *PartialUpdate) overlay(dst *LiveState) {
	if p.Connected != nil {
		dst.Connected = *p.Connected
	}
	if p.On != nil {
		dst.On = *p.On
	}
	if p.Auto != nil {
		dst.Auto = *p.Auto
	}
	if p.HourOn != nil {
		dst.Schedule.HourOn = *p.HourOn
	}
	if p.MinuteOn != nil {
		dst.Schedule.MinuteOn = *p.MinuteOn
	}
	if p.HourOff != nil {
		dst.Schedule.HourOff = *p.HourOff
	}
	if p.MinuteOff != nil {
		dst.Schedule.MinuteOff = *p.MinuteOff
	}
	if p.Days != nil {
		dst.Schedule.Days = make([]int, len(p.Days))
		copy(dst.Schedule.Days, p.Days)
	}
	if p.Power != nil {
		dst.Metrics.Power = *p.Power
	}
	if p.Current != nil {
		dst.Metrics.Current = *p.Current
	}
	if p.Voltage != nil {
		dst.Metrics.Voltage = *p.Voltage
	}
	if p.PowerFactor != nil {
		dst.Metrics.PowerFactor = *p.PowerFactor
	}
	if p.TotalEnergy != nil {
		dst.Metrics.TotalEnergy = *p.TotalEnergy
	}
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Bool returns a pointer to b, for building partial updates.
func Bool(b bool) *bool { return &b }

// Int returns a pointer to i, for building partial updates.
func Int(i int) *int { return &i }

// Float returns a pointer to f, for building partial updates.
func Float(f float64) *float64 { return &f }

// String returns a pointer to s, for building partial updates.
func String(s string) *string { return &s }
