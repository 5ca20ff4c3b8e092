package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleexa/device-sync/internal/state"
	"github.com/fleexa/device-sync/internal/upstream"
)

// Logger defines the logging interface used by the dispatcher.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Store is the slice of the state store the dispatcher needs: read the
// current values for snapshots, write optimistic updates and rollbacks.
type Store interface {
	Get(deviceID string) (state.LiveState, bool)
	Apply(deviceID string, update state.PartialUpdate) state.LiveState
}

// Controller issues device control calls upstream. Satisfied by
// upstream.Client.
type Controller interface {
	Control(ctx context.Context, deviceID string, kind upstream.ControlKind, payload any) error
}

// flightKey identifies one single-flight slot.
type flightKey struct {
	deviceID string
	kind     upstream.ControlKind
}

// pending is the ephemeral record for one in-flight command: what to restore
// if the server says no.
type pending struct {
	id       string
	snapshot state.PartialUpdate
}

// Dispatcher executes user control intents with optimistic local writes.
//
// Every command snapshots exactly the fields it is about to change, applies
// the desired values to the store immediately, then issues the REST call
// under a bounded timeout. Success leaves the optimistic value in place (the
// server echoes it over the push channel, which merges idempotently);
// failure restores the snapshot, so concurrently arrived push updates to
// other fields are never reverted.
//
// At most one command per (device, kind) is in flight; a second request of
// the same kind is rejected locally to avoid conflicting rollbacks.
type Dispatcher struct {
	store      Store
	controller Controller
	timeout    time.Duration

	mu       sync.Mutex
	inflight map[flightKey]*pending

	logger Logger
}

// NewDispatcher creates a dispatcher. timeout bounds each REST call; on
// expiry the command counts as failed and rolls back.
func NewDispatcher(store Store, controller Controller, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		store:      store,
		controller: controller,
		timeout:    timeout,
		inflight:   make(map[flightKey]*pending),
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Toggle switches the device on or off. A manual toggle also clears the
// automatic-mode flag, matching the server's side effect of manual overrides
// disabling schedule-driven automation.
func (d *Dispatcher) Toggle(ctx context.Context, deviceID string, desired bool) error {
	cur, _ := d.store.Get(deviceID)
	snapshot := state.PartialUpdate{
		On:   state.Bool(cur.On),
		Auto: state.Bool(cur.Auto),
	}
	optimistic := state.PartialUpdate{
		On:   state.Bool(desired),
		Auto: state.Bool(false),
	}
	return d.execute(ctx, deviceID, upstream.ControlToggle, desired, snapshot, optimistic)
}

// SetAuto enables or disables schedule-driven automation.
func (d *Dispatcher) SetAuto(ctx context.Context, deviceID string, desired bool) error {
	cur, _ := d.store.Get(deviceID)
	snapshot := state.PartialUpdate{Auto: state.Bool(cur.Auto)}
	optimistic := state.PartialUpdate{Auto: state.Bool(desired)}
	return d.execute(ctx, deviceID, upstream.ControlAuto, desired, snapshot, optimistic)
}

// SetSchedule replaces the device's on/off timer programme.
func (d *Dispatcher) SetSchedule(ctx context.Context, deviceID string, schedule state.Schedule) error {
	if err := validateSchedule(schedule); err != nil {
		return err
	}
	cur, _ := d.store.Get(deviceID)
	snapshot := state.PartialUpdate{
		HourOn:    state.Int(cur.Schedule.HourOn),
		MinuteOn:  state.Int(cur.Schedule.MinuteOn),
		HourOff:   state.Int(cur.Schedule.HourOff),
		MinuteOff: state.Int(cur.Schedule.MinuteOff),
		Days:      daysOrEmpty(cur.Schedule.Days),
	}
	optimistic := state.PartialUpdate{
		HourOn:    state.Int(schedule.HourOn),
		MinuteOn:  state.Int(schedule.MinuteOn),
		HourOff:   state.Int(schedule.HourOff),
		MinuteOff: state.Int(schedule.MinuteOff),
		Days:      daysOrEmpty(schedule.Days),
	}
	return d.execute(ctx, deviceID, upstream.ControlSchedule, schedule, snapshot, optimistic)
}

// execute runs the snapshot / optimistic-apply / call / confirm-or-rollback
// protocol under the single-flight guard.
func (d *Dispatcher) execute(ctx context.Context, deviceID string, kind upstream.ControlKind,
	payload any, snapshot, optimistic state.PartialUpdate) error {

	key := flightKey{deviceID: deviceID, kind: kind}
	cmd := &pending{id: uuid.New().String(), snapshot: snapshot}

	d.mu.Lock()
	if _, busy := d.inflight[key]; busy {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s for device %s", ErrInFlight, kind, deviceID)
	}
	d.inflight[key] = cmd
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.inflight, key)
		d.mu.Unlock()
	}()

	// Optimistic write first: a UI read immediately after the call already
	// observes the desired value.
	d.store.Apply(deviceID, optimistic)
	d.logger.Debug("optimistic write applied",
		"command_id", cmd.id, "device_id", deviceID, "type", kind)

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.controller.Control(callCtx, deviceID, kind, payload); err != nil {
		d.store.Apply(deviceID, cmd.snapshot)
		d.logger.Warn("command failed, rolled back",
			"command_id", cmd.id, "device_id", deviceID, "type", kind, "error", err)
		return fmt.Errorf("%w: %v", ErrRolledBack, err)
	}

	d.logger.Info("command confirmed",
		"command_id", cmd.id, "device_id", deviceID, "type", kind)
	return nil
}

// validateSchedule rejects out-of-range timer values before anything is
// written locally or sent upstream.
func validateSchedule(s state.Schedule) error {
	if s.HourOn < 0 || s.HourOn > 23 || s.HourOff < 0 || s.HourOff > 23 {
		return fmt.Errorf("%w: hour out of range", ErrInvalidSchedule)
	}
	if s.MinuteOn < 0 || s.MinuteOn > 59 || s.MinuteOff < 0 || s.MinuteOff > 59 {
		return fmt.Errorf("%w: minute out of range", ErrInvalidSchedule)
	}
	for _, day := range s.Days {
		if day < 0 || day > 6 {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidSchedule, day)
		}
	}
	return nil
}

// daysOrEmpty normalizes nil to an empty slice so the rollback overlay
// actually restores the field (nil would mean "not mentioned").
func daysOrEmpty(days []int) []int {
	if days == nil {
		return []int{}
	}
	return days
}
