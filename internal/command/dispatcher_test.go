package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fleexa/device-sync/internal/state"
	"github.com/fleexa/device-sync/internal/upstream"
)

// fakeController records control calls and fails on demand.
type fakeController struct {
	mu      sync.Mutex
	calls   []upstream.ControlKind
	fail    error
	block   chan struct{} // when set, Control waits until closed
	release chan struct{} // closed once Control has started
}

func (f *fakeController) Control(ctx context.Context, deviceID string, kind upstream.ControlKind, payload any) error {
	f.mu.Lock()
	f.calls = append(f.calls, kind)
	block := f.block
	release := f.release
	fail := f.fail
	f.mu.Unlock()

	if release != nil {
		close(release)
		f.mu.Lock()
		f.release = nil
		f.mu.Unlock()
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fail
}

func (f *fakeController) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestDispatcher_ToggleConfirmed(t *testing.T) {
	store := state.NewStore()
	store.Apply("D1", state.PartialUpdate{On: state.Bool(false), Auto: state.Bool(true)})
	ctrl := &fakeController{}
	d := NewDispatcher(store, ctrl, time.Second)

	if err := d.Toggle(context.Background(), "D1", true); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}

	got, _ := store.Get("D1")
	if !got.On {
		t.Error("On = false, want true (optimistic value kept on success)")
	}
	if got.Auto {
		t.Error("Auto = true, want false (manual toggle clears automation)")
	}
	if ctrl.callCount() != 1 {
		t.Errorf("control calls = %d, want 1", ctrl.callCount())
	}
}

func TestDispatcher_ToggleRollback(t *testing.T) {
	store := state.NewStore()
	store.Apply("D1", state.PartialUpdate{
		On:    state.Bool(false),
		Auto:  state.Bool(true),
		Power: state.Float(55),
	})
	ctrl := &fakeController{fail: errors.New("boom")}
	d := NewDispatcher(store, ctrl, time.Second)

	err := d.Toggle(context.Background(), "D1", true)
	if !errors.Is(err, ErrRolledBack) {
		t.Fatalf("error = %v, want ErrRolledBack", err)
	}

	got, _ := store.Get("D1")
	if got.On {
		t.Error("On = true after rollback, want false")
	}
	if !got.Auto {
		t.Error("Auto = false after rollback, want true (restored)")
	}
	if got.Metrics.Power != 55 {
		t.Error("rollback touched a field the command never changed")
	}
}

func TestDispatcher_OptimisticValueVisibleDuringCall(t *testing.T) {
	store := state.NewStore()
	store.Apply("D1", state.PartialUpdate{On: state.Bool(false)})

	ctrl := &fakeController{
		block:   make(chan struct{}),
		release: make(chan struct{}),
	}
	d := NewDispatcher(store, ctrl, time.Second)

	done := make(chan error, 1)
	go func() { done <- d.Toggle(context.Background(), "D1", true) }()

	<-ctrl.release
	got, _ := store.Get("D1")
	if !got.On {
		t.Error("optimistic value not visible while the call is in flight")
	}

	close(ctrl.block)
	if err := <-done; err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
}

func TestDispatcher_SingleFlightPerKind(t *testing.T) {
	store := state.NewStore()
	ctrl := &fakeController{
		block:   make(chan struct{}),
		release: make(chan struct{}),
	}
	d := NewDispatcher(store, ctrl, time.Second)

	done := make(chan error, 1)
	go func() { done <- d.Toggle(context.Background(), "D1", true) }()
	<-ctrl.release

	// Same kind, same device: rejected locally.
	if err := d.Toggle(context.Background(), "D1", false); !errors.Is(err, ErrInFlight) {
		t.Errorf("second toggle error = %v, want ErrInFlight", err)
	}
	// Different kind on the same device is allowed.
	if err := d.SetAuto(context.Background(), "D1", true); err != nil {
		t.Errorf("SetAuto() error = %v", err)
	}
	// Same kind on another device is allowed.
	if err := d.Toggle(context.Background(), "D2", true); err != nil {
		t.Errorf("Toggle(D2) error = %v", err)
	}

	close(ctrl.block)
	if err := <-done; err != nil {
		t.Fatalf("first toggle error = %v", err)
	}

	// The slot is free again after completion.
	if err := d.Toggle(context.Background(), "D1", false); err != nil {
		t.Errorf("toggle after completion error = %v", err)
	}
}

func TestDispatcher_SetAutoRollbackIsFieldExact(t *testing.T) {
	store := state.NewStore()
	store.Apply("D1", state.PartialUpdate{On: state.Bool(true), Auto: state.Bool(false)})
	ctrl := &fakeController{
		block:   make(chan struct{}),
		release: make(chan struct{}),
	}
	d := NewDispatcher(store, ctrl, time.Second)

	// A push update lands between the optimistic write and the rollback.
	// The rollback must restore only the auto flag, not the toggle.

	done := make(chan error, 1)
	go func() { done <- d.SetAuto(context.Background(), "D1", true) }()
	<-ctrl.release

	store.Apply("D1", state.PartialUpdate{On: state.Bool(false)}) // concurrent push

	ctrl.mu.Lock()
	ctrl.fail = errors.New("rejected")
	ctrl.mu.Unlock()
	close(ctrl.block)

	if err := <-done; !errors.Is(err, ErrRolledBack) {
		t.Fatalf("error = %v, want ErrRolledBack", err)
	}

	got, _ := store.Get("D1")
	if got.Auto {
		t.Error("Auto = true after rollback, want false")
	}
	if got.On {
		t.Error("rollback reverted the concurrently pushed toggle value")
	}
}

func TestDispatcher_SetSchedule(t *testing.T) {
	store := state.NewStore()
	store.Apply("D1", state.PartialUpdate{
		HourOn: state.Int(6), MinuteOn: state.Int(0),
		HourOff: state.Int(22), MinuteOff: state.Int(30),
		Days: []int{1, 2, 3},
	})
	ctrl := &fakeController{}
	d := NewDispatcher(store, ctrl, time.Second)

	next := state.Schedule{HourOn: 7, MinuteOn: 15, HourOff: 23, MinuteOff: 0, Days: []int{0, 6}}
	if err := d.SetSchedule(context.Background(), "D1", next); err != nil {
		t.Fatalf("SetSchedule() error = %v", err)
	}

	got, _ := store.Get("D1")
	if got.Schedule.HourOn != 7 || got.Schedule.MinuteOff != 0 {
		t.Errorf("schedule = %+v", got.Schedule)
	}
	if len(got.Schedule.Days) != 2 || got.Schedule.Days[0] != 0 {
		t.Errorf("days = %v, want [0 6]", got.Schedule.Days)
	}
}

func TestDispatcher_SetScheduleRollback(t *testing.T) {
	store := state.NewStore()
	store.Apply("D1", state.PartialUpdate{
		HourOn: state.Int(6), MinuteOn: state.Int(30),
		HourOff: state.Int(22), MinuteOff: state.Int(45),
		Days: []int{5},
	})
	ctrl := &fakeController{fail: errors.New("rejected")}
	d := NewDispatcher(store, ctrl, time.Second)

	next := state.Schedule{HourOn: 1, MinuteOn: 2, HourOff: 3, MinuteOff: 4}
	if err := d.SetSchedule(context.Background(), "D1", next); !errors.Is(err, ErrRolledBack) {
		t.Fatalf("error = %v, want ErrRolledBack", err)
	}

	got, _ := store.Get("D1")
	want := state.Schedule{HourOn: 6, MinuteOn: 30, HourOff: 22, MinuteOff: 45, Days: []int{5}}
	if got.Schedule.HourOn != want.HourOn || got.Schedule.MinuteOn != want.MinuteOn ||
		got.Schedule.HourOff != want.HourOff || got.Schedule.MinuteOff != want.MinuteOff ||
		len(got.Schedule.Days) != 1 || got.Schedule.Days[0] != 5 {
		t.Errorf("schedule after rollback = %+v, want %+v", got.Schedule, want)
	}
}

func TestDispatcher_ScheduleValidation(t *testing.T) {
	store := state.NewStore()
	ctrl := &fakeController{}
	d := NewDispatcher(store, ctrl, time.Second)

	tests := []struct {
		name     string
		schedule state.Schedule
	}{
		{"hour too large", state.Schedule{HourOn: 24}},
		{"negative minute", state.Schedule{MinuteOff: -1}},
		{"weekday out of range", state.Schedule{Days: []int{7}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.SetSchedule(context.Background(), "D1", tt.schedule)
			if !errors.Is(err, ErrInvalidSchedule) {
				t.Errorf("error = %v, want ErrInvalidSchedule", err)
			}
		})
	}
	if ctrl.callCount() != 0 {
		t.Error("invalid schedules must not reach the server")
	}
}

func TestDispatcher_TimeoutRollsBack(t *testing.T) {
	store := state.NewStore()
	store.Apply("D1", state.PartialUpdate{On: state.Bool(false)})
	ctrl := &fakeController{block: make(chan struct{})} // never unblocks
	d := NewDispatcher(store, ctrl, 20*time.Millisecond)

	err := d.Toggle(context.Background(), "D1", true)
	if !errors.Is(err, ErrRolledBack) {
		t.Fatalf("error = %v, want ErrRolledBack on timeout", err)
	}

	got, _ := store.Get("D1")
	if got.On {
		t.Error("On = true after timeout rollback, want false")
	}
}
