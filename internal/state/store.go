package state

import (
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Store.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// UpdateFunc is the callback signature for live-state subscriptions.
// The callback receives an independent copy; it may retain or mutate it
// freely. Callbacks run on the applying goroutine and must not block.
type UpdateFunc func(LiveState)

// Store is the single source of truth for device identities and live state.
//
// All mutations go through Apply (push updates, optimistic command writes,
// rollbacks) or the roster methods (Seed/UpdateIdentity/Prune); all reads
// return deep copies so no caller ever observes a record mid-mutation.
//
// Writes are serialised by a single mutex and entries are replaced
// copy-on-write, so updates for the same device are applied atomically and
// readers holding an earlier snapshot are unaffected. Ordering across
// different devices is not guaranteed; ordering for one device follows the
// caller's delivery order (the push channel is a single ordered path).
//
// All public methods are thread-safe.
type Store struct {
	mu         sync.RWMutex
	identities map[string]*DeviceIdentity
	live       map[string]*LiveState

	subs     map[string]map[int]UpdateFunc // per-device subscribers
	firehose map[int]UpdateFunc            // all-devices subscribers
	nextSub  int

	observed   map[string]int // device id -> observer count
	onObserved func()         // fired when the observed set becomes non-empty

	logger Logger
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		identities: make(map[string]*DeviceIdentity),
		live:       make(map[string]*LiveState),
		subs:       make(map[string]map[int]UpdateFunc),
		firehose:   make(map[int]UpdateFunc),
		observed:   make(map[string]int),
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Apply overlays the partial update onto the device's live state, creating
// the entry lazily if the device has never been seen. Only fields present in
// the update change; everything else keeps its previous value.
//
// The new state is published to the device's subscribers and to firehose
// subscribers after the store lock is released.
func (s *Store) Apply(deviceID string, update PartialUpdate) LiveState {
	s.mu.Lock()

	cur, ok := s.live[deviceID]
	var next *LiveState
	if ok {
		next = cur.DeepCopy()
	} else {
		next = &LiveState{DeviceID: deviceID}
	}
	update.overlay(next)
	next.UpdatedAt = time.Now().UTC()
	s.live[deviceID] = next

	s.applyIdentityLocked(deviceID, update)

	published := *next.DeepCopy()
	callbacks := s.collectSubscribers(deviceID)
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(published)
	}

	s.logger.Debug("state applied", "device_id", deviceID)
	return published
}

// applyIdentityLocked folds identity fields riding on a combined-shape
// message (rename, relocation) into the roster record. Identity creation
// stays with the roster; a push update for an unlisted device only touches
// live state.
func (s *Store) applyIdentityLocked(deviceID string, update PartialUpdate) {
	if update.Name == nil && update.Latitude == nil && update.Longitude == nil {
		return
	}
	cur, ok := s.identities[deviceID]
	if !ok {
		return
	}

	next := cur.DeepCopy()
	if update.Name != nil {
		next.Name = *update.Name
	}
	if update.Latitude != nil {
		next.Latitude = copyFloat(update.Latitude)
	}
	if update.Longitude != nil {
		next.Longitude = copyFloat(update.Longitude)
	}
	if identityEqual(cur, next) {
		return
	}
	s.identities[deviceID] = next
}

// collectSubscribers snapshots the callbacks for a device while the lock is
// held, so they can be invoked after release.
func (s *Store) collectSubscribers(deviceID string) []UpdateFunc {
	callbacks := make([]UpdateFunc, 0, len(s.subs[deviceID])+len(s.firehose))
	for _, cb := range s.subs[deviceID] {
		callbacks = append(callbacks, cb)
	}
	for _, cb := range s.firehose {
		callbacks = append(callbacks, cb)
	}
	return callbacks
}

// Get returns a copy of the device's live state.
// The second return is false if the device has no state entry.
func (s *Store) Get(deviceID string) (LiveState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cur, ok := s.live[deviceID]
	if !ok {
		return LiveState{}, false
	}
	return *cur.DeepCopy(), true
}

// GetIdentity returns a copy of the device's identity record.
func (s *Store) GetIdentity(deviceID string) (DeviceIdentity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.identities[deviceID]
	if !ok {
		return DeviceIdentity{}, false
	}
	return *id.DeepCopy(), true
}

// GetDevice returns the merged identity + live state view for one device.
func (s *Store) GetDevice(deviceID string) (Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[deviceID]
	if !ok {
		return Device{}, false
	}
	dev := Device{DeviceIdentity: *identity.DeepCopy()}
	if live, ok := s.live[deviceID]; ok {
		dev.State = *live.DeepCopy()
	} else {
		dev.State = LiveState{DeviceID: deviceID}
	}
	return dev, true
}

// All returns the merged identity + live state view for every known device,
// sorted by name for stable rendering.
func (s *Store) All() []Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]Device, 0, len(s.identities))
	for id, identity := range s.identities {
		dev := Device{DeviceIdentity: *identity.DeepCopy()}
		if live, ok := s.live[id]; ok {
			dev.State = *live.DeepCopy()
		} else {
			dev.State = LiveState{DeviceID: id}
		}
		devices = append(devices, dev)
	}
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].ID < devices[j].ID
	})
	return devices
}

// Count returns the number of known device identities.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.identities)
}

// SeedIdentity registers a roster entry, creating a default live state
// (all zero, connected=false) if none exists. Returns true if the identity
// was new.
func (s *Store) SeedIdentity(identity DeviceIdentity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.identities[identity.ID]; exists {
		return false
	}
	s.identities[identity.ID] = identity.DeepCopy()
	if _, exists := s.live[identity.ID]; !exists {
		s.live[identity.ID] = &LiveState{DeviceID: identity.ID}
	}
	s.logger.Debug("identity seeded", "device_id", identity.ID, "name", identity.Name)
	return true
}

// UpdateIdentity replaces a known identity. Returns false if the identity is
// unknown or the new value is identical to the current one (so callers can
// skip redundant re-renders).
func (s *Store) UpdateIdentity(identity DeviceIdentity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.identities[identity.ID]
	if !exists {
		return false
	}
	if identityEqual(cur, &identity) {
		return false
	}
	s.identities[identity.ID] = identity.DeepCopy()
	s.logger.Debug("identity updated", "device_id", identity.ID, "name", identity.Name)
	return true
}

// Prune removes every identity not present in keep, along with its live
// state and per-device subscriptions. Returns the removed IDs.
func (s *Store) Prune(keep map[string]struct{}) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for id := range s.identities {
		if _, ok := keep[id]; ok {
			continue
		}
		delete(s.identities, id)
		delete(s.live, id)
		delete(s.subs, id)
		delete(s.observed, id)
		removed = append(removed, id)
	}
	if len(removed) > 0 {
		s.logger.Info("identities pruned", "count", len(removed))
	}
	return removed
}

// Subscribe registers a callback for one device's updates.
// The returned function removes the subscription; it is safe to call more
// than once.
func (s *Store) Subscribe(deviceID string, fn UpdateFunc) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.subs[deviceID] == nil {
		s.subs[deviceID] = make(map[int]UpdateFunc)
	}
	s.subs[deviceID][id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if m, ok := s.subs[deviceID]; ok {
				delete(m, id)
				if len(m) == 0 {
					delete(s.subs, deviceID)
				}
			}
			s.mu.Unlock()
		})
	}
}

// SubscribeAll registers a callback invoked for every applied update.
// Used by the UI event hub and the telemetry sink.
func (s *Store) SubscribeAll(fn UpdateFunc) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.firehose[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.firehose, id)
			s.mu.Unlock()
		})
	}
}

// Observe marks a device as actively watched by the UI. The transport uses
// the observed set to decide whether a dropped connection is worth retrying.
// The returned function releases the observation.
func (s *Store) Observe(deviceID string) func() {
	s.mu.Lock()
	s.observed[deviceID]++
	wasEmpty := len(s.observed) == 1 && s.observed[deviceID] == 1
	notify := s.onObserved
	s.mu.Unlock()

	if wasEmpty && notify != nil {
		notify()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if n, ok := s.observed[deviceID]; ok {
				if n <= 1 {
					delete(s.observed, deviceID)
				} else {
					s.observed[deviceID] = n - 1
				}
			}
			s.mu.Unlock()
		})
	}
}

// AnyObserved reports whether at least one device is actively watched.
func (s *Store) AnyObserved() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observed) > 0
}

// SetOnObserved registers a callback fired when the observed set transitions
// from empty to non-empty. The transport uses this to retry a terminally
// disconnected channel once a device is selected again.
func (s *Store) SetOnObserved(fn func()) {
	s.mu.Lock()
	s.onObserved = fn
	s.mu.Unlock()
}

// identityEqual compares the roster-managed fields of two identities.
func identityEqual(a, b *DeviceIdentity) bool {
	return a.Name == b.Name &&
		a.MAC == b.MAC &&
		a.TenantID == b.TenantID &&
		floatEqual(a.Latitude, b.Latitude) &&
		floatEqual(a.Longitude, b.Longitude)
}

func floatEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
