package roster

import (
	"context"
	"fmt"

	"github.com/fleexa/device-sync/internal/state"
)

// Logger defines the logging interface used by the manager.
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

// Lister fetches the authoritative device listing. Satisfied by
// upstream.Client.
type Lister interface {
	ListDevices(ctx context.Context) ([]state.DeviceIdentity, error)
}

// Store is the slice of the state store the manager needs.
type Store interface {
	SeedIdentity(identity state.DeviceIdentity) bool
	UpdateIdentity(identity state.DeviceIdentity) bool
	Prune(keep map[string]struct{}) []string
}

// Cache persists the roster locally for warm starts. Optional; a nil cache
// disables persistence.
type Cache interface {
	ReplaceAll(ctx context.Context, devices []state.DeviceIdentity) error
	LoadAll(ctx context.Context) ([]state.DeviceIdentity, error)
}

// Manager keeps the store's identities aligned with the upstream listing.
type Manager struct {
	lister Lister
	store  Store
	cache  Cache
	logger Logger
}

// NewManager creates a manager. cache may be nil.
func NewManager(lister Lister, store Store, cache Cache) *Manager {
	return &Manager{
		lister: lister,
		store:  store,
		cache:  cache,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// WarmStart seeds the store from the local cache so the UI can render a
// device list before the first upstream fetch. Missing or unreadable cache
// is not an error; the engine simply starts empty.
func (m *Manager) WarmStart(ctx context.Context) int {
	if m.cache == nil {
		return 0
	}
	devices, err := m.cache.LoadAll(ctx)
	if err != nil {
		m.logger.Warn("roster cache unreadable, starting empty", "error", err)
		return 0
	}
	seeded := 0
	for _, d := range devices {
		if m.store.SeedIdentity(d) {
			seeded++
		}
	}
	if seeded > 0 {
		m.logger.Info("roster warm-started from cache", "count", seeded)
	}
	return seeded
}

// Refresh reconciles the store against a fresh upstream listing: unknown
// identities are seeded with a default live state, known ones are updated
// only when a value actually changed, and identities absent from the listing
// are pruned along with their live state.
//
// A fetch failure leaves the previous roster authoritative and returns a
// non-fatal error.
func (m *Manager) Refresh(ctx context.Context) error {
	devices, err := m.lister.ListDevices(ctx)
	if err != nil {
		m.logger.Warn("roster refresh failed, keeping previous roster", "error", err)
		return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	keep := make(map[string]struct{}, len(devices))
	seeded, updated := 0, 0
	for _, d := range devices {
		if d.ID == "" {
			m.logger.Warn("skipping roster entry without id", "name", d.Name)
			continue
		}
		keep[d.ID] = struct{}{}
		if m.store.SeedIdentity(d) {
			seeded++
		} else if m.store.UpdateIdentity(d) {
			updated++
		}
	}
	removed := m.store.Prune(keep)

	if m.cache != nil {
		if err := m.cache.ReplaceAll(ctx, devices); err != nil {
			m.logger.Warn("roster cache write failed", "error", err)
		}
	}

	m.logger.Info("roster refreshed",
		"total", len(keep), "seeded", seeded, "updated", updated, "removed", len(removed))
	return nil
}
