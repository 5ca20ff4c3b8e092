package roster

import (
	"context"
	"errors"
	"testing"

	"github.com/fleexa/device-sync/internal/state"
)

// fakeLister serves a scripted sequence of listings.
type fakeLister struct {
	listings [][]state.DeviceIdentity
	errs     []error
	calls    int
}

func (f *fakeLister) ListDevices(context.Context) ([]state.DeviceIdentity, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.listings) {
		return f.listings[i], nil
	}
	return nil, nil
}

func identity(id, name string) state.DeviceIdentity {
	return state.DeviceIdentity{ID: id, Name: name, MAC: "00:" + id}
}

func TestManager_RefreshSeedsAndPrunes(t *testing.T) {
	store := state.NewStore()
	lister := &fakeLister{listings: [][]state.DeviceIdentity{
		{identity("D1", "Pump A"), identity("D2", "Pump B")},
		{identity("D1", "Pump A")},
	}}
	m := NewManager(lister, store, nil)

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if store.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", store.Count())
	}

	// Seeded devices get a default live state, connected=false.
	ls, ok := store.Get("D2")
	if !ok {
		t.Fatal("seeded device has no live state")
	}
	if ls.Connected {
		t.Error("seeded live state connected = true, want false")
	}

	// D2 disappears from the listing: identity and live state go with it.
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh() error = %v", err)
	}
	if _, ok := store.GetIdentity("D2"); ok {
		t.Error("pruned identity still present")
	}
	if _, ok := store.Get("D2"); ok {
		t.Error("pruned live state still present")
	}
}

func TestManager_RefreshUpdatesChangedIdentity(t *testing.T) {
	store := state.NewStore()
	renamed := identity("D1", "Pump A (renamed)")
	lister := &fakeLister{listings: [][]state.DeviceIdentity{
		{identity("D1", "Pump A")},
		{renamed},
	}}
	m := NewManager(lister, store, nil)

	m.Refresh(context.Background()) //nolint:errcheck // scripted success
	m.Refresh(context.Background()) //nolint:errcheck // scripted success

	got, _ := store.GetIdentity("D1")
	if got.Name != renamed.Name {
		t.Errorf("Name = %q, want %q", got.Name, renamed.Name)
	}
}

func TestManager_RefreshFailureKeepsRoster(t *testing.T) {
	store := state.NewStore()
	lister := &fakeLister{
		listings: [][]state.DeviceIdentity{{identity("D1", "Pump A")}, nil},
		errs:     []error{nil, errors.New("upstream down")},
	}
	m := NewManager(lister, store, nil)

	m.Refresh(context.Background()) //nolint:errcheck // scripted success

	err := m.Refresh(context.Background())
	if !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("error = %v, want ErrRefreshFailed", err)
	}
	if store.Count() != 1 {
		t.Error("failed refresh changed the roster")
	}
}

func TestManager_RefreshSkipsEntriesWithoutID(t *testing.T) {
	store := state.NewStore()
	lister := &fakeLister{listings: [][]state.DeviceIdentity{
		{identity("D1", "Pump A"), {Name: "ghost", MAC: "ff:ff"}},
	}}
	m := NewManager(lister, store, nil)

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if store.Count() != 1 {
		t.Errorf("Count() = %d, want 1", store.Count())
	}
}

// fakeCache is an in-memory Cache.
type fakeCache struct {
	devices []state.DeviceIdentity
	loadErr error
	saveErr error
	saves   int
}

func (f *fakeCache) ReplaceAll(_ context.Context, devices []state.DeviceIdentity) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.devices = devices
	f.saves++
	return nil
}

func (f *fakeCache) LoadAll(context.Context) ([]state.DeviceIdentity, error) {
	return f.devices, f.loadErr
}

func TestManager_WarmStart(t *testing.T) {
	store := state.NewStore()
	cache := &fakeCache{devices: []state.DeviceIdentity{
		identity("D1", "Pump A"), identity("D2", "Pump B"),
	}}
	m := NewManager(&fakeLister{}, store, cache)

	if got := m.WarmStart(context.Background()); got != 2 {
		t.Errorf("WarmStart() = %d, want 2", got)
	}
	if store.Count() != 2 {
		t.Errorf("Count() = %d, want 2", store.Count())
	}
}

func TestManager_WarmStartCacheError(t *testing.T) {
	store := state.NewStore()
	cache := &fakeCache{loadErr: errors.New("disk gone")}
	m := NewManager(&fakeLister{}, store, cache)

	if got := m.WarmStart(context.Background()); got != 0 {
		t.Errorf("WarmStart() = %d, want 0", got)
	}
}

func TestManager_RefreshWritesCache(t *testing.T) {
	store := state.NewStore()
	cache := &fakeCache{}
	lister := &fakeLister{listings: [][]state.DeviceIdentity{
		{identity("D1", "Pump A")},
	}}
	m := NewManager(lister, store, cache)

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if cache.saves != 1 || len(cache.devices) != 1 {
		t.Errorf("cache saves = %d, devices = %d", cache.saves, len(cache.devices))
	}
}

func TestManager_CacheWriteFailureIsNonFatal(t *testing.T) {
	store := state.NewStore()
	cache := &fakeCache{saveErr: errors.New("read-only fs")}
	lister := &fakeLister{listings: [][]state.DeviceIdentity{
		{identity("D1", "Pump A")},
	}}
	m := NewManager(lister, store, cache)

	if err := m.Refresh(context.Background()); err != nil {
		t.Errorf("Refresh() error = %v, want nil despite cache failure", err)
	}
	if store.Count() != 1 {
		t.Error("store not updated when cache write failed")
	}
}
