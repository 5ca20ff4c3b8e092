package roster

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fleexa/device-sync/internal/infrastructure/database"
	"github.com/fleexa/device-sync/internal/state"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "roster.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() {
		db.Close() //nolint:errcheck // test cleanup
	})
	return NewRepository(db)
}

func TestRepository_RoundTrip(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	devices := []state.DeviceIdentity{
		{ID: "D1", Name: "Pump A", MAC: "aa:bb", TenantID: "t1", Latitude: state.Float(10.5), Longitude: state.Float(-3.25)},
		{ID: "D2", Name: "Heater", MAC: "cc:dd"},
	}
	if err := repo.ReplaceAll(ctx, devices); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}

	got, err := repo.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d devices, want 2", len(got))
	}

	// Ordered by name: Heater before Pump A.
	if got[0].ID != "D2" || got[1].ID != "D1" {
		t.Errorf("order = %s, %s", got[0].ID, got[1].ID)
	}
	pump := got[1]
	if pump.TenantID != "t1" {
		t.Errorf("TenantID = %q, want %q", pump.TenantID, "t1")
	}
	if pump.Latitude == nil || *pump.Latitude != 10.5 {
		t.Error("Latitude not round-tripped")
	}
	if got[0].Latitude != nil || got[0].TenantID != "" {
		t.Error("absent optional fields came back non-nil")
	}
}

func TestRepository_ReplaceAllOverwrites(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	first := []state.DeviceIdentity{{ID: "D1", Name: "A", MAC: "m"}, {ID: "D2", Name: "B", MAC: "m"}}
	if err := repo.ReplaceAll(ctx, first); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}

	second := []state.DeviceIdentity{{ID: "D3", Name: "C", MAC: "m"}}
	if err := repo.ReplaceAll(ctx, second); err != nil {
		t.Fatalf("second ReplaceAll() error = %v", err)
	}

	got, err := repo.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "D3" {
		t.Errorf("cache = %+v, want only D3", got)
	}
}

func TestRepository_EmptyCache(t *testing.T) {
	repo := openTestRepo(t)

	got, err := repo.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("loaded %d devices from empty cache", len(got))
	}
}
