package roster

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fleexa/device-sync/internal/infrastructure/database"
	"github.com/fleexa/device-sync/internal/state"
)

// Repository persists the last known roster in the local SQLite cache, so
// the UI has a device list before the first upstream fetch and across
// restarts.
type Repository struct {
	db *database.DB
}

// NewRepository creates a repository over an open database.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// ReplaceAll overwrites the cached roster with the given listing in one
// transaction. The cache always mirrors the last successful fetch exactly,
// including deletions.
func (r *Repository) ReplaceAll(ctx context.Context, devices []state.DeviceIdentity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM devices"); err != nil {
		return fmt.Errorf("%w: clearing cache: %v", ErrCacheUnavailable, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, d := range devices {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO devices (id, name, mac, tenant_id, latitude, longitude, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.Name, d.MAC, nullString(d.TenantID), d.Latitude, d.Longitude, now)
		if err != nil {
			return fmt.Errorf("%w: caching device %s: %v", ErrCacheUnavailable, d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// LoadAll returns the cached roster from the last successful fetch.
func (r *Repository) LoadAll(ctx context.Context) ([]state.DeviceIdentity, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, mac, tenant_id, latitude, longitude FROM devices ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var devices []state.DeviceIdentity
	for rows.Next() {
		var d state.DeviceIdentity
		var tenant sql.NullString
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&d.ID, &d.Name, &d.MAC, &tenant, &lat, &lon); err != nil {
			return nil, fmt.Errorf("%w: scanning device row: %v", ErrCacheUnavailable, err)
		}
		if tenant.Valid {
			d.TenantID = tenant.String
		}
		if lat.Valid {
			d.Latitude = state.Float(lat.Float64)
		}
		if lon.Valid {
			d.Longitude = state.Float(lon.Float64)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return devices, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
