// Package database manages the SQLite connection for the roster cache.
//
// The engine keeps a local copy of the last successfully fetched device
// roster so the UI has a device list immediately after startup, before the
// first upstream fetch succeeds (or while the upstream is unreachable).
//
// # Usage
//
//	db, err := database.Open(ctx, database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
// The schema is created on open; it is idempotent and small enough that no
// migration framework is needed.
package database
