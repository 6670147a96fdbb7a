// Package database provides the device-local SQLite store for Neurite Core.
//
// The store is small: it keeps the persistent device identity and a boot
// counter, and is opened once at startup. Schema changes are versioned
// migration files applied from an fs.FS (normally the embedded migrations
// package).
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
