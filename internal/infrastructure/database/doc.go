// Package database provides the SQLite store used by the MIoT bridge.
//
// It manages the connection (WAL mode, busy timeout, single writer) and
// applies embedded schema migrations. The host package builds its entity
// registry, restore store and state history on top of it.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive-only. Each file pair is named
// YYYYMMDD_HHMMSS_description.{up,down}.sql.
package database
