// Package database provides the SQLite connection behind the gateway's
// document store.
//
// It manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Schema migrations read from any fs.FS (the binary embeds them)
//   - Connection lifecycle and health checks
//
// All queries use parameterised statements and the database file is created
// with 0600 permissions.
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
