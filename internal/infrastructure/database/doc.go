// Package database provides the SQLite connection used by SciReCount Core.
//
// It opens the database file with WAL journaling and a busy timeout, keeps
// the pool at a single connection, and applies the embedded schema
// migrations found in MigrationsFS.
//
// All queries in the repositories built on top of it use parameterised
// statements, and the database file is chmod'ed to 0600.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
