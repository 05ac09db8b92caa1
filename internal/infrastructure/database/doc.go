// Package database opens the bridge's SQLite store and applies schema
// migrations.
//
// The connection uses WAL mode when configured, a busy timeout and
// enforced foreign keys. The pool is capped at one connection since SQLite
// allows a single writer. The file is created with 0600 permissions.
//
// Migrations are pairs of YYYYMMDD_HHMMSS_name.up.sql and .down.sql files
// embedded by the migrations package, which registers them in MigrationsFS
// from its init function:
//
//	import _ "github.com/nerrad567/gray-logic-tcpconnected/migrations"
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Applied versions are tracked in schema_migrations.
package database
