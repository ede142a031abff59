// Package database owns the daemon's SQLite store, which backs the
// message journal.
//
// It opens the database with WAL mode and a busy timeout, applies the
// embedded schema on startup (additive-only steps, tracked per file in
// schema_migrations), and exposes a health check for the ops API. All
// queries elsewhere in the daemon go through the embedded *sql.DB with
// parameterised statements.
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.ApplySchema(ctx, migrations.Files); err != nil {
//	    return err
//	}
package database
