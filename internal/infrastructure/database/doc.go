// Package database opens the bay's SQLite file and applies its schema
// migrations.
//
// The file holds the bay event journal. WAL mode lets the journal writer
// append while an operator reads the history. Migrations are additive and
// shipped as paired NNNN_name.up.sql / NNNN_name.down.sql files embedded in
// the binary (see the top-level migrations package).
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
