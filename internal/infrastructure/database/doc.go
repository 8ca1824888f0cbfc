// Package database provides SQLite connectivity for the Gray Logic MIDI
// lifecycle journal.
//
// This package manages:
//   - Database connection with WAL mode for file databases
//   - In-memory databases (MemoryPath) for tests
//   - Schema migrations read from any fs.FS (see the migrations package)
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration Strategy:
//
// Migrations are additive: new columns must be NULLABLE or have a DEFAULT,
// and every .up.sql has a matching .down.sql.
package database
