// Package database provides SQLite connectivity and schema migrations
// for dashauth.
//
// This package manages:
//   - Database connection with WAL mode for concurrent reads
//   - Schema migrations loaded from an fs.FS (see the migrations package)
//   - Transaction helpers
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//   - Only SHA-256 digests of refresh tokens are persisted
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrator(migrations.FS).Up(ctx); err != nil {
//	    return err
//	}
package database
