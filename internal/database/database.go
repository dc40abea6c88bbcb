// Package database manages the SQLite database that holds the credential audit trail.
// It opens the database, enables WAL mode, and runs all schema migrations.
package database

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// DefaultRetention is how long audit events are kept when no retention is configured.
const DefaultRetention = 90 * 24 * time.Hour

// Open opens (or creates) the SQLite database at path and runs all migrations.
// Use ":memory:" for an in-memory database (useful in tests).
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Keep a single writer connection to avoid SQLITE_BUSY under concurrent load.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// migrate executes the schema DDL. All statements are idempotent.
func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// Cleanup prunes audit events older than retention. A non-positive retention uses DefaultRetention.
// It returns the number of rows removed.
func Cleanup(db *sql.DB, retention time.Duration) (int64, error) {
	return cleanupBefore(db, time.Now().UTC(), retention)
}

func cleanupBefore(db *sql.DB, now time.Time, retention time.Duration) (int64, error) {
	if db == nil {
		return 0, errors.New("database handle is required")
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := now.Add(-retention).Unix()
	res, err := db.Exec(`DELETE FROM credential_events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
