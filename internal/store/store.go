package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps the single embedded SQL database file shared by the daemon and
// every short-lived hook process. One writer, many readers, enforced by
// SQLite's own WAL-mode file locking.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the database file at path, sets the
// journaling/concurrency pragmas, and applies any pending migrations.
// Safe to call concurrently from multiple short-lived processes against the
// same file; migrations serialize via SQLite's own exclusive-transaction
// locking.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// A single writer at a time; WAL lets readers proceed without blocking on it.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for components (curation transactions) that need
// to span several repository calls atomically.
func (s *Store) DB() *sql.DB { return s.db }
