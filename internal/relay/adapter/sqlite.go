// Package adapter provides SQLite-backed implementations of the app layer's
// persistence ports. SQLite tolerates exactly one writer, so every mutating
// call is serialized behind a write mutex while reads stay concurrent.
package adapter

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// OpenDB opens the relay database with the pragmas the single-writer setup
// relies on: WAL for concurrent reads and a busy timeout so a slow write
// queues instead of failing.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
