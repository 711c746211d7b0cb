package tracking

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

// NewDatabase opens a SQLite database at the specified path and applies the schema
func NewDatabase(dbPath string) (*sql.DB, error) {
	// Ensure directory exists if not in-memory
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Open database connection
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply pragmas first
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA user_version = 1",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	// Ensure schema exists
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return db, nil
}

// ensureSchema creates the database schema if it doesn't exist
func ensureSchema(db *sql.DB) error {
	schema := `
-- One row per playback session
CREATE TABLE IF NOT EXISTS playback_sessions (
    id             TEXT    PRIMARY KEY,
    started_at     INTEGER NOT NULL,
    finished_at    INTEGER,
    source         TEXT    NOT NULL,
    backend        TEXT    NOT NULL,
    device         TEXT    NOT NULL DEFAULT '',
    requested_rate INTEGER NOT NULL CHECK (requested_rate > 0),
    granted_rate   INTEGER NOT NULL CHECK (granted_rate > 0),
    bytes_written  INTEGER NOT NULL DEFAULT 0,
    chunks         INTEGER NOT NULL DEFAULT 0,
    underruns      INTEGER NOT NULL DEFAULT 0,
    duration_ms    INTEGER NOT NULL DEFAULT 0,
    completed      INTEGER NOT NULL DEFAULT 0 CHECK (completed IN (0,1))
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_sessions_started ON playback_sessions(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_backend ON playback_sessions(backend);
CREATE INDEX IF NOT EXISTS idx_sessions_underruns ON playback_sessions(underruns) WHERE underruns > 0;
`

	// Execute schema creation
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}
