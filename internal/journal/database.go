package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Database manages the SQLite database holding the journal
type Database struct {
	db     *sql.DB
	dbPath string
}

// NewDatabase creates a new database connection
func NewDatabase(dbPath string) (*Database, error) {
	dir := filepath.Dir(dbPath)
	if err := ensureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes well
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	database := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := database.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return database, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Path returns the database file path
func (d *Database) Path() string {
	return d.dbPath
}

// initSchema initializes the database schema
func (d *Database) initSchema() error {
	schema := `
	-- One row per reframed stream
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		frame_width INTEGER NOT NULL,
		frame_height INTEGER NOT NULL,
		fps REAL NOT NULL,
		strategy TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		frames INTEGER DEFAULT 0,
		cuts INTEGER DEFAULT 0,
		soft_transitions INTEGER DEFAULT 0,
		layout_switches INTEGER DEFAULT 0,
		dropped INTEGER DEFAULT 0,
		cancelled BOOLEAN DEFAULT 0,
		last_window TEXT -- JSON
	);

	-- Emitted window per frame
	CREATE TABLE IF NOT EXISTS crop_decisions (
		run_id TEXT NOT NULL,
		frame_index INTEGER NOT NULL,
		timestamp_ms INTEGER NOT NULL,
		layout TEXT NOT NULL,
		window TEXT NOT NULL, -- JSON
		raw_window TEXT NOT NULL, -- JSON
		reason TEXT NOT NULL,
		subjects INTEGER NOT NULL,
		dropped INTEGER NOT NULL,
		cut_class TEXT NOT NULL,
		cut_score REAL NOT NULL,
		step TEXT NOT NULL,
		snapped BOOLEAN NOT NULL,
		predicted BOOLEAN NOT NULL,
		PRIMARY KEY (run_id, frame_index),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_crop_decisions_cut ON crop_decisions(run_id, cut_class);
	`

	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// ensureDir ensures a directory exists
func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}
