package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a referenced record does not exist. The
// agent treats it as a transient validation rejection: the dependency
// it references usually has not synced yet.
var ErrNotFound = errors.New("record not found")

// DB is the company-side system-of-record: time entries and breaks.
type DB struct {
	db       *sql.DB
	attested bool
}

// NewDB opens (or creates) the store at path and ensures the schema.
func NewDB(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	d := &DB{db: db}
	d.attested, err = detectAttestationColumns(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to inspect schema: %w", err)
	}
	return d, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS time_entries (
            id TEXT PRIMARY KEY,
            company_id TEXT NOT NULL,
            worker_id TEXT NOT NULL,
            job_id TEXT,
            clock_in DATETIME NOT NULL,
            clock_out DATETIME,
            break_minutes INTEGER NOT NULL DEFAULT 0,
            status TEXT NOT NULL DEFAULT 'active',
            hourly_rate REAL NOT NULL DEFAULT 0,
            photo_url TEXT,
            location TEXT,
            missed_meal_break BOOLEAN NOT NULL DEFAULT 0,
            missed_meal_reason TEXT,
            missed_rest_break BOOLEAN NOT NULL DEFAULT 0,
            missed_rest_reason TEXT,
            attestation_completed BOOLEAN NOT NULL DEFAULT 0,
            attestation_signature TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS breaks (
            id TEXT PRIMARY KEY,
            time_entry_id TEXT NOT NULL,
            break_type TEXT NOT NULL,
            break_start DATETIME NOT NULL,
            break_end DATETIME,
            location TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE INDEX IF NOT EXISTS idx_time_entries_company_id ON time_entries(company_id)`,
		`CREATE INDEX IF NOT EXISTS idx_time_entries_worker_id ON time_entries(worker_id)`,
		`CREATE INDEX IF NOT EXISTS idx_time_entries_clock_in ON time_entries(clock_in)`,
		`CREATE INDEX IF NOT EXISTS idx_time_entries_status ON time_entries(status)`,
		`CREATE INDEX IF NOT EXISTS idx_breaks_time_entry_id ON breaks(time_entry_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %v", query, err)
		}
	}
	return nil
}

// detectAttestationColumns reports whether the attestation migration has
// been applied. A pre-migration table still serves hour-threshold
// compliance; partial visibility beats none.
func detectAttestationColumns(db *sql.DB) (bool, error) {
	rows, err := db.Query(`PRAGMA table_info(time_entries)`)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == "attestation_completed" {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Attested reports whether attestation columns exist in this store.
func (db *DB) Attested() bool {
	return db.attested
}

// Close releases the database handle.
func (db *DB) Close() error {
	return db.db.Close()
}

// ExecContext is exposed for maintenance scripts and tests.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.db.ExecContext(ctx, query, args...)
}
