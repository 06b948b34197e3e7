package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const lastBundleKey = "last_bundle_path"

// SQLiteStore keeps the last bundle path in a key/value table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the SQLite database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create state dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cannot open state db %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cannot configure state db: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS kv (
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL,
            updated_at TEXT NOT NULL
        );`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cannot migrate state db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load returns the saved path, or "" when nothing is saved.
func (s *SQLiteStore) Load(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, lastBundleKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("cannot read state: %w", err)
	}
	return v, nil
}

// Save records bundlePath as the last connected bundle.
func (s *SQLiteStore) Save(ctx context.Context, bundlePath string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv(key, value, updated_at) VALUES(?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		lastBundleKey, bundlePath, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("cannot save state: %w", err)
	}
	return nil
}

// Clear forgets the saved path.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, lastBundleKey); err != nil {
		return fmt.Errorf("cannot clear state: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
