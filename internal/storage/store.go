// Package storage is the injected client-storage layer. The only durable
// workspace state is the default shell profile ID; sessions themselves do
// not survive a restart.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const defaultProfileKey = "default_shell_profile"

// Store persists small client settings across restarts.
type Store interface {
	// DefaultProfile returns the saved default shell profile ID, or empty
	// when none has been saved.
	DefaultProfile(ctx context.Context) (string, error)
	SetDefaultProfile(ctx context.Context, profileID string) error
	Close() error
}

// SQLiteStore is the sqlite-backed Store implementation.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// Open opens (creating if needed) the settings database at path.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate settings table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) DefaultProfile(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, defaultProfileKey,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read default profile: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) SetDefaultProfile(ctx context.Context, profileID string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO settings(key, value, updated_at)
VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
ON CONFLICT(key) DO UPDATE SET
	value=excluded.value,
	updated_at=excluded.updated_at`,
		defaultProfileKey, profileID)
	if err != nil {
		return fmt.Errorf("save default profile: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Memory is an in-memory Store for tests and ephemeral runs.
type Memory struct {
	profileID string
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) DefaultProfile(ctx context.Context) (string, error) {
	return m.profileID, nil
}

func (m *Memory) SetDefaultProfile(ctx context.Context, profileID string) error {
	m.profileID = profileID
	return nil
}

func (m *Memory) Close() error { return nil }
