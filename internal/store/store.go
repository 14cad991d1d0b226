// Package store keeps small per-module key/value data in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Memory opens a store that lives only as long as the process.
const Memory = ":memory:"

// ErrClosed is returned after Close.
var ErrClosed = errors.New("store: closed")

// Store is a SQLite-backed key/value store namespaced by module.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	dsn := path
	if path != Memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return s, nil
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS module_data (
		module TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (module, key)
	);`)
	return err
}

// Get returns the value stored under module/key.
func (s *Store) Get(ctx context.Context, module, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM module_data WHERE module = ? AND key = ?`,
		module, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.wrap("get", err)
	}
	return value, true, nil
}

// Set stores value under module/key.
func (s *Store) Set(ctx context.Context, module, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO module_data (module, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (module, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		module, key, value,
	)
	return s.wrap("set", err)
}

// Delete removes module/key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, module, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM module_data WHERE module = ? AND key = ?`,
		module, key,
	)
	return s.wrap("delete", err)
}

// Keys returns the keys stored for module in order.
func (s *Store) Keys(ctx context.Context, module string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM module_data WHERE module = ? ORDER BY key`,
		module,
	)
	if err != nil {
		return nil, s.wrap("keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, s.wrap("keys", err)
		}
		keys = append(keys, k)
	}
	return keys, s.wrap("keys", rows.Err())
}

// Purge removes every key for module.
func (s *Store) Purge(ctx context.Context, module string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM module_data WHERE module = ?`, module)
	return s.wrap("purge", err)
}

func (s *Store) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) || err.Error() == "sql: database is closed" {
		return fmt.Errorf("store: %s: %w", op, ErrClosed)
	}
	return fmt.Errorf("store: %s: %w", op, err)
}
