package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const createKVTableSQL = `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`

// SQLite implements Store on a single sqlite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(createKVTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLite) Put(key, value string) error {
	_, err := s.db.Exec("INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value", key, value)
	return err
}

func (s *SQLite) Delete(key string) error {
	_, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key)
	return err
}

func (s *SQLite) ListByPrefix(prefix string) (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM kv WHERE key LIKE ? || '%'", prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// CompareAndSwap atomically replaces the value at key when it still equals
// expected. expected == "" succeeds only when the key does not exist yet.
func (s *SQLite) CompareAndSwap(key, expected, next string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&current)
	switch {
	case err == sql.ErrNoRows:
		if expected != "" {
			return false, nil
		}
		if _, err := tx.Exec("INSERT INTO kv (key, value) VALUES (?, ?)", key, next); err != nil {
			return false, err
		}
	case err != nil:
		return false, err
	default:
		if current != expected {
			return false, nil
		}
		if _, err := tx.Exec("UPDATE kv SET value = ? WHERE key = ?", next, key); err != nil {
			return false, err
		}
	}
	return true, tx.Commit()
}
