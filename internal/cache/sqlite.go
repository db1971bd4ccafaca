package cache

import (
	"database/sql"
	"fmt"
	"time"
)

// SQLite is a persistent Client backed by the cache_entries table.
// Safe for concurrent use; the database handle serializes writes.
type SQLite struct {
	db *sql.DB

	now func() time.Time
}

// NewSQLite creates a persistent cache over an already-migrated
// database.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, now: time.Now}
}

// Get returns the payload for key. An expired row is deleted and
// reported as a miss.
func (s *SQLite) Get(key string) ([]byte, bool) {
	var payload []byte
	var expiresAt int64

	err := s.db.QueryRow(
		"SELECT payload, expires_at FROM cache_entries WHERE key = ?", key,
	).Scan(&payload, &expiresAt)
	if err != nil {
		return nil, false
	}

	if s.now().UnixMilli() > expiresAt {
		// Guard against deleting a row another writer refreshed since
		// our read.
		_, _ = s.db.Exec("DELETE FROM cache_entries WHERE key = ? AND expires_at = ?", key, expiresAt)
		return nil, false
	}

	return payload, true
}

// Set overwrites any existing entry for key, preserving the original
// created_at on replace.
func (s *SQLite) Set(key, typeName string, payload []byte, ttl time.Duration) error {
	now := s.now().UnixMilli()

	query := `
	INSERT INTO cache_entries (key, type_name, payload, expires_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		type_name = excluded.type_name,
		payload = excluded.payload,
		expires_at = excluded.expires_at,
		updated_at = excluded.updated_at
	`
	_, err := s.db.Exec(query, key, typeName, payload, now+ttl.Milliseconds(), now, now)
	if err != nil {
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	return nil
}

// Remove deletes the entry for key, if any.
func (s *SQLite) Remove(key string) error {
	_, err := s.db.Exec("DELETE FROM cache_entries WHERE key = ?", key)
	return err
}

// Clear removes all entries.
func (s *SQLite) Clear() error {
	_, err := s.db.Exec("DELETE FROM cache_entries")
	return err
}
