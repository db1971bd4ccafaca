// Package offline provides the durable offline store: key/value
// snapshots with no expiry, tagged by entity type, used as the fallback
// tier when both the cache and the network come up empty. Entries
// survive process restarts and persist until replaced or pruned by
// retention cleanup.
package offline

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ohartl/knowbase/internal/models"
)

// Store persists offline snapshots in the offline_entries table.
type Store struct {
	db *sql.DB

	now func() time.Time
}

// NewStore creates a Store over an already-migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Set writes or replaces the snapshot for key. lastSyncAt records when
// the payload was last confirmed against the server; pass nil when the
// write comes from local state that has not synced yet.
func (s *Store) Set(key string, entityType models.EntityType, payload []byte, lastSyncAt *time.Time) error {
	var syncMilli *int64
	if lastSyncAt != nil {
		v := lastSyncAt.UnixMilli()
		syncMilli = &v
	}

	// A fresh payload supersedes any recorded staleness.
	query := `
	INSERT INTO offline_entries (key, entity_type, payload, last_sync_at, updated_at, last_error)
	VALUES (?, ?, ?, ?, ?, NULL)
	ON CONFLICT(key) DO UPDATE SET
		entity_type = excluded.entity_type,
		payload = excluded.payload,
		last_sync_at = excluded.last_sync_at,
		updated_at = excluded.updated_at,
		last_error = NULL
	`
	_, err := s.db.Exec(query, key, string(entityType), payload, syncMilli, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to write offline entry %s: %w", key, err)
	}
	return nil
}

// Get returns the snapshot payload for key.
func (s *Store) Get(key string) ([]byte, bool) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM offline_entries WHERE key = ?", key).Scan(&payload)
	if err != nil {
		return nil, false
	}
	return payload, true
}

// GetAll returns the payloads of every entry whose key starts with
// prefix, in key order. Used to reconstruct collections when the
// primary cache is empty.
func (s *Store) GetAll(prefix string) ([][]byte, error) {
	pattern := escapeLike(prefix) + "%"

	rows, err := s.db.Query(
		`SELECT payload FROM offline_entries WHERE key LIKE ? ESCAPE '\' ORDER BY key`, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to scan offline entries for %s: %w", prefix, err)
	}
	defer rows.Close()

	var payloads [][]byte
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		payloads = append(payloads, payload)
	}
	return payloads, rows.Err()
}

// Remove deletes the snapshot for key, if any.
func (s *Store) Remove(key string) error {
	_, err := s.db.Exec("DELETE FROM offline_entries WHERE key = ?", key)
	return err
}

// LastSyncAt returns when the snapshot for key was last confirmed
// against the server. The second return is false if the key is absent
// or has never synced.
func (s *Store) LastSyncAt(key string) (time.Time, bool) {
	var syncMilli sql.NullInt64
	err := s.db.QueryRow("SELECT last_sync_at FROM offline_entries WHERE key = ?", key).Scan(&syncMilli)
	if err != nil || !syncMilli.Valid {
		return time.Time{}, false
	}
	return time.UnixMilli(syncMilli.Int64), true
}

// MarkStale records a failed refresh against the snapshot for key. The
// payload stays untouched; callers keep serving it while the marker
// signals it may lag the server. A no-op when no snapshot exists.
func (s *Store) MarkStale(key, message string) error {
	_, err := s.db.Exec("UPDATE offline_entries SET last_error = ? WHERE key = ?", message, key)
	if err != nil {
		return fmt.Errorf("failed to mark %s stale: %w", key, err)
	}
	return nil
}

// StaleError returns the last refresh failure recorded for key. The
// second return is false if the key is absent or its last refresh
// succeeded.
func (s *Store) StaleError(key string) (string, bool) {
	var msg sql.NullString
	err := s.db.QueryRow("SELECT last_error FROM offline_entries WHERE key = ?", key).Scan(&msg)
	if err != nil || !msg.Valid {
		return "", false
	}
	return msg.String, true
}

// escapeLike escapes LIKE metacharacters so a key prefix is matched
// literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Typed accessors, mirroring the cache package.

// Get reads and decodes a typed snapshot. Decode failure is a miss.
func Get[T any](s *Store, key string) (T, bool) {
	var zero T

	payload, ok := s.Get(key)
	if !ok {
		return zero, false
	}

	var value T
	if err := json.Unmarshal(payload, &value); err != nil {
		return zero, false
	}
	return value, true
}

// Set serializes and stores a typed snapshot.
func Set[T any](s *Store, key string, entityType models.EntityType, value T, lastSyncAt *time.Time) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize offline value for %s: %w", key, err)
	}
	return s.Set(key, entityType, payload, lastSyncAt)
}

// GetAll reads and decodes every snapshot under a key prefix. Entries
// that fail to decode are skipped rather than failing the whole scan.
func GetAll[T any](s *Store, prefix string) ([]T, error) {
	payloads, err := s.GetAll(prefix)
	if err != nil {
		return nil, err
	}

	values := make([]T, 0, len(payloads))
	for _, payload := range payloads {
		var value T
		if err := json.Unmarshal(payload, &value); err != nil {
			continue
		}
		values = append(values, value)
	}
	return values, nil
}
