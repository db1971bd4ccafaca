// Package models provides data model definitions for Knowbase Core.
package models

import "encoding/json"

// CacheEntry represents a TTL-bound cached value.
// Timestamps are unix milliseconds; an entry past ExpiresAt is treated
// as absent and deleted on the next read.
type CacheEntry struct {
	Key       string          `db:"key" json:"key"`
	TypeName  string          `db:"type_name" json:"type_name"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	ExpiresAt int64           `db:"expires_at" json:"expires_at"`
	CreatedAt int64           `db:"created_at" json:"created_at"`
	UpdatedAt int64           `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for CacheEntry.
func (CacheEntry) TableName() string {
	return "cache_entries"
}

// Expired reports whether the entry is past its expiry at the given
// unix-millisecond timestamp.
func (e *CacheEntry) Expired(nowMilli int64) bool {
	return nowMilli > e.ExpiresAt
}
