// Package models provides data model definitions for Knowbase Core.
package models

import "encoding/json"

// OfflineEntry represents a durable snapshot with no expiry. Entries
// persist until replaced or pruned by retention cleanup.
type OfflineEntry struct {
	Key        string          `db:"key" json:"key"`
	EntityType EntityType      `db:"entity_type" json:"entity_type"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	LastSyncAt *int64          `db:"last_sync_at" json:"last_sync_at,omitempty"`
	UpdatedAt  int64           `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for OfflineEntry.
func (OfflineEntry) TableName() string {
	return "offline_entries"
}
