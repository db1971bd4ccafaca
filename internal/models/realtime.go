// Package models provides data model definitions for Knowbase Core.
package models

import "encoding/json"

// RealtimeEventType represents the kind of server-pushed change event.
type RealtimeEventType string

const (
	RealtimeInsert RealtimeEventType = "INSERT"
	RealtimeUpdate RealtimeEventType = "UPDATE"
	RealtimeDelete RealtimeEventType = "DELETE"
)

// RealtimePayload is a server-pushed change event. INSERT/UPDATE carry
// Record; DELETE carries only OldRecord. Payloads are ephemeral and
// never persisted.
type RealtimePayload struct {
	EventType RealtimeEventType `json:"eventType"`
	Table     string            `json:"table"`
	Schema    string            `json:"schema"`
	Record    json.RawMessage   `json:"record,omitempty"`
	OldRecord json.RawMessage   `json:"old_record,omitempty"`
}
