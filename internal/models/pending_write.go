// Package models provides data model definitions for Knowbase Core.
package models

import "encoding/json"

// OperationType represents the kind of queued mutation.
type OperationType string

const (
	OperationCreate OperationType = "create"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"
)

// WriteStatus represents the lifecycle state of a pending write.
type WriteStatus string

const (
	WriteStatusPending  WriteStatus = "pending"
	WriteStatusInFlight WriteStatus = "in_flight"
	WriteStatusFailed   WriteStatus = "failed"
)

// PendingWrite represents a durable local mutation awaiting replay
// against the remote backend. Records are FIFO by CreatedAt; a record
// moves pending -> in_flight -> (deleted on success) | failed.
type PendingWrite struct {
	ID             UUID            `db:"id" json:"id"`
	Operation      OperationType   `db:"operation" json:"operation"`
	EntityType     EntityType      `db:"entity_type" json:"entity_type"`
	EntityID       string          `db:"entity_id" json:"entity_id,omitempty"`
	Payload        json.RawMessage `db:"payload" json:"payload"`
	CreatedAt      int64           `db:"created_at" json:"created_at"`
	UpdatedAt      int64           `db:"updated_at" json:"updated_at"`
	Attempts       int             `db:"attempts" json:"attempts"`
	Status         WriteStatus     `db:"status" json:"status"`
	NextRetryAt    int64           `db:"next_retry_at" json:"next_retry_at"`
	LastError      string          `db:"last_error" json:"last_error,omitempty"`
	ConflictReason string          `db:"conflict_reason" json:"conflict_reason,omitempty"`
	ServerSnapshot json.RawMessage `db:"server_snapshot" json:"server_snapshot,omitempty"`
}

// TableName returns the table name for PendingWrite.
func (PendingWrite) TableName() string {
	return "pending_writes"
}

// InConflict reports whether the record is parked on a server-side
// conflict and needs explicit resolution before it can be replayed.
func (w *PendingWrite) InConflict() bool {
	return w.Status == WriteStatusFailed && w.ConflictReason != ""
}
