// Package models provides data model definitions for Knowbase Core.
package models

import (
	"database/sql/driver"
	"fmt"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*u = ""
	case string:
		*u = UUID(v)
	case []byte:
		*u = UUID(v)
	default:
		return fmt.Errorf("cannot scan %T into UUID", value)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// EntityType identifies the kind of entity a record belongs to.
type EntityType string

const (
	EntityNote         EntityType = "note"
	EntityWebsite      EntityType = "website"
	EntityTask         EntityType = "task"
	EntityConversation EntityType = "conversation"
	EntityFileJob      EntityType = "file_job"
)
