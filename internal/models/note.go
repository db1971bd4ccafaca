// Package models provides data model definitions for Knowbase Core.
package models

import "time"

// Note represents a user note.
type Note struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	Pinned      bool   `json:"pinned"`
	PinnedOrder int    `json:"pinned_order"`
	Archived    bool   `json:"archived"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// UpdatedAtTime returns the millisecond UpdatedAt stamp as time.Time.
func (n *Note) UpdatedAtTime() time.Time {
	return time.UnixMilli(n.UpdatedAt)
}

// EntityID returns the note id.
func (n Note) EntityID() string { return n.ID }

// NoteRecord is the wire shape of a note as pushed by the realtime
// transport. Flags live in a loose metadata map that varies by source
// schema version, so mapping is defensive: a missing or mistyped field
// falls back to the zero value instead of failing the event.
type NoteRecord struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata"`
	CreatedAt int64                  `json:"created_at"`
	UpdatedAt int64                  `json:"updated_at"`
}

// ToNote maps the wire record to the local entity shape.
func (r *NoteRecord) ToNote() Note {
	return Note{
		ID:          r.ID,
		Title:       r.Title,
		Content:     r.Content,
		Pinned:      metaBool(r.Metadata, "pinned"),
		PinnedOrder: metaInt(r.Metadata, "pinned_order"),
		Archived:    metaBool(r.Metadata, "archived"),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// metaBool reads a boolean from a loose metadata map, tolerating nil
// maps, missing keys, and JSON's habit of delivering everything as
// interface{}.
func metaBool(m map[string]interface{}, key string) bool {
	if m == nil {
		return false
	}
	v, ok := m[key].(bool)
	if !ok {
		return false
	}
	return v
}

// metaInt reads an integer from a loose metadata map. JSON numbers
// decode as float64.
func metaInt(m map[string]interface{}, key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
