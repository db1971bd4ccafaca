// Package models provides data model definitions for Knowbase Core.
package models

// Task represents a to-do item.
type Task struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Done      bool   `json:"done"`
	DueAt     *int64 `json:"due_at,omitempty"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Conversation represents a chat conversation header.
type Conversation struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	LastMessageAt int64  `json:"last_message_at"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

// EntityID returns the task id.
func (t Task) EntityID() string { return t.ID }

// EntityID returns the conversation id.
func (c Conversation) EntityID() string { return c.ID }
