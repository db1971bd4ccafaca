// Package models provides data model definitions for Knowbase Core.
package models

// Website represents a saved website/bookmark.
type Website struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Pinned      bool   `json:"pinned"`
	PinnedOrder int    `json:"pinned_order"`
	Archived    bool   `json:"archived"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// WebsiteRecord is the wire shape of a website as pushed by the
// realtime transport.
type WebsiteRecord struct {
	ID          string                 `json:"id"`
	URL         string                 `json:"url"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata"`
	CreatedAt   int64                  `json:"created_at"`
	UpdatedAt   int64                  `json:"updated_at"`
}

// ToWebsite maps the wire record to the local entity shape.
func (r *WebsiteRecord) ToWebsite() Website {
	return Website{
		ID:          r.ID,
		URL:         r.URL,
		Title:       r.Title,
		Description: r.Description,
		Pinned:      metaBool(r.Metadata, "pinned"),
		PinnedOrder: metaInt(r.Metadata, "pinned_order"),
		Archived:    metaBool(r.Metadata, "archived"),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// EntityID returns the website id.
func (w Website) EntityID() string { return w.ID }
