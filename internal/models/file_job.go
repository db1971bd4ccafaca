// Package models provides data model definitions for Knowbase Core.
package models

// FileJobStatus represents the processing state of an ingested file.
type FileJobStatus string

const (
	FileJobQueued     FileJobStatus = "queued"
	FileJobProcessing FileJobStatus = "processing"
	FileJobReady      FileJobStatus = "ready"
	FileJobFailed     FileJobStatus = "failed"
)

// Terminal reports whether the status is final. Pollers stop once a
// terminal status is observed.
func (s FileJobStatus) Terminal() bool {
	return s == FileJobReady || s == FileJobFailed
}

// FileJob represents a server-side ingestion job for an uploaded file.
type FileJob struct {
	ID        string        `json:"id"`
	FileName  string        `json:"file_name"`
	Status    FileJobStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
	CreatedAt int64         `json:"created_at"`
	UpdatedAt int64         `json:"updated_at"`
}

// IngestedFile represents a fully processed file available to the user.
type IngestedFile struct {
	ID        string `json:"id"`
	JobID     string `json:"job_id"`
	FileName  string `json:"file_name"`
	MediaType string `json:"media_type"`
	SizeBytes int64  `json:"size_bytes"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// EntityID returns the job id.
func (j FileJob) EntityID() string { return j.ID }
