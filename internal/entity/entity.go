// Package entity defines the core entities used in the application.
package entity

import (
	"log/slog"
	"time"
)

// JobStatus represents the status of a download job.
type JobStatus string

const (
	// JobStatusQueued indicates that the job is accepted and waits for a worker.
	JobStatusQueued JobStatus = "queued"
	// JobStatusDownloading indicates that the job is in progress.
	JobStatusDownloading JobStatus = "downloading"
	// JobStatusMerging indicates that the streams are being recombined.
	JobStatusMerging JobStatus = "merging"
	// JobStatusError indicates that the job has encountered an error.
	JobStatusError JobStatus = "error"
	// JobStatusFinished indicates that the job has finished successfully.
	JobStatusFinished JobStatus = "finished"
	// JobStatusCancelled indicates that the job was cancelled by the user.
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transition can happen from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusFinished || s == JobStatusError || s == JobStatusCancelled
}

// Job is the session bookkeeping record of one download.
type Job struct {
	ID        string      `json:"id"`
	URL       string      `json:"url"`
	FormatID  string      `json:"formatId"`
	Policy    MergePolicy `json:"mergePolicy"`
	Dir       string      `json:"dir"`
	Status    JobStatus   `json:"status"`
	Progress  int         `json:"progress"`
	Outputs   []string    `json:"outputs,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"errorKind,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (j Job) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", j.ID),
		slog.String("url", j.URL),
		slog.String("format_id", j.FormatID),
		slog.String("policy", string(j.Policy)),
		slog.String("status", string(j.Status)),
		slog.Int("progress", j.Progress),
		slog.Int("outputs", len(j.Outputs)),
	)
}
