package entity

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// MergePolicy decides what happens to a video-only option.
type MergePolicy string

const (
	// PolicyAutoMerge downloads video plus best audio and recombines them in one file.
	PolicyAutoMerge MergePolicy = "auto-merge"
	// PolicyKeepSeparate downloads the video and audio streams into two files.
	PolicyKeepSeparate MergePolicy = "keep-separate"
)

// ParseMergePolicy accepts the canonical names and the short aliases merge, auto and separate.
// An empty string yields PolicyAutoMerge.
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(PolicyAutoMerge), "merge", "auto":
		return PolicyAutoMerge, nil
	case string(PolicyKeepSeparate), "separate":
		return PolicyKeepSeparate, nil
	default:
		return "", fmt.Errorf("unknown merge policy %q", s)
	}
}

// DownloadRequest is everything one orchestrated download needs.
// It lives only for the duration of that download.
type DownloadRequest struct {
	URL      string
	Option   FormatOption
	Policy   MergePolicy
	Dir      string
	BaseName string
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (r DownloadRequest) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("url", r.URL),
		slog.Any("option", r.Option),
		slog.String("policy", string(r.Policy)),
		slog.String("dir", r.Dir),
		slog.String("base_name", r.BaseName),
	)
}

// EventKind is the type of a ProgressEvent.
type EventKind string

const (
	EventDownloading    EventKind = "downloading"
	EventStreamComplete EventKind = "stream_complete"
	EventMergeStarted   EventKind = "merge_started"
	EventSuccess        EventKind = "success"
	EventFailure        EventKind = "failure"
)

// Terminal reports whether k ends an operation.
func (k EventKind) Terminal() bool {
	return k == EventSuccess || k == EventFailure
}

// ProgressEvent is one step reported by a running download.
type ProgressEvent struct {
	Kind       EventKind `json:"kind"`
	Stream     string    `json:"stream,omitempty"`
	BytesDone  int64     `json:"bytesDone,omitempty"`
	BytesTotal int64     `json:"bytesTotal,omitempty"`
	Outputs    []string  `json:"outputs,omitempty"`
	Failure    string    `json:"failure,omitempty"`
	Message    string    `json:"message,omitempty"`
	At         time.Time `json:"at"`
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (e ProgressEvent) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("kind", string(e.Kind))}

	if e.Stream != "" {
		attrs = append(attrs, slog.String("stream", e.Stream))
	}

	switch e.Kind {
	case EventDownloading:
		attrs = append(attrs, slog.Int64("bytes_done", e.BytesDone), slog.Int64("bytes_total", e.BytesTotal))
	case EventSuccess:
		attrs = append(attrs, slog.Any("outputs", e.Outputs))
	case EventFailure:
		attrs = append(attrs, slog.String("failure", e.Failure), slog.String("message", e.Message))
	}

	return slog.GroupValue(attrs...)
}
