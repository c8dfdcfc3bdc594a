// Package errs defines common error variables and the download error taxonomy.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceClosed indicates that the service is closed and cannot accept new jobs.
	ErrServiceClosed = errors.New("service is closed")
	// ErrInvalidRequestBody indicates that the request body is invalid or cannot be parsed.
	ErrInvalidRequestBody = errors.New("invalid request body")
)

// Valid request errors.
var (
	// ErrInvalidFormatID indicates that the formatId field in the request is empty.
	ErrInvalidFormatID = errors.New("invalid formatId field")
	// ErrInvalidMergePolicy indicates that the mergePolicy field is not a known policy.
	ErrInvalidMergePolicy = errors.New("invalid mergePolicy field")
	// ErrInvalidDir indicates that the requested subfolder escapes the downloads root.
	ErrInvalidDir = errors.New("invalid dir field")
)

// Job and storage errors.
var (
	// ErrNoJobs indicates that there are no jobs in storage.
	ErrNoJobs = errors.New("no jobs")
	// ErrJobNotFound indicates that the job is not found in storage.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobNil indicates that the job is nil.
	ErrJobNil = errors.New("job is nil")
	// ErrJobIDEmpty indicates that the job ID is empty.
	ErrJobIDEmpty = errors.New("job_id is empty")
	// ErrJobNotCancellable indicates that the job already reached a terminal state.
	ErrJobNotCancellable = errors.New("job is not cancellable")
	// ErrJobQueueFull indicates that the job queue is full.
	ErrJobQueueFull = errors.New("job queue is full")
)

// Dependency errors.
var (
	// ErrBinaryNotFound indicates that the required binary was not found.
	ErrBinaryNotFound = errors.New("binary not found")
	// ErrUnsupportedPlatform indicates that the current platform is not supported.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// Proxy errors.
var (
	// ErrNoProxiesAvailable indicates that no proxies are available.
	ErrNoProxiesAvailable = errors.New("no proxies available")
)

// Kind classifies a failure of listing or downloading.
type Kind string

// Failure kinds.
const (
	KindInvalidURL              Kind = "InvalidUrl"
	KindMetadataUnavailable     Kind = "MetadataUnavailable"
	KindNoFormatsAvailable      Kind = "NoFormatsAvailable"
	KindFormatNoLongerAvailable Kind = "FormatNoLongerAvailable"
	KindVideoUnavailable        Kind = "VideoUnavailable"
	KindMergeToolError          Kind = "MergeToolError"
	KindDirectoryError          Kind = "DirectoryError"
	KindNetworkOrExtraction     Kind = "NetworkOrExtractionError"
	KindCancelled               Kind = "Cancelled"
)

// Sentinels, one per Kind, for errors.Is checks.
var (
	ErrInvalidURL              = &Error{Kind: KindInvalidURL}
	ErrMetadataUnavailable     = &Error{Kind: KindMetadataUnavailable}
	ErrNoFormatsAvailable      = &Error{Kind: KindNoFormatsAvailable}
	ErrFormatNoLongerAvailable = &Error{Kind: KindFormatNoLongerAvailable}
	ErrVideoUnavailable        = &Error{Kind: KindVideoUnavailable}
	ErrMergeTool               = &Error{Kind: KindMergeToolError}
	ErrDirectory               = &Error{Kind: KindDirectoryError}
	ErrNetworkOrExtraction     = &Error{Kind: KindNetworkOrExtraction}
	ErrCancelled               = &Error{Kind: KindCancelled}
)

// Error is a classified failure. Message is what a user gets to see, Err the cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New returns a classified error wrapping cause.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}

	return t.Kind == e.Kind
}

// KindOf returns the Kind carried by err, or KindNetworkOrExtraction
// when err was never classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindNetworkOrExtraction
}

// MessageOf returns the user facing message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}

	if err == nil {
		return ""
	}

	return err.Error()
}
