// Package extractor defines the extraction service the download core talks to,
// and its yt-dlp and mock implementations.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vidfetch/internal/config"
	"vidfetch/internal/consts"
	"vidfetch/internal/entity"
	"vidfetch/internal/observability"
	"vidfetch/internal/proxymgr"
)

// Progress statuses reported by a download.
const (
	StatusDownloading    = "downloading"
	StatusPostProcessing = "post_processing"
	StatusFinished       = "finished"
)

// Progress is one progress report of a running download.
// Byte counts describe Filename only and are 0 when unknown.
type Progress struct {
	Status          string
	Filename        string
	DownloadedBytes int64
	TotalBytes      int64
}

// ProgressFunc receives progress reports. It is called from the goroutine running the download.
type ProgressFunc func(Progress)

// PostProcessorConvert converts the final file to another container.
const PostProcessorConvert = "convert"

// PostProcessor names a step run by the backend after downloading.
type PostProcessor struct {
	Kind      string
	Container string
}

// ConvertContainer returns the post-processor that converts the output to container.
func ConvertContainer(container string) PostProcessor {
	return PostProcessor{Kind: PostProcessorConvert, Container: container}
}

// DownloadOptions configures one download call.
type DownloadOptions struct {
	// Selector is a format id or a composite expression such as "137+bestaudio/best".
	Selector string
	// OutputTemplate is an absolute path that may contain %(ext)s.
	OutputTemplate string
	Progress       ProgressFunc
	PostProcessors []PostProcessor
}

// DownloadResult lists the files a download produced.
type DownloadResult struct {
	Files []string
}

// Service is the extraction backend.
type Service interface {
	FetchMetadata(ctx context.Context, url string) (entity.VideoMetadata, error)
	ListFormats(ctx context.Context, url string) ([]entity.RawFormat, error)
	Download(ctx context.Context, url string, opts DownloadOptions) (DownloadResult, error)
}

// ErrUnknownBackend is returned by New for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown extractor backend")

// New returns the backend named by cfg.Extractor.Backend. proxyMgr may be nil.
func New(log *slog.Logger, cfg *config.Config, proxyMgr *proxymgr.Manager, metrics *observability.Metrics) (Service, error) {
	switch cfg.Extractor.Backend {
	case consts.ExtractorYTdlp, "":
		return NewYTdlp(log, cfg, proxyMgr, metrics), nil
	case consts.ExtractorMock:
		return NewMock(log, MockOptions{}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Extractor.Backend)
	}
}
