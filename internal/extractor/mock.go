package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vidfetch/internal/consts"
	"vidfetch/internal/entity"
	"vidfetch/pkg/gen"
	"vidfetch/pkg/urls"
)

const (
	mockSteps    = 4
	mockFileSize = 4 << 20
)

// MockOptions configures the mock backend. Zero values pick deterministic defaults.
type MockOptions struct {
	Metadata    *entity.VideoMetadata
	Formats     []entity.RawFormat
	MetadataErr error
	ListErr     error
	// DownloadErrs maps a selector to the error its download returns.
	DownloadErrs map[string]error
	// Step is the delay between two simulated progress updates.
	Step time.Duration
	// FileSize is the simulated size of every stream.
	FileSize int64
	// ReportPostProcessing makes merged downloads report a post-processing status.
	ReportPostProcessing bool
}

// Call is one recorded invocation of the mock.
type Call struct {
	Op       string
	URL      string
	Selector string
	Template string
}

// Mock is an in-process extraction service that simulates downloads and writes placeholder files.
type Mock struct {
	log  *slog.Logger
	opts MockOptions

	mu    sync.Mutex
	calls []Call
}

// DefaultMockFormats is the format list the mock reports when none is configured.
func DefaultMockFormats() []entity.RawFormat {
	return []entity.RawFormat{
		{FormatID: "18", VideoCodec: "avc1.42001E", AudioCodec: "mp4a.40.2", Height: 360, Width: 640, FPS: 30, Bitrate: 600, FileSize: 12 << 20, Container: "mp4"},
		{FormatID: "137", VideoCodec: "avc1.640028", AudioCodec: entity.CodecNone, Height: 1080, Width: 1920, FPS: 30, Bitrate: 4400, FileSize: 180 << 20, Container: "mp4"},
		{FormatID: "248", VideoCodec: "vp9", AudioCodec: entity.CodecNone, Height: 1080, Width: 1920, FPS: 30, Bitrate: 2600, FileSize: 110 << 20, Container: "webm"},
		{FormatID: "136", VideoCodec: "avc1.4d401f", AudioCodec: entity.CodecNone, Height: 720, Width: 1280, FPS: 30, Bitrate: 2300, Container: "mp4"},
		{FormatID: "140", VideoCodec: entity.CodecNone, AudioCodec: "mp4a.40.2", AudioBitrate: 129.5, Bitrate: 129.5, FileSize: 5 << 20, Container: "m4a"},
		{FormatID: "251", VideoCodec: entity.CodecNone, AudioCodec: "opus", AudioBitrate: 160, Bitrate: 160, Container: "webm"},
	}
}

// NewMock creates a new mock extractor.
func NewMock(log *slog.Logger, opts MockOptions) *Mock {
	if opts.Formats == nil {
		opts.Formats = DefaultMockFormats()
	}

	if opts.Step <= 0 {
		opts.Step = consts.DefaultSimulateStep
	}

	if opts.FileSize <= 0 {
		opts.FileSize = mockFileSize
	}

	return &Mock{
		log:  log.With(slog.String("package", "extractor"), slog.String("backend", consts.ExtractorMock)),
		opts: opts,
	}
}

// Calls returns the recorded invocations in order.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Call(nil), m.calls...)
}

// Downloads returns the recorded download invocations in order.
func (m *Mock) Downloads() []Call {
	var out []Call

	for _, c := range m.Calls() {
		if c.Op == "download" {
			out = append(out, c)
		}
	}

	return out
}

func (m *Mock) record(c Call) {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	m.mu.Unlock()
}

// FetchMetadata returns the configured metadata or one derived from url.
func (m *Mock) FetchMetadata(ctx context.Context, url string) (entity.VideoMetadata, error) {
	m.record(Call{Op: "metadata", URL: url})

	if err := ctx.Err(); err != nil {
		return entity.VideoMetadata{}, err
	}

	if m.opts.MetadataErr != nil {
		return entity.VideoMetadata{}, m.opts.MetadataErr
	}

	if m.opts.Metadata != nil {
		return *m.opts.Metadata, nil
	}

	id := urls.VideoID(url)
	if id == "" {
		id = gen.UUIDv5(consts.ExtractorMock, url)
	}

	return entity.VideoMetadata{
		ID:               id,
		Title:            "Mock Video: " + id,
		DurationSeconds:  212,
		Uploader:         "vidfetch",
		ShortDescription: "Placeholder video served by the mock extractor.",
	}, nil
}

// ListFormats returns the configured formats.
func (m *Mock) ListFormats(ctx context.Context, url string) ([]entity.RawFormat, error) {
	m.record(Call{Op: "formats", URL: url})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if m.opts.ListErr != nil {
		return nil, m.opts.ListErr
	}

	return append([]entity.RawFormat(nil), m.opts.Formats...), nil
}

// Download simulates progress for every stream the selector resolves to and writes placeholder files.
func (m *Mock) Download(ctx context.Context, url string, opts DownloadOptions) (DownloadResult, error) {
	m.record(Call{Op: "download", URL: url, Selector: opts.Selector, Template: opts.OutputTemplate})

	log := m.log.With(slog.String("selector", opts.Selector))

	if err, ok := m.opts.DownloadErrs[opts.Selector]; ok {
		log.InfoContext(ctx, "simulated failure", slog.Any("error", err))

		return DownloadResult{}, err
	}

	streams := m.resolve(opts.Selector)
	if len(streams) == 0 {
		return DownloadResult{}, fmt.Errorf("ERROR: [mock] %s: Requested format is not available", opts.Selector)
	}

	container := streams[0].Container
	for _, pp := range opts.PostProcessors {
		if pp.Kind == PostProcessorConvert && pp.Container != "" {
			container = pp.Container
		}
	}

	final := strings.ReplaceAll(opts.OutputTemplate, "%(ext)s", container)

	for _, s := range streams {
		name := final
		if len(streams) > 1 {
			name = strings.TrimSuffix(final, filepath.Ext(final)) + ".f" + s.FormatID + "." + s.Container
		}

		if err := m.simulateDownload(ctx, name, opts.Progress); err != nil {
			log.InfoContext(ctx, "simulated download interrupted", slog.Any("error", err))

			return DownloadResult{}, err
		}
	}

	if len(streams) > 1 && m.opts.ReportPostProcessing && opts.Progress != nil {
		opts.Progress(Progress{Status: StatusPostProcessing, Filename: final})
	}

	if err := os.WriteFile(final, []byte("vidfetch mock "+opts.Selector+"\n"), 0o644); err != nil { //nolint:gosec
		return DownloadResult{}, fmt.Errorf("write placeholder: %w", err)
	}

	log.InfoContext(ctx, "simulated download done", slog.String("file", final))

	return DownloadResult{Files: []string{final}}, nil
}

// resolve maps a selector such as "137", "bestaudio" or "137+bestaudio/best" to formats.
func (m *Mock) resolve(selector string) []entity.RawFormat {
	first, _, _ := strings.Cut(selector, "/")

	var out []entity.RawFormat

	for part := range strings.SplitSeq(first, "+") {
		switch part {
		case "bestaudio":
			if f, ok := m.bestAudio(); ok {
				out = append(out, f)
			}
		default:
			for _, f := range m.opts.Formats {
				if f.FormatID == part {
					out = append(out, f)

					break
				}
			}
		}
	}

	return out
}

func (m *Mock) bestAudio() (entity.RawFormat, bool) {
	var (
		best  entity.RawFormat
		found bool
	)

	for _, f := range m.opts.Formats {
		if f.IsAudioOnly() && (!found || f.AudioBitrate > best.AudioBitrate) {
			best, found = f, true
		}
	}

	return best, found
}

func (m *Mock) simulateDownload(ctx context.Context, filename string, progressFn ProgressFunc) error {
	ticker := time.NewTicker(m.opts.Step)
	defer ticker.Stop()

	total := m.opts.FileSize

	for step := 1; step <= mockSteps; step++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if progressFn == nil {
			continue
		}

		status := StatusDownloading
		if step == mockSteps {
			status = StatusFinished
		}

		progressFn(Progress{
			Status:          status,
			Filename:        filename,
			DownloadedBytes: total * int64(step) / mockSteps,
			TotalBytes:      total,
		})
	}

	return nil
}
