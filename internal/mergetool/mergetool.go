// Package mergetool probes the local ffmpeg binary that recombines video and audio streams.
// The binary itself is driven by yt-dlp; vidfetch only checks that it is there.
package mergetool

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"vidfetch/internal/consts"
	"vidfetch/internal/observability"
)

// Probe results shown to users when the tool is missing or broken.
const (
	StatusNotFound   = "FFmpeg not found"
	StatusNotWorking = "FFmpeg not working properly"
)

// CommandRunner runs an external command and returns its combined output.
type CommandRunner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecCommandRunner is the production CommandRunner built on os/exec.
type ExecCommandRunner struct{}

// Output executes a command and returns its stdout and stderr.
func (ExecCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// FFmpeg probes an ffmpeg binary.
type FFmpeg struct {
	log     *slog.Logger
	path    string
	timeout time.Duration
	runner  CommandRunner
	metrics *observability.Metrics
}

// Option configures FFmpeg.
type Option func(*FFmpeg)

// WithPath sets a custom ffmpeg executable path.
func WithPath(path string) Option {
	return func(f *FFmpeg) {
		if path != "" {
			f.path = path
		}
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func WithCommandRunner(runner CommandRunner) Option {
	return func(f *FFmpeg) {
		f.runner = runner
	}
}

// WithMetrics publishes probe results.
func WithMetrics(m *observability.Metrics) Option {
	return func(f *FFmpeg) {
		f.metrics = m
	}
}

// New creates a new ffmpeg probe.
func New(log *slog.Logger, opts ...Option) *FFmpeg {
	f := &FFmpeg{
		log:     log.With(slog.String("package", "mergetool")),
		path:    "ffmpeg",
		timeout: consts.DefaultProbeTimeout,
		runner:  ExecCommandRunner{},
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// IsAvailable runs "ffmpeg -version" and returns the first line of its output.
func (f *FFmpeg) IsAvailable(ctx context.Context) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	ok, version := f.probe(ctx)

	if f.metrics != nil {
		f.metrics.SetMergeToolAvailable(ok)
	}

	f.log.DebugContext(ctx, "merge tool probed", slog.Bool("available", ok), slog.String("version", version))

	return ok, version
}

func (f *FFmpeg) probe(ctx context.Context) (bool, string) {
	out, err := f.runner.Output(ctx, f.path, "-version")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return false, StatusNotFound
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, StatusNotWorking
		}

		return false, StatusNotFound
	}

	first, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	first = strings.TrimSpace(first)

	if first == "" {
		return false, StatusNotWorking
	}

	return true, first
}
