// Package orchestrator turns one chosen format option into files on disk.
//
// A complete option is a single download. A video-only option is either
// downloaded together with the best audio and recombined (auto-merge), or
// downloaded as two files (keep-separate). Every download reports a stream of
// progress events that ends with exactly one success or failure.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vidfetch/internal/consts"
	"vidfetch/internal/entity"
	"vidfetch/internal/errs"
	"vidfetch/internal/extractor"
	"vidfetch/internal/observability"
	"vidfetch/pkg/filename"
)

// Download modes, used as metric labels.
const (
	ModeSingle       = "single"
	ModeAutoMerge    = "auto-merge"
	ModeKeepSeparate = "keep-separate"
)

const (
	resultSuccess = "success"
	// fallbackAudioExt names an audio file when the backend did not report one.
	fallbackAudioExt = "m4a"
)

// Options tune the orchestrator.
type Options struct {
	// ParallelStreams downloads the two streams of keep-separate concurrently.
	ParallelStreams bool
	// MergeContainer is the container of auto-merged files.
	MergeContainer string
}

// Orchestrator executes download requests against an extraction service.
type Orchestrator struct {
	log     *slog.Logger
	svc     extractor.Service
	metrics *observability.Metrics
	opts    Options
	now     func() time.Time
}

// New creates a new orchestrator.
func New(log *slog.Logger, svc extractor.Service, metrics *observability.Metrics, opts Options) *Orchestrator {
	if opts.MergeContainer == "" {
		opts.MergeContainer = consts.DefaultMergeContainer
	}

	return &Orchestrator{
		log:     log.With(slog.String("package", "orchestrator")),
		svc:     svc,
		metrics: metrics,
		opts:    opts,
		now:     time.Now,
	}
}

// Mode returns the download mode req runs in.
func Mode(req entity.DownloadRequest) string {
	switch {
	case !req.Option.MergeNeeded:
		return ModeSingle
	case req.Policy == entity.PolicyKeepSeparate:
		return ModeKeepSeparate
	default:
		return ModeAutoMerge
	}
}

// stream is one backend call of a download.
type stream struct {
	label      string
	selector   string
	template   string
	fallback   string
	postProcs  []extractor.PostProcessor
	mergeAfter bool
}

// Execute runs req to completion, reporting to sink. It returns the produced
// files, or an *errs.Error whose Kind matches the failure event sent to sink.
func (o *Orchestrator) Execute(ctx context.Context, req entity.DownloadRequest, sink Sink) ([]string, error) {
	log := o.log.With(slog.Any("request", req))
	em := newEmitter(sink, o.now)
	mode := Mode(req)

	log.InfoContext(ctx, "download started", slog.String("mode", mode))

	outputs, err := o.execute(ctx, log, req, em)
	if err != nil {
		failure := Classify(ctx, err)
		em.failure(failure)

		o.metrics.RecordDownload(mode, string(failure.Kind))
		log.ErrorContext(ctx, "download failed", slog.String("kind", string(failure.Kind)), slog.Any("error", err))

		return nil, failure
	}

	em.success(outputs)

	o.metrics.RecordDownload(mode, resultSuccess)
	log.InfoContext(ctx, "download finished", slog.Any("outputs", outputs))

	return outputs, nil
}

func (o *Orchestrator) execute(ctx context.Context, log *slog.Logger, req entity.DownloadRequest, em *emitter) ([]string, error) {
	// a job cancelled while queued must not touch the filesystem
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := ensureDir(req.Dir); err != nil {
		return nil, err
	}

	base, err := o.baseName(ctx, req)
	if err != nil {
		return nil, err
	}

	prefix := filepath.Join(req.Dir, base)
	opt := req.Option

	log.DebugContext(ctx, "output prefix resolved", slog.String("prefix", prefix))

	switch Mode(req) {
	case ModeSingle:
		return o.run(ctx, req.URL, em, stream{
			label:    consts.StreamFile,
			selector: opt.FormatID,
			template: prefix + ".%(ext)s",
			fallback: containerOr(opt.Container, consts.DefaultMergeContainer),
		})
	case ModeKeepSeparate:
		audio := opt.PairedAudioFormatID
		if audio == "" {
			audio = "bestaudio"
		}

		streams := []stream{
			{
				label:    consts.StreamVideo,
				selector: opt.FormatID,
				template: prefix + "_video.%(ext)s",
				fallback: containerOr(opt.Container, consts.DefaultMergeContainer),
			},
			{
				label:    consts.StreamAudio,
				selector: audio,
				template: prefix + "_audio.%(ext)s",
				fallback: fallbackAudioExt,
			},
		}

		if o.opts.ParallelStreams {
			return o.runParallel(ctx, req.URL, em, streams)
		}

		return o.runSequential(ctx, req.URL, em, streams)
	default:
		return o.run(ctx, req.URL, em, stream{
			label:      consts.StreamMerged,
			selector:   opt.FormatID + "+bestaudio/best",
			template:   prefix + "_merged.%(ext)s",
			fallback:   o.opts.MergeContainer,
			postProcs:  []extractor.PostProcessor{extractor.ConvertContainer(o.opts.MergeContainer)},
			mergeAfter: true,
		})
	}
}

// baseName sanitizes the requested base name, falling back to the video title.
func (o *Orchestrator) baseName(ctx context.Context, req entity.DownloadRequest) (string, error) {
	if req.BaseName != "" {
		return filename.Sanitize(req.BaseName), nil
	}

	meta, err := o.svc.FetchMetadata(ctx, req.URL)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		return "", errs.New(errs.KindMetadataUnavailable, "could not read the video title", err)
	}

	return filename.Sanitize(meta.Title), nil
}

func (o *Orchestrator) run(ctx context.Context, url string, em *emitter, s stream) ([]string, error) {
	progress := func(p extractor.Progress) {
		if s.mergeAfter && p.Status == extractor.StatusPostProcessing {
			em.mergeStarted(s.label)

			return
		}

		em.progress(s.label, p)
	}

	res, err := o.svc.Download(ctx, url, extractor.DownloadOptions{
		Selector:       s.selector,
		OutputTemplate: s.template,
		Progress:       progress,
		PostProcessors: s.postProcs,
	})
	if err != nil {
		return nil, fmt.Errorf("%s stream: %w", s.label, err)
	}

	if s.mergeAfter {
		em.mergeStarted(s.label)
	}

	o.metrics.RecordDownloadBytes(em.streamComplete(s.label))

	files := res.Files
	if len(files) == 0 {
		files = []string{strings.ReplaceAll(s.template, "%(ext)s", s.fallback)}
	}

	return files, nil
}

// runSequential stops at the first failing stream. Files of earlier streams stay on disk.
func (o *Orchestrator) runSequential(ctx context.Context, url string, em *emitter, streams []stream) ([]string, error) {
	var outputs []string

	for _, s := range streams {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		files, err := o.run(ctx, url, em, s)
		if err != nil {
			return nil, err
		}

		outputs = append(outputs, files...)
	}

	return outputs, nil
}

// runParallel cancels the other streams once one fails and reports the first failure.
func (o *Orchestrator) runParallel(ctx context.Context, url string, em *emitter, streams []stream) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		results  = make([][]string, len(streams))
	)

	for i, s := range streams {
		wg.Go(func() {
			files, err := o.run(ctx, url, em, s)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				mu.Unlock()

				return
			}

			results[i] = files
		})
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	var outputs []string
	for _, files := range results {
		outputs = append(outputs, files...)
	}

	return outputs, nil
}

func containerOr(container, fallback string) string {
	if container == "" {
		return fallback
	}

	return container
}

// ensureDir creates dir and checks it accepts new files.
func ensureDir(dir string) error {
	if dir == "" {
		return errs.New(errs.KindDirectoryError, "no destination directory given", errs.ErrInvalidDir)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec
		return errs.New(errs.KindDirectoryError, fmt.Sprintf("cannot create directory %s", dir), err)
	}

	f, err := os.CreateTemp(dir, ".vidfetch-probe-*")
	if err != nil {
		return errs.New(errs.KindDirectoryError, fmt.Sprintf("directory %s is not writable", dir), err)
	}

	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	return nil
}

// Classify maps a download error to its failure kind.
// Errors that already carry a kind are returned unchanged.
func Classify(ctx context.Context, err error) *errs.Error {
	var classified *errs.Error
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return errs.New(errs.KindCancelled, "download cancelled", err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return errs.New(errs.KindNetworkOrExtraction, "download timed out", err)
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "requested format not available"),
		strings.Contains(msg, "requested format is not available"):
		return errs.New(errs.KindFormatNoLongerAvailable,
			"the selected quality is no longer available, refresh the list and pick another one", err)
	case strings.Contains(msg, "video unavailable"):
		return errs.New(errs.KindVideoUnavailable, "the video is unavailable", err)
	case strings.Contains(msg, "ffmpeg"):
		return errs.New(errs.KindMergeToolError, "recombining video and audio failed", err)
	default:
		return errs.New(errs.KindNetworkOrExtraction, err.Error(), err)
	}
}
