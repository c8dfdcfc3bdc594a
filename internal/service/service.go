// Package service is the session controller: it validates client input, builds
// quality menus and runs downloads on a bounded worker pool.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"vidfetch/internal/config"
	"vidfetch/internal/entity"
	"vidfetch/internal/errs"
	"vidfetch/internal/extractor"
	"vidfetch/internal/observability"
	"vidfetch/internal/orchestrator"
	"vidfetch/internal/storage"
	"vidfetch/pkg/urls"
)

// MergeTool reports whether streams can be recombined locally.
type MergeTool interface {
	IsAvailable(ctx context.Context) (bool, string)
}

// Session is the entry point for every client: HTTP, CLI and features.
type Session interface {
	// Start launches the worker pool. Workers stop when ctx is done.
	Start(ctx context.Context)
	// Wait blocks until all workers have returned.
	Wait()

	Inspect(ctx context.Context, url string) (entity.VideoMetadata, error)
	ListQualityOptions(ctx context.Context, url string, includeAudioOnly bool) ([]entity.FormatOption, error)
	// StartDownload queues a download and returns its job and live event stream.
	// The stream closes after the terminal event or when ctx is done.
	StartDownload(ctx context.Context, url, formatID string, policy entity.MergePolicy, dir string) (*entity.Job, <-chan entity.ProgressEvent, error)

	Events(ctx context.Context, jobID string) (<-chan entity.ProgressEvent, error)
	GetByID(ctx context.Context, id string) (*entity.Job, error)
	GetAll(ctx context.Context) ([]*entity.Job, error)
	Cancel(ctx context.Context, id string) error

	MergeToolStatus(ctx context.Context) (bool, string)
}

// task is one queued download.
type task struct {
	ctx   context.Context //nolint:containedctx
	jobID string
	req   entity.DownloadRequest
}

type session struct {
	log       *slog.Logger
	cfg       *config.Config
	extractor extractor.Service
	orch      *orchestrator.Orchestrator
	mergeTool MergeTool
	storer    storage.Storer
	metrics   *observability.Metrics

	queue chan task

	cacheMu sync.Mutex
	cache   map[string]formatsEntry // normalized URL : raw formats

	baseMu  sync.RWMutex
	baseCtx context.Context //nolint:containedctx

	wg        sync.WaitGroup
	closed    atomic.Bool
	startOnce sync.Once
	now       func() time.Time
}

var _ Session = (*session)(nil)

// New creates a session controller. Start must be called before downloads run.
func New(
	log *slog.Logger,
	cfg *config.Config,
	ext extractor.Service,
	orch *orchestrator.Orchestrator,
	mergeTool MergeTool,
	storer storage.Storer,
	metrics *observability.Metrics,
) Session {
	return &session{
		log:       log.With(slog.String("package", "service")),
		cfg:       cfg,
		extractor: ext,
		orch:      orch,
		mergeTool: mergeTool,
		storer:    storer,
		metrics:   metrics,
		queue:     make(chan task, max(cfg.Job.QueueSize, 1)),
		cache:     make(map[string]formatsEntry),
		baseCtx:   context.Background(),
		now:       time.Now,
	}
}

func (svc *session) Start(ctx context.Context) {
	svc.startOnce.Do(func() {
		svc.baseMu.Lock()
		svc.baseCtx = ctx
		svc.baseMu.Unlock()

		for i := range max(svc.cfg.Job.Workers, 1) {
			svc.wg.Go(func() { svc.worker(ctx, i) })
		}
	})
}

func (svc *session) Wait() {
	svc.wg.Wait()
}

func (svc *session) base() context.Context {
	svc.baseMu.RLock()
	defer svc.baseMu.RUnlock()

	return svc.baseCtx
}

func (svc *session) worker(ctx context.Context, workerID int) {
	log := svc.log.With(slog.Int("worker_id", workerID))

	for {
		select {
		case t := <-svc.queue:
			svc.process(t)
		case <-ctx.Done():
			svc.closed.Store(true)
			log.InfoContext(ctx, "got ctx done signal", slog.Any("error", ctx.Err()))

			return
		}
	}
}

func (svc *session) process(t task) {
	log := svc.log.With(slog.String("func", "process"), slog.String("job_id", t.jobID))

	defer svc.storer.UnregisterCancelFunc(t.jobID)

	jobCtx, cancel := t.ctx, context.CancelFunc(func() {})
	if svc.cfg.Job.Timeout > 0 {
		jobCtx, cancel = context.WithTimeout(t.ctx, svc.cfg.Job.Timeout)
	}
	defer cancel()

	observe := svc.metrics.JobTimer()
	defer observe()

	if _, err := svc.orch.Execute(jobCtx, t.req, svc.sink(t.jobID)); err != nil {
		log.WarnContext(jobCtx, "job failed", slog.Any("error", err))

		return
	}

	log.DebugContext(jobCtx, "job processed")
}

// validateURL normalizes raw and checks it names a supported video.
func (svc *session) validateURL(raw string) (string, error) {
	u := urls.Normalize(raw)

	if !urls.IsURLValid(u) {
		return "", errs.New(errs.KindInvalidURL, fmt.Sprintf("%q is not a valid URL", raw), nil)
	}

	if !svc.cfg.App.AllowAnyHost && !urls.IsYouTubeVideo(u) {
		return "", errs.New(errs.KindInvalidURL, fmt.Sprintf("%q is not a YouTube video URL", raw), nil)
	}

	return u, nil
}

func (svc *session) Inspect(ctx context.Context, rawURL string) (entity.VideoMetadata, error) {
	u, err := svc.validateURL(rawURL)
	if err != nil {
		return entity.VideoMetadata{}, err
	}

	meta, err := svc.extractor.FetchMetadata(ctx, u)
	if err != nil {
		return entity.VideoMetadata{}, errs.New(errs.KindMetadataUnavailable, "could not fetch video information", err)
	}

	return meta, nil
}

func (svc *session) Events(ctx context.Context, jobID string) (<-chan entity.ProgressEvent, error) {
	return svc.storer.Subscribe(ctx, jobID)
}

func (svc *session) GetByID(ctx context.Context, id string) (*entity.Job, error) {
	return svc.storer.GetJobByID(ctx, id)
}

func (svc *session) GetAll(ctx context.Context) ([]*entity.Job, error) {
	return svc.storer.GetJobs(ctx)
}

func (svc *session) Cancel(ctx context.Context, id string) error {
	return svc.storer.CancelJob(ctx, id)
}

func (svc *session) MergeToolStatus(ctx context.Context) (bool, string) {
	return svc.mergeTool.IsAvailable(ctx)
}
