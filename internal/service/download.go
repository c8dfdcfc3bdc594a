package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"vidfetch/internal/entity"
	"vidfetch/internal/errs"
	"vidfetch/internal/formats"
	"vidfetch/internal/orchestrator"
	"vidfetch/pkg/calc"
	"vidfetch/pkg/gen"
)

func (svc *session) StartDownload(
	ctx context.Context,
	rawURL, formatID string,
	policy entity.MergePolicy,
	dir string,
) (*entity.Job, <-chan entity.ProgressEvent, error) {
	if svc.closed.Load() {
		return nil, nil, errs.ErrServiceClosed
	}

	u, err := svc.validateURL(rawURL)
	if err != nil {
		return nil, nil, err
	}

	if policy == "" {
		policy = entity.PolicyAutoMerge
	}

	dest, err := svc.resolveDir(dir)
	if err != nil {
		return nil, nil, err
	}

	opt, err := svc.resolveOption(ctx, u, formatID)
	if err != nil {
		return nil, nil, err
	}

	policy = svc.effectivePolicy(ctx, opt, policy)

	now := svc.now()
	job := &entity.Job{
		ID:        gen.ID(),
		URL:       u,
		FormatID:  opt.FormatID,
		Policy:    policy,
		Dir:       dest,
		Status:    entity.JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(svc.cfg.Storage.TTL),
	}

	if err := svc.storer.SetJob(ctx, job); err != nil {
		return nil, nil, fmt.Errorf("store job: %w", err)
	}

	events, err := svc.storer.Subscribe(ctx, job.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe job events: %w", err)
	}

	taskCtx, cancel := context.WithCancel(svc.base())
	svc.storer.RegisterCancelFunc(job.ID, cancel)

	t := task{
		ctx:   taskCtx,
		jobID: job.ID,
		req:   entity.DownloadRequest{URL: u, Option: opt, Policy: policy, Dir: dest},
	}

	select {
	case svc.queue <- t:
	default:
		cancel()
		svc.storer.UnregisterCancelFunc(job.ID)

		// the terminal event closes the job's event log and the subscription opened above
		svc.sink(job.ID).Emit(entity.ProgressEvent{
			Kind:    entity.EventFailure,
			Failure: string(errs.KindNetworkOrExtraction),
			Message: errs.ErrJobQueueFull.Error(),
			At:      svc.now(),
		})

		return nil, nil, fmt.Errorf("%w: %d/%d", errs.ErrJobQueueFull, len(svc.queue), cap(svc.queue))
	}

	svc.metrics.RecordJobCreated()

	svc.log.InfoContext(ctx, "job enqueued", slog.Any("job", job))

	return job, events, nil
}

// resolveDir maps a client supplied folder into the downloads root.
// Absolute paths are used as given, relative ones must stay below the root.
func (svc *session) resolveDir(dir string) (string, error) {
	root := svc.cfg.Dir.Downloads

	switch {
	case dir == "":
		return root, nil
	case filepath.IsAbs(dir):
		return filepath.Clean(dir), nil
	case !filepath.IsLocal(dir):
		return "", errs.New(errs.KindDirectoryError, fmt.Sprintf("%q leaves the downloads folder", dir), errs.ErrInvalidDir)
	default:
		return filepath.Join(root, dir), nil
	}
}

// resolveOption looks formatID up in the full menu of url.
func (svc *session) resolveOption(ctx context.Context, url, formatID string) (entity.FormatOption, error) {
	raw, err := svc.rawFormats(ctx, url)
	if err != nil {
		return entity.FormatOption{}, errs.New(errs.KindNetworkOrExtraction, "could not list formats", err)
	}

	menu := formats.BuildMenu(raw, true)
	if len(menu) == 0 {
		return entity.FormatOption{}, errs.New(errs.KindNoFormatsAvailable, "no downloadable formats found", nil)
	}

	opt, ok := formats.Find(menu, formatID)
	if !ok {
		return entity.FormatOption{}, errs.New(errs.KindFormatNoLongerAvailable,
			fmt.Sprintf("quality %q is not available for this video", formatID), nil)
	}

	return opt, nil
}

// effectivePolicy downgrades auto-merge to keep-separate when no merge tool is installed.
func (svc *session) effectivePolicy(ctx context.Context, opt entity.FormatOption, policy entity.MergePolicy) entity.MergePolicy {
	if !opt.MergeNeeded || policy != entity.PolicyAutoMerge || !svc.cfg.Merge.FallbackSeparate {
		return policy
	}

	if ok, status := svc.mergeTool.IsAvailable(ctx); !ok {
		svc.log.WarnContext(ctx, "merge tool unavailable, keeping streams separate", slog.String("status", status))

		return entity.PolicyKeepSeparate
	}

	return policy
}

// sink records events of a job and keeps its bookkeeping in step.
func (svc *session) sink(jobID string) orchestrator.Sink {
	ctx := context.WithoutCancel(svc.base())

	return orchestrator.SinkFunc(func(ev entity.ProgressEvent) {
		// the job is updated first so subscribers seeing the event also see its effect
		if _, err := svc.storer.UpdateJob(ctx, jobID, func(job *entity.Job) { svc.apply(job, ev) }); err != nil {
			svc.log.WarnContext(ctx, "update job", slog.String("job_id", jobID), slog.Any("error", err))
		}

		if err := svc.storer.AppendEvent(ctx, jobID, ev); err != nil {
			svc.log.WarnContext(ctx, "append event", slog.String("job_id", jobID), slog.Any("error", err))
		}
	})
}

// apply moves a job along with one event.
func (svc *session) apply(job *entity.Job, ev entity.ProgressEvent) {
	if job.Status.Terminal() {
		return
	}

	switch ev.Kind {
	case entity.EventDownloading:
		job.Status = entity.JobStatusDownloading
		job.Progress = calc.Progress(ev.BytesDone, ev.BytesTotal)
	case entity.EventStreamComplete:
		job.Progress = 100
	case entity.EventMergeStarted:
		job.Status = entity.JobStatusMerging
	case entity.EventSuccess:
		job.Status = entity.JobStatusFinished
		job.Progress = 100
		job.Outputs = ev.Outputs
		job.ExpiresAt = ev.At.Add(svc.cfg.Storage.TTL)

		svc.metrics.RecordJobCompleted()
	case entity.EventFailure:
		job.Status = entity.JobStatusError
		if errs.Kind(ev.Failure) == errs.KindCancelled {
			job.Status = entity.JobStatusCancelled
		}

		job.Error = ev.Message
		job.ErrorKind = ev.Failure
		job.ExpiresAt = ev.At.Add(svc.cfg.Storage.TTL)

		svc.metrics.RecordJobFailed(ev.Failure)
	}
}
