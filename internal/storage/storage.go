// Package storage keeps download jobs, their progress event logs and cancel functions in memory.
package storage

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"vidfetch/internal/config"
	"vidfetch/internal/entity"
	"vidfetch/internal/errs"
	"vidfetch/internal/observability"
)

// subscriberBuffer is the channel buffer of one event subscription.
const subscriberBuffer = 16

// Storer defines the interface for storage operations.
type Storer interface {
	SetJob(ctx context.Context, job *entity.Job) error
	GetJobByID(ctx context.Context, id string) (*entity.Job, error)
	GetJobs(ctx context.Context) ([]*entity.Job, error)
	// UpdateJob applies fn to the stored job under the storage lock and returns a copy of the result.
	UpdateJob(ctx context.Context, id string, fn func(job *entity.Job)) (*entity.Job, error)

	// AppendEvent adds ev to the event log of a job. Events after a terminal one are dropped.
	AppendEvent(ctx context.Context, jobID string, ev entity.ProgressEvent) error
	// Subscribe replays the event log of a job and follows it. The channel is closed
	// after the terminal event, when ctx is done, or when the job is removed.
	Subscribe(ctx context.Context, jobID string) (<-chan entity.ProgressEvent, error)

	// CancelJob cancels a job by its ID.
	CancelJob(ctx context.Context, jobID string) error
	// RegisterCancelFunc stores a cancel function for a job.
	RegisterCancelFunc(jobID string, cancelFunc context.CancelFunc)
	// UnregisterCancelFunc removes the cancel function for a job.
	UnregisterCancelFunc(jobID string)

	CleanupExpiredJobs(ctx context.Context, interval time.Duration)
}

type eventLog struct {
	events []entity.ProgressEvent
	closed bool
	// notify is closed and replaced on every append.
	notify chan struct{}
}

type storage struct {
	log     *slog.Logger
	cfg     *config.Config
	metrics *observability.Metrics

	mu     sync.RWMutex
	jobs   map[string]*entity.Job // job ID : job
	events map[string]*eventLog   // job ID : event log

	cancelMu    sync.RWMutex
	cancelFuncs map[string]context.CancelFunc // job ID : cancel func
}

// New creates a new in-memory storage instance and starts its cleanup loop.
func New(ctx context.Context, log *slog.Logger, cfg *config.Config, metrics *observability.Metrics) Storer {
	storage := &storage{
		log:         log.With(slog.String("package", "storage")),
		cfg:         cfg,
		metrics:     metrics,
		jobs:        make(map[string]*entity.Job),
		events:      make(map[string]*eventLog),
		cancelFuncs: make(map[string]context.CancelFunc),
	}

	if cfg.Storage.CleanupInterval > 0 {
		go storage.CleanupExpiredJobs(ctx, cfg.Storage.CleanupInterval)
	}

	return storage
}

func cloneJob(job *entity.Job) *entity.Job {
	c := *job
	c.Outputs = slices.Clone(job.Outputs)

	return &c
}

func (stg *storage) SetJob(ctx context.Context, job *entity.Job) error {
	if job == nil {
		return errs.ErrJobNil
	}

	if job.ID == "" {
		return errs.ErrJobIDEmpty
	}

	stg.mu.Lock()
	defer stg.mu.Unlock()

	stg.jobs[job.ID] = cloneJob(job)
	if _, ok := stg.events[job.ID]; !ok {
		stg.events[job.ID] = &eventLog{notify: make(chan struct{})}
	}

	stg.metrics.SetStoredJobs(len(stg.jobs))

	stg.log.DebugContext(ctx, "job stored", slog.Any("job", job))

	return nil
}

func (stg *storage) GetJobByID(_ context.Context, id string) (*entity.Job, error) {
	stg.mu.RLock()
	defer stg.mu.RUnlock()

	job := stg.jobs[id]
	if job == nil {
		return nil, errs.ErrJobNotFound
	}

	return cloneJob(job), nil
}

// GetJobs returns all jobs, oldest first.
func (stg *storage) GetJobs(_ context.Context) ([]*entity.Job, error) {
	stg.mu.RLock()
	defer stg.mu.RUnlock()

	if len(stg.jobs) == 0 {
		return nil, errs.ErrNoJobs
	}

	jobs := make([]*entity.Job, 0, len(stg.jobs))
	for _, job := range stg.jobs {
		jobs = append(jobs, cloneJob(job))
	}

	slices.SortFunc(jobs, func(a, b *entity.Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return cmp.Compare(a.ID, b.ID)
	})

	return jobs, nil
}

func (stg *storage) UpdateJob(ctx context.Context, id string, fn func(job *entity.Job)) (*entity.Job, error) {
	stg.mu.Lock()
	defer stg.mu.Unlock()

	job := stg.jobs[id]
	if job == nil {
		return nil, errs.ErrJobNotFound
	}

	fn(job)
	job.UpdatedAt = time.Now()

	stg.log.DebugContext(ctx, "job updated", slog.Any("job", job))

	return cloneJob(job), nil
}

func (stg *storage) AppendEvent(ctx context.Context, jobID string, ev entity.ProgressEvent) error {
	stg.mu.Lock()
	defer stg.mu.Unlock()

	lg := stg.events[jobID]
	if lg == nil {
		return errs.ErrJobNotFound
	}

	if lg.closed {
		stg.log.WarnContext(ctx, "event after terminal event dropped", slog.String("job_id", jobID), slog.Any("event", ev))

		return nil
	}

	lg.events = append(lg.events, ev)
	lg.closed = ev.Kind.Terminal()

	close(lg.notify)
	lg.notify = make(chan struct{})

	return nil
}

func (stg *storage) Subscribe(ctx context.Context, jobID string) (<-chan entity.ProgressEvent, error) {
	stg.mu.RLock()
	_, ok := stg.events[jobID]
	stg.mu.RUnlock()

	if !ok {
		return nil, errs.ErrJobNotFound
	}

	out := make(chan entity.ProgressEvent, subscriberBuffer)

	stg.metrics.AddSubscribers(1)

	go func() {
		defer stg.metrics.AddSubscribers(-1)
		defer close(out)

		next := 0

		for {
			stg.mu.RLock()

			lg := stg.events[jobID]
			if lg == nil {
				stg.mu.RUnlock()

				return
			}

			batch := slices.Clone(lg.events[next:])
			closed, wait := lg.closed, lg.notify

			stg.mu.RUnlock()

			for _, ev := range batch {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}

			next += len(batch)

			if closed {
				return
			}

			select {
			case <-wait:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// CancelJob cancels a job by its ID by calling its cancel function.
// The job reaches its cancelled status once the running download reports it.
func (stg *storage) CancelJob(ctx context.Context, jobID string) error {
	stg.mu.RLock()
	job := stg.jobs[jobID]

	var status entity.JobStatus
	if job != nil {
		status = job.Status
	}

	stg.mu.RUnlock()

	if job == nil {
		return errs.ErrJobNotFound
	}

	if status.Terminal() {
		return errs.ErrJobNotCancellable
	}

	stg.cancelMu.RLock()
	cancelFunc := stg.cancelFuncs[jobID]
	stg.cancelMu.RUnlock()

	if cancelFunc == nil {
		stg.log.WarnContext(ctx, "no cancel func registered for job", slog.String("job_id", jobID))

		return errs.ErrJobNotCancellable
	}

	cancelFunc()

	stg.log.InfoContext(ctx, "job cancellation requested", slog.String("job_id", jobID))

	return nil
}

// RegisterCancelFunc stores a cancel function for a job.
func (stg *storage) RegisterCancelFunc(jobID string, cancelFunc context.CancelFunc) {
	stg.cancelMu.Lock()
	defer stg.cancelMu.Unlock()

	stg.cancelFuncs[jobID] = cancelFunc
}

// UnregisterCancelFunc removes the cancel function for a job.
func (stg *storage) UnregisterCancelFunc(jobID string) {
	stg.cancelMu.Lock()
	defer stg.cancelMu.Unlock()

	delete(stg.cancelFuncs, jobID)
}
