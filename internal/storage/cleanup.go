package storage

import (
	"context"
	"log/slog"
	"time"
)

// CleanupExpiredJobs removes expired job records every interval until ctx is done.
// Downloaded files belong to the user and are never touched.
func (stg *storage) CleanupExpiredJobs(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := stg.log.With(slog.String("action", "cleanup_expired_jobs"), slog.Duration("interval", interval))

	for {
		select {
		case <-ticker.C:
			stg.performCleanup(ctx)
		case <-ctx.Done():
			log.Info("cleanup expired jobs stopped")

			return
		}
	}
}

func (stg *storage) performCleanup(ctx context.Context) int {
	log := stg.log
	now := time.Now()

	stg.mu.Lock()
	defer stg.mu.Unlock()

	expired := stg.getExpiredJobs(now)
	if len(expired) == 0 {
		log.DebugContext(ctx, "no expired jobs found to clean up")

		return 0
	}

	for _, id := range expired {
		delete(stg.jobs, id)

		if lg := stg.events[id]; lg != nil {
			// wake subscribers so they notice the removal
			close(lg.notify)
			delete(stg.events, id)
		}
	}

	stg.metrics.RecordCleanup(len(expired))
	stg.metrics.SetStoredJobs(len(stg.jobs))

	log.InfoContext(ctx, "expired jobs removed", slog.Int("count", len(expired)))

	return len(expired)
}

// getExpiredJobs returns the IDs of finished jobs past their expiry. Running jobs never expire.
func (stg *storage) getExpiredJobs(now time.Time) []string {
	var expired []string

	for id, job := range stg.jobs {
		if job.Status.Terminal() && !job.ExpiresAt.IsZero() && job.ExpiresAt.Before(now) {
			expired = append(expired, id)
		}
	}

	return expired
}
