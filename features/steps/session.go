//go:build integration

package steps

import (
	"context"
	"time"

	"vidfetch/internal/config"
	"vidfetch/internal/entity"
	"vidfetch/internal/extractor"
	"vidfetch/internal/observability"
	"vidfetch/internal/orchestrator"
	"vidfetch/internal/service"
	"vidfetch/internal/storage"
	"vidfetch/pkg/logger"
)

// stepTimeout bounds every call a step makes into the session.
const stepTimeout = 10 * time.Second

type availableMergeTool struct{}

func (availableMergeTool) IsAvailable(context.Context) (bool, string) {
	return true, "ffmpeg version 7.1"
}

// session is a running session controller backed by the mock extractor.
type session struct {
	svc    service.Session
	mock   *extractor.Mock
	cancel context.CancelFunc
}

func newSession(opts extractor.MockOptions, downloads string) *session {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := &config.Config{
		Job:       config.Job{Workers: 1, Timeout: stepTimeout, QueueSize: 4},
		Storage:   config.Storage{TTL: time.Hour},
		Dir:       config.Dir{Downloads: downloads},
		Extractor: config.Extractor{FormatsCacheTTL: time.Minute},
		Merge:     config.Merge{Container: "mp4", FallbackSeparate: true},
	}

	log := logger.Discard()
	metrics := observability.New()
	mock := extractor.NewMock(log, opts)
	orch := orchestrator.New(log, mock, metrics, orchestrator.Options{MergeContainer: cfg.Merge.Container})
	storer := storage.New(ctx, log, cfg, metrics)

	svc := service.New(log, cfg, mock, orch, availableMergeTool{}, storer, metrics)
	svc.Start(ctx)

	return &session{svc: svc, mock: mock, cancel: cancel}
}

func (s *session) close() {
	if s == nil {
		return
	}

	s.cancel()
	s.svc.Wait()
}

// collect reads events until the stream closes.
func collect(events <-chan entity.ProgressEvent) []entity.ProgressEvent {
	var out []entity.ProgressEvent
	for ev := range events {
		out = append(out, ev)
	}

	return out
}
