package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"vidfetch/internal/config"
	"vidfetch/internal/depmanager"
	"vidfetch/internal/extractor"
	"vidfetch/internal/mergetool"
	"vidfetch/internal/observability"
	"vidfetch/internal/orchestrator"
	"vidfetch/internal/proxymgr"
	"vidfetch/internal/service"
	"vidfetch/internal/storage"
)

// app is the fully wired process shared by serve and the one-shot commands.
type app struct {
	metrics   *observability.Metrics
	deps      *depmanager.Manager
	mergeTool *mergetool.FFmpeg
	svc       service.Session
}

// workerGrace bounds how long an interrupted command waits for running downloads to stop.
const workerGrace = 5 * time.Second

// waitWorkers blocks until the session workers have returned, at most grace.
// It reports whether they did.
func waitWorkers(log *slog.Logger, svc service.Session, grace time.Duration) bool {
	done := make(chan struct{})

	go func() {
		defer close(done)
		svc.Wait()
	}()

	select {
	case <-done:
		return true
	case <-time.After(grace):
		log.Warn("workers still running, exiting anyway", slog.Duration("grace", grace))

		return false
	}
}

// newApp resolves the external tools and starts the session workers.
// Workers stop when ctx is done.
func newApp(ctx context.Context, log *slog.Logger, cfg *config.Config) (*app, error) {
	metrics := observability.New()
	deps := depmanager.New(log, cfg)

	log.DebugContext(ctx, "resolving yt-dlp, ffmpeg and deno. it may take some time...")

	if err := deps.Start(ctx); err != nil {
		return nil, fmt.Errorf("resolve tools: %w", err)
	}

	var proxyMgr *proxymgr.Manager
	if len(cfg.Proxy.Proxies) > 0 {
		proxyMgr = proxymgr.New(log, cfg, metrics)
		go proxyMgr.StartHealthChecker(ctx)

		log.InfoContext(ctx, "proxy manager initialized", slog.Int("proxy_count", len(cfg.Proxy.Proxies)))
	}

	ext, err := extractor.New(log, cfg, proxyMgr, metrics)
	if err != nil {
		return nil, fmt.Errorf("extractor: %w", err)
	}

	ffmpegPath := cfg.Merge.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = deps.GetInstalledPath(depmanager.BinaryFFmpeg)
	}

	mergeTool := mergetool.New(log, mergetool.WithPath(ffmpegPath), mergetool.WithMetrics(metrics))

	orch := orchestrator.New(log, ext, metrics, orchestrator.Options{
		ParallelStreams: cfg.Merge.ParallelStreams,
		MergeContainer:  cfg.Merge.Container,
	})

	storer := storage.New(ctx, log, cfg, metrics)

	svc := service.New(log, cfg, ext, orch, mergeTool, storer, metrics)
	svc.Start(ctx)

	return &app{
		metrics:   metrics,
		deps:      deps,
		mergeTool: mergeTool,
		svc:       svc,
	}, nil
}
