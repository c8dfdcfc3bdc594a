package storage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/synctest"
	"time"

	"vidfetch/internal/config"
	"vidfetch/internal/entity"
	"vidfetch/internal/errs"
	"vidfetch/internal/observability"
	"vidfetch/internal/storage"
	"vidfetch/pkg/logger"
)

func TestCleanupExpiredJobs(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "clip.mp4")

	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		cfg := &config.Config{Storage: config.Storage{CleanupInterval: time.Minute}}
		storer := storage.New(ctx, logger.Discard(), cfg, observability.New())

		now := time.Now()

		jobs := []*entity.Job{
			{ID: "expired", Status: entity.JobStatusFinished, Outputs: []string{file}, ExpiresAt: now.Add(30 * time.Second)},
			{ID: "fresh", Status: entity.JobStatusError, ExpiresAt: now.Add(time.Hour)},
			{ID: "running", Status: entity.JobStatusDownloading, ExpiresAt: now.Add(time.Second)},
		}

		for _, job := range jobs {
			if err := storer.SetJob(ctx, job); err != nil {
				t.Fatal(err)
			}
		}

		sub, err := storer.Subscribe(ctx, "expired")
		if err != nil {
			t.Fatal(err)
		}

		time.Sleep(time.Minute + time.Second)
		synctest.Wait()

		if _, err := storer.GetJobByID(ctx, "expired"); !errors.Is(err, errs.ErrJobNotFound) {
			t.Errorf("expired job still stored: %v", err)
		}

		for _, id := range []string{"fresh", "running"} {
			if _, err := storer.GetJobByID(ctx, id); err != nil {
				t.Errorf("job %s removed: %v", id, err)
			}
		}

		if _, ok := <-sub; ok {
			t.Error("subscription of a removed job should be closed")
		}
	})

	if _, err := os.Stat(file); err != nil {
		t.Errorf("downloaded file must survive cleanup: %v", err)
	}
}
