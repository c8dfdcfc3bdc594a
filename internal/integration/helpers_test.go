//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidfetch/internal/config"
	"vidfetch/internal/consts"
	"vidfetch/internal/depmanager"
	"vidfetch/internal/entity"
	"vidfetch/internal/extractor"
	httprouter "vidfetch/internal/infrastructure/delivery/http"
	"vidfetch/internal/mergetool"
	"vidfetch/internal/observability"
	"vidfetch/internal/orchestrator"
	"vidfetch/internal/service"
	"vidfetch/internal/storage"
	"vidfetch/pkg/logger"
)

const videoURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

type apiResponse struct {
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Kind    string          `json:"kind"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	cfg    *config.Config
	mock   *extractor.Mock
	client *http.Client
	url    string
}

type fixtureOptions struct {
	mock      extractor.MockOptions
	mutateCfg func(cfg *config.Config)
	// noWorkers leaves the queue undrained
	noWorkers bool
}

// newFixture wires the same stack as the serve command, with the mock
// extractor in place of yt-dlp. Configuration comes from the environment.
func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()

	baseDir := t.TempDir()

	t.Setenv("VIDFETCH_DIR_DOWNLOAD", filepath.Join(baseDir, "downloads"))
	t.Setenv("VIDFETCH_DIR_CACHE", filepath.Join(baseDir, "cache"))
	t.Setenv("VIDFETCH_DEPMANAGER_BINS_DIR", filepath.Join(baseDir, "bins"))
	t.Setenv("VIDFETCH_DEPMANAGER_USE_SYSTEM_BINARIES", "true")
	t.Setenv("VIDFETCH_EXTRACTOR_BACKEND", consts.ExtractorMock)
	t.Setenv("VIDFETCH_JOB_TIMEOUT", "10s")

	cfg, err := config.New()
	if err != nil {
		t.Fatalf("config new: %v", err)
	}

	if opts.mutateCfg != nil {
		opts.mutateCfg(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())

	log := logger.Discard()
	metrics := observability.New()

	deps := depmanager.New(log, cfg)
	if err := deps.Start(ctx); err != nil {
		t.Fatalf("depmanager start: %v", err)
	}

	mock := extractor.NewMock(log, opts.mock)
	mergeTool := mergetool.New(log, mergetool.WithPath(cfg.Merge.FFmpegPath), mergetool.WithMetrics(metrics))
	orch := orchestrator.New(log, mock, metrics, orchestrator.Options{
		ParallelStreams: cfg.Merge.ParallelStreams,
		MergeContainer:  cfg.Merge.Container,
	})
	storer := storage.New(ctx, log, cfg, metrics)

	svc := service.New(log, cfg, mock, orch, mergeTool, storer, metrics)
	if !opts.noWorkers {
		svc.Start(ctx)
	}

	server := httptest.NewServer(httprouter.New(log, cfg, svc, metrics, deps))
	client := server.Client()
	client.Timeout = 5 * time.Second

	t.Cleanup(func() {
		server.Close()
		cancel()
		svc.Wait()
	})

	return &fixture{cfg: cfg, mock: mock, client: client, url: server.URL}
}

func (fx *fixture) do(t *testing.T, method, path, body string) (int, apiResponse) {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), method, fx.url+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := fx.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var out apiResponse
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}

	return resp.StatusCode, out
}

func (fx *fixture) postDownload(t *testing.T, formatID, policy, dir string) (int, apiResponse) {
	t.Helper()

	body, err := json.Marshal(map[string]string{
		"url":         videoURL,
		"formatId":    formatID,
		"mergePolicy": policy,
		"dir":         dir,
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	return fx.do(t, http.MethodPost, "/v1/downloads", string(body))
}

func decodeJob(t *testing.T, resp apiResponse) entity.Job {
	t.Helper()

	var job entity.Job
	if err := json.Unmarshal(resp.Data, &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}

	if job.ID == "" {
		t.Fatalf("expected job id in response")
	}

	return job
}

func (fx *fixture) waitForJobStatus(t *testing.T, jobID string, timeout time.Duration, want entity.JobStatus) entity.Job {
	t.Helper()

	deadline := time.Now().Add(timeout)

	var last entity.Job

	for time.Now().Before(deadline) {
		code, resp := fx.do(t, http.MethodGet, "/v1/downloads/"+jobID, "")
		if code != http.StatusOK {
			t.Fatalf("get job status %d", code)
		}

		last = decodeJob(t, resp)
		if last.Status == want {
			return last
		}

		time.Sleep(20 * time.Millisecond)
	}

	t.Fatalf("job %s did not reach %q, last status %q", jobID, want, last.Status)

	return last
}
