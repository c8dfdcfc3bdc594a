package httprouter_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vidfetch/internal/config"
	"vidfetch/internal/depmanager"
	"vidfetch/internal/entity"
	"vidfetch/internal/errs"
	"vidfetch/internal/extractor"
	httprouter "vidfetch/internal/infrastructure/delivery/http"
	"vidfetch/internal/observability"
	"vidfetch/internal/orchestrator"
	"vidfetch/internal/service"
	"vidfetch/internal/storage"
	"vidfetch/pkg/logger"
)

const testURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

type fakeMergeTool struct{}

func (fakeMergeTool) IsAvailable(context.Context) (bool, string) { return true, "ffmpeg version 7.1" }

type fakeBins []depmanager.Binary

func (f fakeBins) Binaries() []depmanager.Binary { return f }

type envelope struct {
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Kind    string          `json:"kind"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, opts extractor.MockOptions) *httptest.Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	cfg := &config.Config{
		Job:       config.Job{Workers: 1, Timeout: time.Minute, QueueSize: 4},
		Storage:   config.Storage{TTL: time.Hour},
		HTTP:      config.HTTP{HandlerTimeout: 5 * time.Second},
		Dir:       config.Dir{Downloads: t.TempDir()},
		Extractor: config.Extractor{FormatsCacheTTL: time.Minute},
		Merge:     config.Merge{Container: "mp4", FallbackSeparate: true},
	}

	log := logger.Discard()
	metrics := observability.New()
	mock := extractor.NewMock(log, opts)
	orch := orchestrator.New(log, mock, metrics, orchestrator.Options{MergeContainer: cfg.Merge.Container})
	storer := storage.New(ctx, log, cfg, metrics)

	svc := service.New(log, cfg, mock, orch, fakeMergeTool{}, storer, metrics)
	svc.Start(ctx)

	bins := fakeBins{{Name: depmanager.BinaryYTdlp, Path: "/usr/bin/yt-dlp", Required: true}}
	srv := httptest.NewServer(httprouter.New(log, cfg, svc, metrics, bins))

	t.Cleanup(func() {
		srv.Close()
		cancel()
		svc.Wait()
	})

	return srv
}

func decode(t *testing.T, resp *http.Response) envelope {
	t.Helper()

	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	return env
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}

	return resp
}

func TestReadyz(t *testing.T) {
	srv := newTestServer(t, extractor.MockOptions{})

	resp := do(t, http.MethodGet, srv.URL+"/v1/readyz", "")
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("got %d %q, want 200 ok", resp.StatusCode, body)
	}

	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestSystem(t *testing.T) {
	srv := newTestServer(t, extractor.MockOptions{})

	env := decode(t, do(t, http.MethodGet, srv.URL+"/v1/system", ""))

	var sys httprouter.System
	if err := json.Unmarshal(env.Data, &sys); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !sys.MergeToolAvailable || len(sys.Binaries) != 1 {
		t.Errorf("unexpected system status: %+v", sys)
	}
}

func TestListFormats(t *testing.T) {
	srv := newTestServer(t, extractor.MockOptions{})

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantIDs    []string
		wantKind   string
	}{
		{name: "video options", query: "?url=" + testURL, wantStatus: http.StatusOK, wantIDs: []string{"18", "137", "136"}},
		{name: "with audio", query: "?all=true&url=" + testURL, wantStatus: http.StatusOK, wantIDs: []string{"18", "137", "136", "*", "*"}},
		{name: "missing url", query: "", wantStatus: http.StatusBadRequest, wantKind: string(errs.KindInvalidURL)},
		{name: "bad flag", query: "?all=maybe&url=" + testURL, wantStatus: http.StatusBadRequest},
		{name: "not a video", query: "?url=https://example.com/", wantStatus: http.StatusBadRequest, wantKind: string(errs.KindInvalidURL)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, http.MethodGet, srv.URL+"/v1/formats"+tc.query, "")
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("got status %d, want %d", resp.StatusCode, tc.wantStatus)
			}

			env := decode(t, resp)
			if env.Kind != tc.wantKind {
				t.Errorf("got kind %q, want %q", env.Kind, tc.wantKind)
			}

			if tc.wantIDs == nil {
				return
			}

			var menu []entity.FormatOption
			if err := json.Unmarshal(env.Data, &menu); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}

			if len(menu) != len(tc.wantIDs) {
				t.Fatalf("got %d options, want %d", len(menu), len(tc.wantIDs))
			}

			for i, o := range menu {
				if tc.wantIDs[i] == "*" {
					if o.RankClass != entity.RankAudioOnly {
						t.Errorf("option %d: got rank %v, want audio-only", i, o.RankClass)
					}

					continue
				}

				if o.FormatID != tc.wantIDs[i] {
					t.Errorf("option %d: got %s, want %s", i, o.FormatID, tc.wantIDs[i])
				}
			}
		})
	}
}

func TestListFormatsFailureKeepsEmptyMenu(t *testing.T) {
	srv := newTestServer(t, extractor.MockOptions{ListErr: io.ErrUnexpectedEOF})

	resp := do(t, http.MethodGet, srv.URL+"/v1/formats?url="+testURL, "")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("got status %d, want 502", resp.StatusCode)
	}

	env := decode(t, resp)
	if string(env.Data) != "[]" {
		t.Errorf("got data %s, want []", env.Data)
	}

	if env.Kind != string(errs.KindNetworkOrExtraction) {
		t.Errorf("got kind %q", env.Kind)
	}
}

func TestGetVideo(t *testing.T) {
	srv := newTestServer(t, extractor.MockOptions{})

	env := decode(t, do(t, http.MethodGet, srv.URL+"/v1/videos?url="+testURL, ""))

	var meta entity.VideoMetadata
	if err := json.Unmarshal(env.Data, &meta); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if meta.Title != "Mock Video: dQw4w9WgXcQ" {
		t.Errorf("got title %q", meta.Title)
	}
}

func TestCreateDownloadValidation(t *testing.T) {
	srv := newTestServer(t, extractor.MockOptions{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "not json", body: "{", wantStatus: http.StatusBadRequest},
		{name: "bad url", body: `{"url":"nope","formatId":"18"}`, wantStatus: http.StatusBadRequest},
		{name: "no format", body: `{"url":"` + testURL + `"}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "bad policy", body: `{"url":"` + testURL + `","formatId":"18","mergePolicy":"glue"}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "escaping dir", body: `{"url":"` + testURL + `","formatId":"18","dir":"../up"}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "absolute dir", body: `{"url":"` + testURL + `","formatId":"18","dir":"/etc"}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "unknown format", body: `{"url":"` + testURL + `","formatId":"999"}`, wantStatus: http.StatusConflict},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, srv.URL+"/v1/downloads", tc.body)
			resp.Body.Close()

			if resp.StatusCode != tc.wantStatus {
				t.Errorf("got status %d, want %d", resp.StatusCode, tc.wantStatus)
			}
		})
	}
}

func TestDownloadLifecycle(t *testing.T) {
	srv := newTestServer(t, extractor.MockOptions{})

	resp := do(t, http.MethodGet, srv.URL+"/v1/downloads", "")
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("got status %d for an empty list, want 204", resp.StatusCode)
	}

	body := `{"url":"` + testURL + `","formatId":"137","mergePolicy":"keep-separate","dir":"clips"}`

	resp = do(t, http.MethodPost, srv.URL+"/v1/downloads", body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("got status %d, want 202", resp.StatusCode)
	}

	var job entity.Job
	if err := json.Unmarshal(decode(t, resp).Data, &job); err != nil {
		t.Fatalf("unmarshal job: %v", err)
	}

	if job.Policy != entity.PolicyKeepSeparate || job.Status != entity.JobStatusQueued {
		t.Fatalf("unexpected job: %+v", job)
	}

	kinds := readEvents(t, srv.URL+"/v1/downloads/"+job.ID+"/events")
	if len(kinds) == 0 || kinds[len(kinds)-1] != string(entity.EventSuccess) {
		t.Fatalf("expected the stream to end with success, got %v", kinds)
	}

	env := decode(t, do(t, http.MethodGet, srv.URL+"/v1/downloads/"+job.ID, ""))
	if err := json.Unmarshal(env.Data, &job); err != nil {
		t.Fatalf("unmarshal job: %v", err)
	}

	if job.Status != entity.JobStatusFinished || len(job.Outputs) != 2 {
		t.Errorf("unexpected finished job: %+v", job)
	}

	resp = do(t, http.MethodDelete, srv.URL+"/v1/downloads/"+job.ID, "")
	resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("got status %d cancelling a finished job, want 409", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, srv.URL+"/v1/downloads", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("got status %d listing jobs, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnknownDownload(t *testing.T) {
	srv := newTestServer(t, extractor.MockOptions{})

	for _, path := range []string{"/v1/downloads/nope", "/v1/downloads/nope/events"} {
		resp := do(t, http.MethodGet, srv.URL+path, "")
		resp.Body.Close()

		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: got status %d, want 404", path, resp.StatusCode)
		}
	}

	resp := do(t, http.MethodDelete, srv.URL+"/v1/downloads/nope", "")
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("got status %d cancelling an unknown job, want 404", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, extractor.MockOptions{})

	resp := do(t, http.MethodGet, srv.URL+"/v1/readyz", "")
	resp.Body.Close()

	resp = do(t, http.MethodGet, srv.URL+"/metrics", "")
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `path="GET /v1/readyz"`) {
		t.Errorf("expected readyz requests in metrics output")
	}
}

// readEvents collects the event names of a server-sent event stream until it closes.
func readEvents(t *testing.T, url string) []string {
	t.Helper()

	resp := do(t, http.MethodGet, url, "")
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("got content type %q", ct)
	}

	var kinds []string

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			kinds = append(kinds, name)
		}
	}

	return kinds
}
