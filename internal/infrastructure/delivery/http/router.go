package httprouter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"vidfetch/internal/config"
	"vidfetch/internal/consts"
	"vidfetch/internal/depmanager"
	"vidfetch/internal/entity"
	"vidfetch/internal/errs"
	"vidfetch/internal/infrastructure/delivery/http/middleware"
	"vidfetch/internal/infrastructure/delivery/http/request"
	"vidfetch/internal/infrastructure/delivery/http/response"
	"vidfetch/internal/observability"
	"vidfetch/internal/service"
)

// BinaryLister reports the external tools the process resolved.
type BinaryLister interface {
	Binaries() []depmanager.Binary
}

// System is the body of GET /v1/system.
type System struct {
	MergeToolAvailable bool                `json:"mergeToolAvailable"`
	MergeToolStatus    string              `json:"mergeToolStatus"`
	Binaries           []depmanager.Binary `json:"binaries,omitempty"`
}

type Router struct {
	*http.ServeMux
	log         *slog.Logger
	globalChain []func(http.Handler) http.Handler
	routeChain  []func(http.Handler) http.Handler
	isSubRouter bool
	svc         service.Session
	metrics     *observability.Metrics
	bins        BinaryLister
	timeout     time.Duration
}

// New builds the API router. bins may be nil.
func New(log *slog.Logger, cfg *config.Config, svc service.Session, metrics *observability.Metrics, bins BinaryLister) *Router {
	r := &Router{
		ServeMux: http.NewServeMux(),
		log:      log.With(slog.String("package", "httprouter")),
		svc:      svc,
		metrics:  metrics,
		bins:     bins,
		timeout:  cmpDuration(cfg.HTTP.HandlerTimeout, consts.DefaultHandlerTimeout),
	}

	r.SetGlobalMiddlewares()
	r.SetRoutes()

	return r
}

func cmpDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}

	return d
}

func (r *Router) Use(middleware ...func(http.Handler) http.Handler) {
	if r.isSubRouter {
		r.routeChain = append(r.routeChain, middleware...)
	} else {
		r.globalChain = append(r.globalChain, middleware...)
	}
}

func (r *Router) Group(fn func(r *Router)) {
	subRouter := &Router{
		isSubRouter: true,
		routeChain:  slices.Clone(r.routeChain),
		ServeMux:    r.ServeMux,
	}

	fn(subRouter)
}

func (r *Router) HandleFunc(pattern string, h http.HandlerFunc) {
	r.Handle(pattern, h)
}

func (r *Router) Handle(pattern string, h http.Handler) {
	for _, middleware := range slices.Backward(r.routeChain) {
		h = middleware(h)
	}
	r.ServeMux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var h http.Handler = r.ServeMux

	for _, middleware := range slices.Backward(r.globalChain) {
		h = middleware(h)
	}

	h.ServeHTTP(w, req)
}

func (r *Router) SetGlobalMiddlewares() {
	r.Use(
		middleware.Recoverer(r.log),
		middleware.RequestID,
		middleware.Logger(r.log),
		middleware.Metrics(r.metrics),
	)
}

func (r *Router) SetRoutes() {
	r.SetRoutesHealthcheck()
	r.SetRoutesVideos()
	r.SetRoutesDownloads()

	r.Handle("GET /metrics", r.metrics.Handler())
}

func (ro *Router) SetRoutesHealthcheck() {
	ro.HandleFunc("GET /v1/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ro.Group(func(r *Router) {
		r.Use(middleware.Timeout(ro.timeout))
		r.HandleFunc("GET /v1/system", ro.System)
	})
}

func (ro *Router) SetRoutesVideos() {
	ro.Group(func(r *Router) {
		r.Use(middleware.Timeout(ro.timeout))
		r.HandleFunc("GET /v1/videos", ro.GetVideo)
		r.HandleFunc("GET /v1/formats", ro.ListFormats)
	})
}

func (ro *Router) SetRoutesDownloads() {
	ro.Group(func(r *Router) {
		r.Use(middleware.Timeout(ro.timeout))
		r.HandleFunc("POST /v1/downloads", ro.CreateDownload)
		r.HandleFunc("GET /v1/downloads", ro.GetDownloads)
		r.HandleFunc("GET /v1/downloads/{id}", ro.GetDownload)
		r.HandleFunc("DELETE /v1/downloads/{id}", ro.CancelDownload)
	})

	// event streams live as long as the download
	ro.HandleFunc("GET /v1/downloads/{id}/events", ro.StreamEvents)
}

func (ro *Router) System(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ok, status := ro.svc.MergeToolStatus(ctx)
	ro.metrics.SetMergeToolAvailable(ok)

	out := System{MergeToolAvailable: ok, MergeToolStatus: status}
	if ro.bins != nil {
		out.Binaries = ro.bins.Binaries()
	}

	response.OK(w, consts.RespSystemStatus, out, nil)
}

func (ro *Router) GetVideo(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With("handler", "GetVideo")

	ctx := r.Context()

	url := r.URL.Query().Get("url")
	if url == "" {
		log.DebugContext(ctx, consts.RespQueryParamMissing)
		response.BadRequest(w, consts.RespQueryParamMissing, errs.New(errs.KindInvalidURL, "url query param is missing", nil))

		return
	}

	meta, err := ro.svc.Inspect(ctx, url)
	if err != nil {
		log.WarnContext(ctx, consts.RespVideoRetrieveFail, slog.Any("error", err))
		response.Error(w, consts.RespVideoRetrieveFail, nil, err)

		return
	}

	response.OK(w, consts.RespVideoRetrieved, meta, nil)
}

func (ro *Router) ListFormats(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With("handler", "ListFormats")

	ctx := r.Context()

	in, err := request.ParseFormats(r)
	if err != nil {
		log.DebugContext(ctx, consts.RespQueryParamMissing, slog.Any("error", err))
		response.BadRequest(w, consts.RespQueryParamMissing, err)

		return
	}

	menu, err := ro.svc.ListQualityOptions(ctx, in.URL, in.IncludeAudioOnly)
	if err != nil {
		log.WarnContext(ctx, consts.RespFormatsListFail, slog.Any("error", err))
		response.Error(w, consts.RespFormatsListFail, menu, err)

		return
	}

	response.OK(w, consts.RespFormatsListed, menu, nil)
}

func (ro *Router) CreateDownload(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With("handler", "CreateDownload")

	ctx := r.Context()

	var in request.Download
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		log.DebugContext(ctx, consts.RespInvalidRequestBody, slog.Any("error", err))
		response.BadRequest(w, consts.RespInvalidRequestBody, fmt.Errorf("%w: %w", errs.ErrInvalidRequestBody, err))

		return
	}

	policy, err := in.Validate()
	if err != nil {
		log.DebugContext(ctx, consts.RespUnprocessableEntity, slog.Any("error", err))
		response.Error(w, consts.RespUnprocessableEntity, nil, err)

		return
	}

	job, _, err := ro.svc.StartDownload(ctx, in.URL, in.FormatID, policy, in.Dir)
	if err != nil {
		log.WarnContext(ctx, consts.RespJobEnqueueFail, slog.Any("error", err))
		response.Error(w, consts.RespJobEnqueueFail, nil, err)

		return
	}

	log.InfoContext(ctx, consts.RespJobEnqueued, slog.Any("job", job))

	w.Header().Set("Location", "/v1/downloads/"+job.ID)
	response.Accepted(w, consts.RespJobEnqueued, job, nil)
}

func (ro *Router) GetDownload(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With("handler", "GetDownload")

	ctx := r.Context()

	job, err := ro.svc.GetByID(ctx, r.PathValue("id"))
	if err != nil {
		log.DebugContext(ctx, consts.RespGetJobFail, slog.Any("error", err))
		response.Error(w, consts.RespJobNotFound, nil, err)

		return
	}

	response.OK(w, consts.RespJobRetrieved, job, nil)
}

func (ro *Router) GetDownloads(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With("handler", "GetDownloads")

	ctx := r.Context()

	jobs, err := ro.svc.GetAll(ctx)
	if errors.Is(err, errs.ErrNoJobs) {
		log.DebugContext(ctx, consts.RespNoJobs)
		response.NoContent(w)

		return
	}

	if err != nil {
		log.ErrorContext(ctx, consts.RespGetJobsFail, slog.Any("error", err))
		response.InternalServerError(w, consts.RespGetJobsFail, nil, err)

		return
	}

	response.OK(w, consts.RespJobsRetrieved, jobs, nil)
}

func (ro *Router) CancelDownload(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With("handler", "CancelDownload")

	ctx := r.Context()

	id := r.PathValue("id")

	if err := ro.svc.Cancel(ctx, id); err != nil {
		log.DebugContext(ctx, "cancel failed", slog.String("job_id", id), slog.Any("error", err))

		msg := consts.RespJobNotFound
		if errors.Is(err, errs.ErrJobNotCancellable) {
			msg = consts.RespJobNotCancellable
		}

		response.Error(w, msg, nil, err)

		return
	}

	log.InfoContext(ctx, consts.RespJobCancelled, slog.String("job_id", id))

	response.Accepted(w, consts.RespJobCancelled, nil, nil)
}

// StreamEvents replays the events of a job as server-sent events and
// follows it until the terminal event or until the client goes away.
func (ro *Router) StreamEvents(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With("handler", "StreamEvents")
	ctx := r.Context()

	id := r.PathValue("id")

	events, err := ro.svc.Events(ctx, id)
	if err != nil {
		log.DebugContext(ctx, consts.RespJobNotFound, slog.String("job_id", id), slog.Any("error", err))
		response.Error(w, consts.RespJobNotFound, nil, err)

		return
	}

	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for ev := range events {
		if err := writeEvent(w, ev); err != nil {
			log.DebugContext(ctx, "write event", slog.Any("error", err))

			return
		}

		if err := rc.Flush(); err != nil {
			log.DebugContext(ctx, "flush event", slog.Any("error", err))

			return
		}
	}
}

func writeEvent(w http.ResponseWriter, ev entity.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	return nil
}
