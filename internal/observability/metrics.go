// Package observability provides Prometheus metrics for the application.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vidfetch"

// Metrics holds all application metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Job metrics
	JobsCreated      prometheus.Counter
	JobsCompleted    prometheus.Counter
	JobsFailed       *prometheus.CounterVec
	JobsInProgress   prometheus.Gauge
	JobDownloadBytes prometheus.Counter
	JobDuration      prometheus.Histogram
	DownloadsTotal   *prometheus.CounterVec

	// Menu metrics
	MenuBuilds        prometheus.Counter
	MenuOptions       prometheus.Histogram
	FormatsCacheTotal *prometheus.CounterVec

	// Storage metrics
	CleanupJobsTotal prometheus.Counter
	StoredJobsTotal  prometheus.Gauge
	EventSubscribers prometheus.Gauge

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Proxy metrics
	ProxyRequestsTotal *prometheus.CounterVec
	ProxyFailures      *prometheus.CounterVec
	ProxiesAvailable   prometheus.Gauge

	// Extractor metrics
	ExtractorRequestsTotal *prometheus.CounterVec
	ExtractorErrors        *prometheus.CounterVec

	// Merge tool
	MergeToolAvailable prometheus.Gauge
}

// New creates all application metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	metrics := &Metrics{
		registry: reg,

		// Job metrics
		JobsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "created_total",
			Help:      "Total number of jobs created",
		}),
		JobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "completed_total",
			Help:      "Total number of jobs completed successfully",
		}),
		JobsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "failed_total",
			Help:      "Total number of jobs that failed, by failure kind",
		}, []string{"kind"}),
		JobsInProgress: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "in_progress",
			Help:      "Number of jobs currently in progress",
		}),
		JobDownloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "download_bytes_total",
			Help:      "Total bytes downloaded across all jobs",
		}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Histogram of job download duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		DownloadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "downloads_total",
			Help:      "Total number of orchestrated downloads by mode and result",
		}, []string{"mode", "result"}),

		// Menu metrics
		MenuBuilds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "formats",
			Name:      "menus_total",
			Help:      "Total number of quality menus built",
		}),
		MenuOptions: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "formats",
			Name:      "menu_options",
			Help:      "Histogram of quality menu sizes",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		}),
		FormatsCacheTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "formats",
			Name:      "cache_lookups_total",
			Help:      "Total number of format cache lookups by result",
		}, []string{"result"}),

		// Storage metrics
		CleanupJobsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "cleanup_jobs_total",
			Help:      "Total number of expired jobs cleaned up",
		}),
		StoredJobsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "jobs_current",
			Help:      "Current number of stored jobs",
		}),
		EventSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "event_subscribers",
			Help:      "Current number of progress event subscribers",
		}),

		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		HTTPResponseSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "Histogram of HTTP response sizes in bytes",
			Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
		}, []string{"method", "path"}),

		// Proxy metrics
		ProxyRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Total number of requests made through proxies",
		}, []string{"proxy"}),
		ProxyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "failures_total",
			Help:      "Total number of proxy failures",
		}, []string{"proxy"}),
		ProxiesAvailable: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "available",
			Help:      "Number of currently available proxies",
		}),

		// Extractor metrics
		ExtractorRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extractor",
			Name:      "requests_total",
			Help:      "Total number of extraction backend calls",
		}, []string{"backend", "op", "status"}),
		ExtractorErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extractor",
			Name:      "errors_total",
			Help:      "Total number of extraction backend errors",
		}, []string{"backend", "error_type"}),

		MergeToolAvailable: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mergetool",
			Name:      "available",
			Help:      "1 when the merge tool answered its last probe",
		}),
	}

	return metrics
}

// Registry returns the registry all metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// JobTimer returns a function to record job duration.
func (m *Metrics) JobTimer() func() {
	start := time.Now()

	return func() {
		m.JobDuration.Observe(time.Since(start).Seconds())
	}
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration, size int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(size))
}

// RecordJobCreated increments the jobs created counter.
func (m *Metrics) RecordJobCreated() {
	m.JobsCreated.Inc()
	m.JobsInProgress.Inc()
}

// RecordJobCompleted records a completed job.
func (m *Metrics) RecordJobCompleted() {
	m.JobsCompleted.Inc()
	m.JobsInProgress.Dec()
}

// RecordJobFailed records a failed or cancelled job.
func (m *Metrics) RecordJobFailed(kind string) {
	m.JobsFailed.WithLabelValues(kind).Inc()
	m.JobsInProgress.Dec()
}

// RecordDownloadBytes adds n downloaded bytes.
func (m *Metrics) RecordDownloadBytes(n int64) {
	if n > 0 {
		m.JobDownloadBytes.Add(float64(n))
	}
}

// RecordDownload records one orchestrated download.
func (m *Metrics) RecordDownload(mode, result string) {
	m.DownloadsTotal.WithLabelValues(mode, result).Inc()
}

// RecordMenu records a built quality menu of size options.
func (m *Metrics) RecordMenu(options int) {
	m.MenuBuilds.Inc()
	m.MenuOptions.Observe(float64(options))
}

// RecordFormatsCache records a format cache lookup.
func (m *Metrics) RecordFormatsCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}

	m.FormatsCacheTotal.WithLabelValues(result).Inc()
}

// RecordCleanup records cleanup metrics.
func (m *Metrics) RecordCleanup(jobs int) {
	m.CleanupJobsTotal.Add(float64(jobs))
}

// RecordExtractorRequest records an extraction backend call.
func (m *Metrics) RecordExtractorRequest(backend, op, status string) {
	m.ExtractorRequestsTotal.WithLabelValues(backend, op, status).Inc()
}

// RecordExtractorError records an extraction backend error.
func (m *Metrics) RecordExtractorError(backend, errorType string) {
	m.ExtractorErrors.WithLabelValues(backend, errorType).Inc()
}

// RecordProxyRequest records a proxy request.
func (m *Metrics) RecordProxyRequest(proxy string) {
	m.ProxyRequestsTotal.WithLabelValues(proxy).Inc()
}

// RecordProxyFailure records a proxy failure.
func (m *Metrics) RecordProxyFailure(proxy string) {
	m.ProxyFailures.WithLabelValues(proxy).Inc()
}

// SetProxiesAvailable sets the number of available proxies.
func (m *Metrics) SetProxiesAvailable(count int) {
	m.ProxiesAvailable.Set(float64(count))
}

// SetStoredJobs sets the number of stored jobs.
func (m *Metrics) SetStoredJobs(count int) {
	m.StoredJobsTotal.Set(float64(count))
}

// AddSubscribers moves the event subscriber gauge by delta.
func (m *Metrics) AddSubscribers(delta int) {
	m.EventSubscribers.Add(float64(delta))
}

// SetMergeToolAvailable records the result of a merge tool probe.
func (m *Metrics) SetMergeToolAvailable(ok bool) {
	v := 0.0
	if ok {
		v = 1
	}

	m.MergeToolAvailable.Set(v)
}
