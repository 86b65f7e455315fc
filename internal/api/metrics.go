package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry          *prometheus.Registry
	requestTotal      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	rateLimitRejected *prometheus.CounterVec
	exportsEnqueued   *prometheus.CounterVec
	previewsRendered  prometheus.Counter
	previewsDropped   prometheus.Counter
	previewsFailed    prometheus.Counter
	previewDuration   prometheus.Histogram
	previewBytes      prometheus.Counter
}

func newMetrics(activeSessions func() float64) *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "easel_api_requests_total",
			Help: "Total HTTP requests handled by the API.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "easel_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		rateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "easel_api_rate_limit_rejections_total",
			Help: "Total API requests rejected by rate limiting.",
		}, []string{"route"}),
		exportsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "easel_exports_enqueued_total",
			Help: "Total export render jobs enqueued to the queue.",
		}, []string{"queue"}),
		previewsRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "easel_previews_rendered_total",
			Help: "Total preview renders applied to a session.",
		}),
		previewsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "easel_previews_dropped_total",
			Help: "Total preview renders superseded before applying.",
		}),
		previewsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "easel_previews_failed_total",
			Help: "Total preview renders that ended in an error.",
		}),
		previewDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "easel_preview_render_duration_seconds",
			Help:    "Preview render latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		previewBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "easel_preview_bytes_total",
			Help: "Total bytes of encoded preview output.",
		}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.rateLimitRejected,
		m.exportsEnqueued,
		m.previewsRendered,
		m.previewsDropped,
		m.previewsFailed,
		m.previewDuration,
		m.previewBytes,
	)

	if activeSessions != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "easel_sessions_active",
			Help: "Edit sessions currently held in memory.",
		}, activeSessions))
	}
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		status := statusLabel(recorder.status)

		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}

// routeLabel collapses resource IDs so label cardinality stays bounded.
func routeLabel(path string) string {
	if path == "/healthz" || path == "/metrics" {
		return path
	}
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segments) >= 3 && segments[0] == "v1" {
		switch segments[1] {
		case "sessions", "images", "exports":
			segments[2] = "{id}"
			return "/" + strings.Join(segments, "/")
		}
	}
	return path
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// previewObserver feeds orchestrator outcomes into the API metrics so
// every session reports through one registry.
type previewObserver struct {
	metrics *metrics
}

func (o previewObserver) RenderStarted() {}

func (o previewObserver) RenderApplied(duration time.Duration, bytes int) {
	o.metrics.previewsRendered.Inc()
	o.metrics.previewDuration.Observe(duration.Seconds())
	o.metrics.previewBytes.Add(float64(bytes))
}

func (o previewObserver) RenderDropped() {
	o.metrics.previewsDropped.Inc()
}

func (o previewObserver) RenderFailed() {
	o.metrics.previewsFailed.Inc()
}
