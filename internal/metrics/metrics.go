package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satmap_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "satmap_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	retrievalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satmap_tle_retrievals_total",
			Help: "Element-set retrievals by source and result.",
		},
		[]string{"source", "result"},
	)

	retrievalDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "satmap_tle_retrieval_duration_seconds",
			Help:    "Element-set retrieval latency in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"source"},
	)

	catalogSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "satmap_catalog_size",
			Help: "Number of element sets in the catalog.",
		},
	)

	catalogAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "satmap_catalog_age_seconds",
			Help: "Seconds since the catalog last changed.",
		},
	)

	propagationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satmap_propagation_errors_total",
			Help: "Propagation failures by caller.",
		},
		[]string{"kind"},
	)

	trackedSatellites = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "satmap_tracked_satellites",
			Help: "Number of satellites in the live tracking session.",
		},
	)

	tickDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "satmap_tick_duration_seconds",
			Help:    "Duration of one session position tick.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	trajectoryRegenerationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "satmap_trajectory_regenerations_total",
			Help: "Ground-track segment pairs regenerated.",
		},
	)

	elementRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satmap_element_refreshes_total",
			Help: "Element-set refresh outcomes for tracked satellites.",
		},
		[]string{"result"},
	)

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satmap_stream_connections_total",
			Help: "SSE connect and disconnect events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "satmap_streams_active",
			Help: "Currently open SSE streams.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satmap_stream_errors_total",
			Help: "SSE stream errors by reason.",
		},
		[]string{"reason"},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "satmap_stream_messages_total",
			Help: "SSE data messages written.",
		},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "satmap_stream_bytes_total",
			Help: "Bytes written to SSE streams, keepalives included.",
		},
	)

	streamEventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "satmap_stream_events_dropped_total",
			Help: "Session events dropped because a subscriber was too slow.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(retrievalsTotal)
	prometheus.MustRegister(retrievalDurationSeconds)
	prometheus.MustRegister(catalogSize)
	prometheus.MustRegister(catalogAgeSeconds)
	prometheus.MustRegister(propagationErrorsTotal)
	prometheus.MustRegister(trackedSatellites)
	prometheus.MustRegister(tickDurationSeconds)
	prometheus.MustRegister(trajectoryRegenerationsTotal)
	prometheus.MustRegister(elementRefreshesTotal)
	prometheus.MustRegister(streamConnectionsTotal)
	prometheus.MustRegister(streamsActive)
	prometheus.MustRegister(streamErrorsTotal)
	prometheus.MustRegister(streamMessagesTotal)
	prometheus.MustRegister(streamBytesTotal)
	prometheus.MustRegister(streamEventsDroppedTotal)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRetrieval records one element-set fetch. result is "ok" or "error".
func ObserveRetrieval(source, result string, d time.Duration) {
	retrievalsTotal.WithLabelValues(source, result).Inc()
	retrievalDurationSeconds.WithLabelValues(source).Observe(d.Seconds())
}

// SetCatalog records the catalog size and the seconds since it last changed.
func SetCatalog(size int, ageSeconds float64) {
	catalogSize.Set(float64(size))
	catalogAgeSeconds.Set(ageSeconds)
}

// IncPropagationErrors counts a propagation failure. kind names the caller:
// "batch", "position", "trajectory" or "api".
func IncPropagationErrors(kind string) {
	propagationErrorsTotal.WithLabelValues(kind).Inc()
}

// SetTrackedSatellites sets the session size gauge.
func SetTrackedSatellites(n int) {
	trackedSatellites.Set(float64(n))
}

// ObserveTick records the duration of a session tick.
func ObserveTick(d time.Duration) {
	tickDurationSeconds.Observe(d.Seconds())
}

// IncTrajectoryRegenerations counts one wholesale segment regeneration.
func IncTrajectoryRegenerations() {
	trajectoryRegenerationsTotal.Inc()
}

// IncElementRefreshes counts a refresh outcome: "fresh", "fallback",
// "unchanged", "discarded" or "failed".
func IncElementRefreshes(result string) {
	elementRefreshesTotal.WithLabelValues(result).Inc()
}

// IncStreamConnections counts an SSE "connect" or "disconnect".
func IncStreamConnections(event string) {
	streamConnectionsTotal.WithLabelValues(event).Inc()
}

func IncStreamsActive() { streamsActive.Inc() }
func DecStreamsActive() { streamsActive.Dec() }

// IncStreamErrors counts an SSE error by reason.
func IncStreamErrors(reason string) {
	streamErrorsTotal.WithLabelValues(reason).Inc()
}

func IncStreamMessages() { streamMessagesTotal.Inc() }

func AddStreamBytes(n int64) { streamBytesTotal.Add(float64(n)) }

func IncStreamEventsDropped() { streamEventsDroppedTotal.Inc() }

// exactRoutes are served verbatim as the path label.
var exactRoutes = map[string]bool{
	"/":                  true,
	"/healthz":           true,
	"/readyz":            true,
	"/metrics":           true,
	"/api/v1/catalog":    true,
	"/api/v1/positions":  true,
	"/api/v1/tracked":    true,
	"/api/v1/advisories": true,
	"/api/v1/stream":     true,
	"/app.js":            true,
	"/styles.css":        true,
}

// paramRoutes collapse every value of their trailing segment into one label.
var paramRoutes = []struct {
	prefix string
	label  string
}{
	{"/api/v1/tracked/", "/api/v1/tracked/{norad_id}"},
	{"/api/v1/advisories/", "/api/v1/advisories/{id}"},
	{"/api/v1/propagate/", "/api/v1/propagate/{norad_id}"},
	{"/api/v1/groundtrack/", "/api/v1/groundtrack/{norad_id}"},
	{"/api/v1/passes/", "/api/v1/passes/{norad_id}"},
}

// Route returns the bounded route label for r.
func Route(r *http.Request) string {
	return normalizeRoute(r.URL.Path)
}

// normalizeRoute maps a request path to a bounded set of metric labels so
// that bots and per-satellite paths cannot grow label cardinality.
func normalizeRoute(path string) string {
	if exactRoutes[path] {
		return path
	}
	for _, r := range paramRoutes {
		rest, ok := strings.CutPrefix(path, r.prefix)
		if !ok {
			continue
		}
		if _, err := strconv.Atoi(rest); err == nil {
			return r.label
		}
		return "other"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets SSE handlers behind the middleware stream.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
