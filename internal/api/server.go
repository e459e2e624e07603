package api

import (
	"io/fs"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/star/satmap/internal/auth"
	"github.com/star/satmap/internal/health"
	"github.com/star/satmap/internal/metrics"
	"github.com/star/satmap/internal/observability"
	"github.com/star/satmap/internal/passes"
	"github.com/star/satmap/internal/propagation"
	"github.com/star/satmap/internal/stream"
	"github.com/star/satmap/internal/tle"
	"github.com/star/satmap/internal/tracking"
)

// Deps are the components the HTTP surface is built over.
type Deps struct {
	Catalog *tle.Catalog
	Session *tracking.Session
	Stream  *stream.Handler
	Pool    *propagation.WorkerPool
	Passes  *passes.Lookup // nil disables the passes endpoint
	Web     fs.FS          // nil disables the web frontend
	Auth    auth.Config
	Now     func() time.Time
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, deps Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(logger, deps),
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed handler wrapped in the middleware chain.
func NewHandler(logger *slog.Logger, deps Deps) http.Handler {
	if deps.Pool == nil {
		deps.Pool = propagation.NewWorkerPool(runtime.NumCPU(), logger)
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	h := &handlers{deps: deps, logger: logger.With("component", "api")}

	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(h.ready))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/catalog", h.catalog)
	mux.HandleFunc("GET /api/v1/positions", h.positions)
	mux.HandleFunc("GET /api/v1/tracked", h.listTracked)
	mux.HandleFunc("PUT /api/v1/tracked/{norad_id}", h.selectSatellite)
	mux.HandleFunc("GET /api/v1/tracked/{norad_id}", h.getTracked)
	mux.HandleFunc("DELETE /api/v1/tracked/{norad_id}", h.deselectSatellite)
	mux.HandleFunc("GET /api/v1/advisories", h.listAdvisories)
	mux.HandleFunc("DELETE /api/v1/advisories/{id}", h.dismissAdvisory)
	mux.HandleFunc("GET /api/v1/propagate/{norad_id}", h.propagate)
	mux.HandleFunc("GET /api/v1/groundtrack/{norad_id}", h.groundTrack)
	mux.HandleFunc("GET /api/v1/passes/{norad_id}", h.passes)
	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream", deps.Stream.HandleStream)
	}
	if deps.Web != nil {
		mux.Handle("GET /", http.FileServerFS(deps.Web))
	}

	// Build middleware chain: metrics -> tracing -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(deps.Auth)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = observability.Middleware(metrics.Route, handler)
	handler = metrics.Middleware(handler)
	return handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
