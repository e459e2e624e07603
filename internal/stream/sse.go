// Package stream implements Server-Sent Events (SSE) streaming of the live
// tracking session. Clients connect via GET /api/v1/stream and receive every
// session event as it happens.
//
// SSE message format:
//
//	data: {"type":"position","id":25544,"t":"2024-04-09T12:00:00Z","lat":...}\n\n
//	data: {"type":"trajectory","id":25544,"past":[[[lat,lon],...]],"future":[...]}\n\n
//	data: {"type":"released","id":25544}\n\n
//	data: {"type":"advisory","id":3,"norad_id":25544,"kind":"retrieval_fallback",...}\n\n
//
// Each connection first receives a snapshot: the current position and
// trajectory of every tracked satellite plus the outstanding advisories.
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval of silence.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/star/satmap/internal/httputil"
	"github.com/star/satmap/internal/metrics"
	"github.com/star/satmap/internal/tracking"
)

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxConcurrent      int           // Max concurrent streams overall (default: 1000).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Take the client IP from X-Forwarded-For.
}

// Snapshotter exposes the session state sent to a new connection.
type Snapshotter interface {
	Tracked() []tracking.TrackedSatellite
	Advisories() []tracking.Advisory
}

// Handler manages SSE streaming connections.
type Handler struct {
	broker  *Broker
	session Snapshotter
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(broker *Broker, session Snapshotter, config Config, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP <= 0 {
		config.MaxConcurrentPerIP = 10
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1000
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		broker:  broker,
		session: session,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP, config.MaxConcurrent),
		logger:  logger,
	}
}

// HandleStream serves the SSE session stream.
// GET /api/v1/stream
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	// Rate limiting: enforce concurrent stream limits.
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if reason, ok := h.limiter.acquire(ip); !ok {
		metrics.IncStreamErrors("rate_limit_" + reason)
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"limit", reason,
			"current_count", h.limiter.count(ip),
			"active_streams", h.limiter.active(),
		)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "too many concurrent streams"})
		return
	}

	// Track connection metrics.
	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
	)

	c := &client{ip: ip, logger: h.logger}

	// Cleanup on disconnect: release rate limit slot and update metrics.
	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
			"messages_sent", c.messagesSent,
			"bytes_sent", c.bytesSent,
		)
	}()

	// Verify flusher support (required for SSE).
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "streaming not supported"})
		return
	}

	// Subscribe before the snapshot so nothing published in between is lost.
	events, unsubscribe := h.broker.subscribe()
	defer unsubscribe()

	// Set SSE response headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's default WriteTimeout for this long-lived connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}
	c.w, c.flusher, c.rc = w, flusher, rc

	// Send jittered retry interval (3-7s) to prevent thundering-herd
	// reconnection storms when the server restarts.
	if err := c.sendRetry(3000 + rand.Intn(4000)); err != nil {
		metrics.IncStreamErrors("send_error")
		return
	}

	if err := h.sendSnapshot(c); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (snapshot)", "remote_ip", ip, "error", err)
		return
	}

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case data := <-events:
			if err := c.sendRaw(data); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			// Reset keepalive since we just sent data.
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// sendSnapshot replays the current session state to one client.
func (h *Handler) sendSnapshot(c *client) error {
	for _, ts := range h.session.Tracked() {
		if ts.Position != nil {
			if err := c.sendJSON(buildPositionMessage(ts.CatalogID, ts.Name, ts.Color, *ts.Position)); err != nil {
				return fmt.Errorf("position %d: %w", ts.CatalogID, err)
			}
		}
		if ts.Past != nil || ts.Future != nil {
			msg := buildTrajectoryMessage(ts.CatalogID, ts.Color, ts.LastTrajectoryAt, ts.Past, ts.Future)
			if err := c.sendJSON(msg); err != nil {
				return fmt.Errorf("trajectory %d: %w", ts.CatalogID, err)
			}
		}
	}
	for _, a := range h.session.Advisories() {
		if err := c.sendJSON(buildAdvisoryMessage(a)); err != nil {
			return fmt.Errorf("advisory %d: %w", a.ID, err)
		}
	}
	return nil
}
