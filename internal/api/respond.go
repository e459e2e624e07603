package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/star/satmap/internal/passes"
	"github.com/star/satmap/internal/propagation"
	"github.com/star/satmap/internal/tle"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps a domain error to an HTTP status. Anything unclassified is
// reported as an upstream failure.
func statusFor(err error) int {
	var perr *propagation.PropagationError
	var ferr *tle.FormatError
	switch {
	case errors.Is(err, passes.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, passes.ErrNoAPIKey):
		return http.StatusServiceUnavailable
	case errors.Is(err, tle.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tle.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.As(err, &perr), errors.As(err, &ferr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// propagationKind names the failure class of a propagation error.
func propagationKind(err error) string {
	switch {
	case errors.Is(err, propagation.ErrDecayed):
		return "decayed"
	case errors.Is(err, propagation.ErrBreakdown):
		return "breakdown"
	case errors.Is(err, propagation.ErrInit):
		return "init"
	}
	return ""
}

func writePropagationError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
		"error": err.Error(),
		"kind":  propagationKind(err),
	})
}
