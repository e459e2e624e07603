package tle

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/star/satmap/internal/httputil"
	"github.com/star/satmap/internal/metrics"
)

var tracer = otel.Tracer("github.com/star/satmap/internal/tle")

// Source retrieves raw element-set text for one satellite. Implementations
// return *RetrievalError on failure; CachedSource may return *CachedError.
type Source interface {
	Name() string
	FetchElementSet(ctx context.Context, catalogID int) (string, error)
}

// classify maps a transport failure to one of the retrieval sentinels.
func classify(err error) error {
	var se *httputil.StatusError
	if !errors.As(err, &se) {
		return err
	}
	switch {
	case se.Code == http.StatusNotFound:
		return errors.Join(ErrNotFound, err)
	case se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden:
		return errors.Join(ErrUnauthorized, err)
	case se.Code == http.StatusTooManyRequests:
		return errors.Join(ErrRateLimited, err)
	case se.Code >= 500:
		return errors.Join(ErrUnavailable, err)
	}
	return err
}

// instrument wraps one fetch in a span and records the outcome metric.
func instrument(ctx context.Context, source string, catalogID int, fetch func(ctx context.Context) (string, error)) (string, error) {
	ctx, span := tracer.Start(ctx, "tle.fetch", trace.WithAttributes(
		attribute.String("tle.source", source),
		attribute.Int("norad_id", catalogID),
	))
	defer span.End()

	start := time.Now()
	raw, err := fetch(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		metrics.ObserveRetrieval(source, "error", time.Since(start))
		return "", &RetrievalError{Source: source, CatalogID: catalogID, Err: err}
	}
	metrics.ObserveRetrieval(source, "ok", time.Since(start))
	return raw, nil
}
