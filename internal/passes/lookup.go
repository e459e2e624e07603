package passes

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/star/satmap/internal/groundtrack"
	"github.com/star/satmap/internal/propagation"
	"github.com/star/satmap/internal/tle"
)

// groundTrackStep is the sample spacing of a pass ground track.
const groundTrackStep = 10 * time.Second

var tracer = otel.Tracer("github.com/star/satmap/internal/passes")

// Fetcher is satisfied by *Client.
type Fetcher interface {
	FetchPasses(ctx context.Context, req Request) ([]Pass, error)
}

// Lookup combines remote pass predictions with locally propagated ground
// tracks from the catalog.
type Lookup struct {
	fetcher Fetcher
	catalog *tle.Catalog
	logger  *slog.Logger
}

// NewLookup creates a Lookup.
func NewLookup(fetcher Fetcher, catalog *tle.Catalog, logger *slog.Logger) *Lookup {
	return &Lookup{fetcher: fetcher, catalog: catalog, logger: logger}
}

// Passes fetches the passes for req and attaches a ground track to each one
// when the catalog holds an element set for the satellite. A ground track
// that cannot be propagated is left empty.
func (l *Lookup) Passes(ctx context.Context, req Request) ([]Pass, error) {
	ctx, span := tracer.Start(ctx, "passes.lookup", trace.WithAttributes(
		attribute.Int("norad_id", req.CatalogID),
		attribute.Float64("observer.lat", req.Observer.LatDeg),
		attribute.Float64("observer.lon", req.Observer.LonDeg),
	))
	defer span.End()

	passes, err := l.fetcher.FetchPasses(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pass lookup failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("passes.count", len(passes)))

	entry, ok := l.catalog.Get(req.CatalogID)
	if !ok {
		return passes, nil
	}
	prop, err := propagation.NewFromElements(entry.Elements)
	if err != nil {
		l.logger.Warn("cannot propagate pass ground tracks", "norad_id", req.CatalogID, "error", err)
		return passes, nil
	}

	for i := range passes {
		passes[i].GroundTrack = trackFor(prop, passes[i])
	}
	return passes, nil
}

func trackFor(prop *propagation.Propagator, p Pass) []TrackPoint {
	if p.End.Before(p.Start) {
		return nil
	}
	seg, err := groundtrack.Collect(prop, groundtrack.Future, p.Start, p.End.Sub(p.Start), groundTrackStep)
	if err != nil {
		return nil
	}
	out := make([]TrackPoint, 0, seg.Len())
	for _, pt := range seg.Points {
		out = append(out, TrackPoint{Time: pt.Time, LatDeg: pt.LatDeg, LonDeg: pt.LonDeg, AltKm: pt.AltKm})
	}
	return out
}
