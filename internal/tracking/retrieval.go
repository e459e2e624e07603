package tracking

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/star/satmap/internal/metrics"
	"github.com/star/satmap/internal/propagation"
	"github.com/star/satmap/internal/tle"
)

var tracer = otel.Tracer("github.com/star/satmap/internal/tracking")

// fetchRequest asks the worker to resolve one satellite. gen pins the
// request to the selection that queued it.
type fetchRequest struct {
	id  int
	gen uint64
}

// RefreshElements queues a retrieval for every tracked satellite.
func (s *Session) RefreshElements() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.tracked {
		s.enqueueLocked(e)
	}
	s.logger.Debug("element refresh queued", "count", len(s.queue))
}

func (s *Session) enqueueLocked(e *entry) {
	if s.queued[e.id] {
		return
	}
	s.queued[e.id] = true
	s.queue = append(s.queue, fetchRequest{id: e.id, gen: e.generation})
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) dequeueLocked(catalogID int) {
	delete(s.queued, catalogID)
	s.queue = slices.DeleteFunc(s.queue, func(r fetchRequest) bool { return r.id == catalogID })
}

func (s *Session) next() (fetchRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return fetchRequest{}, false
	}
	req := s.queue[0]
	s.queue = s.queue[1:]
	delete(s.queued, req.id)
	return req, true
}

// ResolvePending processes every queued retrieval on the calling goroutine
// and returns how many were processed. Run does the same in the background.
func (s *Session) ResolvePending(ctx context.Context) int {
	n := 0
	for ctx.Err() == nil {
		req, ok := s.next()
		if !ok {
			break
		}
		if n > 0 && !s.pause(ctx) {
			break
		}
		s.resolve(ctx, req)
		n++
	}
	return n
}

func (s *Session) retrievalLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			s.ResolvePending(ctx)
		}
	}
}

// pause waits FetchDelay between sequential calls to the remote source.
func (s *Session) pause(ctx context.Context) bool {
	if s.cfg.FetchDelay <= 0 || s.source == nil {
		return true
	}
	t := time.NewTimer(s.cfg.FetchDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// currentLocked reports whether req still belongs to a tracked selection.
func (s *Session) currentLocked(req fetchRequest) (*entry, bool) {
	e, ok := s.tracked[req.id]
	if !ok || e.generation != req.gen {
		return nil, false
	}
	return e, true
}

func (s *Session) resolve(ctx context.Context, req fetchRequest) {
	s.mu.Lock()
	_, ok := s.currentLocked(req)
	s.mu.Unlock()
	if !ok {
		metrics.IncElementRefreshes("discarded")
		return
	}

	if s.source == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if e, ok := s.currentLocked(req); ok {
			s.fallbackLocked(e, nil)
		}
		return
	}

	ctx, span := tracer.Start(ctx, "tracking.resolve", trace.WithAttributes(
		attribute.Int("norad_id", req.id),
		attribute.String("tle.source", s.source.Name()),
	))
	defer span.End()

	prop, cached, err := s.retrieve(ctx, req.id)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
	case cached != nil:
		span.RecordError(cached)
		span.SetAttributes(attribute.Bool("tle.cached", true))
	}
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.currentLocked(req)
	if !ok {
		metrics.IncElementRefreshes("discarded")
		s.logger.Debug("discarding retrieval for deselected satellite", "norad_id", req.id)
		return
	}
	if err != nil {
		s.fallbackLocked(e, err)
		return
	}

	if e.name != "" {
		prop.Elements().Name = e.name
	}
	if e.state == Halted && e.elements != nil && prop.Elements().Lines == e.elements.Lines {
		metrics.IncElementRefreshes("unchanged")
		s.logger.Info("refresh returned the halted element set, staying halted", "norad_id", e.id)
		return
	}
	if cached != nil {
		s.installCachedLocked(e, prop, cached)
		return
	}

	now := s.clock.Now()
	e.install(prop, s.source.Name(), now)
	s.catalog.Put(tle.Entry{Elements: prop.Elements(), Source: s.source.Name(), FetchedAt: now})
	metrics.IncElementRefreshes("fresh")
	s.logger.Info("element set installed",
		"norad_id", e.id,
		"source", s.source.Name(),
		"epoch", prop.Elements().Epoch.Format(time.RFC3339),
	)
}

// retrieve fetches, splits and initialises one element set outside the lock.
// When the source failed but handed back a disk-cached copy, that copy is
// initialised instead and the failure is returned as cached.
func (s *Session) retrieve(ctx context.Context, catalogID int) (*propagation.Propagator, *tle.CachedError, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	raw, err := s.source.FetchElementSet(ctx, catalogID)
	var cached *tle.CachedError
	if errors.As(err, &cached) {
		raw, err = cached.Text, nil
	}
	if err != nil {
		return nil, nil, err
	}

	prop, err := propagatorFor(raw, catalogID)
	if err != nil {
		if cached != nil {
			return nil, nil, errors.Join(cached, err)
		}
		return nil, nil, err
	}
	return prop, cached, nil
}

func propagatorFor(raw string, catalogID int) (*propagation.Propagator, error) {
	lines, err := tle.Split(raw)
	if err != nil {
		return nil, err
	}
	prop, err := propagation.New(lines)
	if err != nil {
		return nil, err
	}
	if prop.CatalogID() != catalogID {
		return nil, fmt.Errorf("source returned NORAD %d for NORAD %d", prop.CatalogID(), catalogID)
	}
	return prop, nil
}

// installCachedLocked installs a disk-cached element set after a failed
// retrieval, provided it is newer than both the entry's current set and the
// catalog copy. Otherwise the failure takes the ordinary fallback path.
func (s *Session) installCachedLocked(e *entry, prop *propagation.Propagator, cached *tle.CachedError) {
	epoch := prop.Elements().Epoch
	newest := e.elements
	if ce, ok := s.catalog.Get(e.id); ok && (newest == nil || ce.Elements.Epoch.After(newest.Epoch)) {
		newest = ce.Elements
	}
	if newest != nil && !epoch.After(newest.Epoch) {
		s.fallbackLocked(e, cached)
		return
	}

	now := s.clock.Now()
	e.install(prop, tle.SourceCache, now)
	s.catalog.Put(tle.Entry{Elements: prop.Elements(), Source: tle.SourceCache, FetchedAt: cached.CachedAt.UTC()})
	metrics.IncElementRefreshes("fallback")
	s.logger.Warn("retrieval failed, using disk-cached element set",
		"norad_id", e.id,
		"cached_at", cached.CachedAt.UTC().Format(time.RFC3339),
		"error", cached.Err,
	)
	s.raiseLocked(e.id, AdvisoryFallback, now,
		fmt.Sprintf("%s (NORAD %d): could not retrieve fresh elements, using %s elements from epoch %s: %v",
			e.name, e.id, tle.SourceCache, epoch.Format(time.RFC3339), cached.Err))
}

// fallbackLocked handles a failed retrieval, or resolution without a remote
// source when fetchErr is nil. A satellite with a working element set keeps
// it; otherwise the catalog copy is installed unless it is the set that
// already failed. An advisory is raised whenever fetchErr is non-nil.
func (s *Session) fallbackLocked(e *entry, fetchErr error) {
	now := s.clock.Now()

	if e.state == Resolved && fetchErr != nil {
		metrics.IncElementRefreshes("failed")
		s.logger.Warn("element refresh failed, keeping current set", "norad_id", e.id, "error", fetchErr)
		s.raiseLocked(e.id, AdvisoryStale, now,
			fmt.Sprintf("%s (NORAD %d): could not refresh elements, keeping epoch %s: %v",
				e.name, e.id, e.elements.Epoch.Format(time.RFC3339), fetchErr))
		return
	}

	ce, ok := s.catalog.Get(e.id)
	if ok && e.elements != nil && ce.Elements.Lines == e.elements.Lines {
		ok = false
	}
	if !ok && e.state == Resolved {
		return
	}

	var prop *propagation.Propagator
	if ok {
		var err error
		prop, err = propagation.NewFromElements(ce.Elements)
		if err != nil {
			ok = false
			fetchErr = errors.Join(fetchErr, err)
		}
	}

	if !ok {
		metrics.IncElementRefreshes("failed")
		if fetchErr == nil {
			fetchErr = tle.ErrNotFound
		}
		e.lastErr = fetchErr.Error()
		s.logger.Warn("no element set available", "norad_id", e.id, "error", fetchErr)
		s.raiseLocked(e.id, AdvisoryUnavailable, now,
			fmt.Sprintf("%s (NORAD %d): no element set available: %v", e.name, e.id, fetchErr))
		return
	}

	e.install(prop, ce.Source, now)
	metrics.IncElementRefreshes("fallback")
	if fetchErr == nil {
		s.logger.Info("element set installed from catalog", "norad_id", e.id, "source", ce.Source)
		return
	}
	s.logger.Warn("retrieval failed, using catalog element set",
		"norad_id", e.id,
		"source", ce.Source,
		"error", fetchErr,
	)
	s.raiseLocked(e.id, AdvisoryFallback, now,
		fmt.Sprintf("%s (NORAD %d): could not retrieve fresh elements, using %s elements from epoch %s: %v",
			e.name, e.id, ce.Source, ce.Elements.Epoch.Format(time.RFC3339), fetchErr))
}
