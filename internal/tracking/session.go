// Package tracking runs the live tracking session: the set of satellites a
// user has selected, each moving through Unresolved, Resolved and Halted.
//
// Three cadences drive the session. Every position tick (1 s) recomputes the
// marker of each resolved satellite. Trajectory segments are regenerated only
// once TrajectoryInterval (30 s) has elapsed since the last regeneration for
// that satellite. Element sets are re-retrieved every ElementsInterval (1 h)
// on a single worker goroutine and replace the current set wholesale.
package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/star/satmap/internal/groundtrack"
	"github.com/star/satmap/internal/metrics"
	"github.com/star/satmap/internal/tle"
)

// Config holds the session cadences and trajectory spans.
type Config struct {
	PositionInterval   time.Duration // marker refresh (default: 1s)
	TrajectoryInterval time.Duration // minimum age before segments regenerate (default: 30s)
	ElementsInterval   time.Duration // element-set refresh (default: 1h)
	PastSpan           time.Duration // retrospective segment length (default: 30m)
	FutureSpan         time.Duration // predictive segment length (default: 90m)
	TrackStep          time.Duration // sample spacing (default: 60s)
	FetchDelay         time.Duration // pause between sequential retrievals; zero for none
	FetchTimeout       time.Duration // per-retrieval timeout (default: 45s)
}

// DefaultConfig returns the standard cadences.
func DefaultConfig() Config {
	return Config{
		PositionInterval:   time.Second,
		TrajectoryInterval: 30 * time.Second,
		ElementsInterval:   time.Hour,
		PastSpan:           30 * time.Minute,
		FutureSpan:         90 * time.Minute,
		TrackStep:          60 * time.Second,
		FetchDelay:         100 * time.Millisecond,
		FetchTimeout:       45 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PositionInterval <= 0 {
		c.PositionInterval = d.PositionInterval
	}
	if c.TrajectoryInterval <= 0 {
		c.TrajectoryInterval = d.TrajectoryInterval
	}
	if c.ElementsInterval <= 0 {
		c.ElementsInterval = d.ElementsInterval
	}
	if c.PastSpan < 0 {
		c.PastSpan = 0
	}
	if c.FutureSpan <= 0 {
		c.FutureSpan = d.FutureSpan
	}
	if c.TrackStep <= 0 {
		c.TrackStep = d.TrackStep
	}
	if c.FetchDelay < 0 {
		c.FetchDelay = 0
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	return c
}

// Session owns every tracked satellite. All methods are safe for concurrent
// use.
type Session struct {
	cfg     Config
	source  tle.Source // nil: resolve from the catalog only
	catalog *tle.Catalog
	sink    Sink
	clock   Clock
	logger  *slog.Logger

	mu         sync.Mutex
	tracked    map[int]*entry
	generation uint64
	nextColor  int
	advisories []Advisory
	nextAdvID  int
	queue      []fetchRequest
	queued     map[int]bool

	wake chan struct{}

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithSink sets the rendering sink.
func WithSink(s Sink) Option {
	return func(sess *Session) { sess.sink = s }
}

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(sess *Session) { sess.clock = c }
}

// WithSource sets the element-set retrieval source.
func WithSource(src tle.Source) Option {
	return func(sess *Session) { sess.source = src }
}

// New creates a Session. catalog provides fallback element sets and receives
// every freshly retrieved one.
func New(cfg Config, catalog *tle.Catalog, logger *slog.Logger, opts ...Option) *Session {
	s := &Session{
		cfg:     cfg.withDefaults(),
		catalog: catalog,
		sink:    NopSink{},
		clock:   SystemClock(),
		logger:  logger.With("component", "tracking"),
		tracked: make(map[int]*entry),
		queued:  make(map[int]bool),
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// Select starts tracking catalogID. It returns false when the satellite is
// already tracked; selecting twice is a no-op. An empty name is filled in
// from the catalog.
func (s *Session) Select(catalogID int, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tracked[catalogID]; ok {
		return false
	}
	if name == "" {
		if ce, ok := s.catalog.Get(catalogID); ok && ce.Elements.Name != "" {
			name = ce.Elements.Name
		} else {
			name = fmt.Sprintf("NORAD %d", catalogID)
		}
	}

	s.generation++
	e := &entry{
		id:         catalogID,
		name:       name,
		color:      palette[s.nextColor%len(palette)],
		state:      Unresolved,
		generation: s.generation,
	}
	s.nextColor++
	s.tracked[catalogID] = e
	s.enqueueLocked(e)
	metrics.SetTrackedSatellites(len(s.tracked))

	s.logger.Info("satellite selected", "norad_id", catalogID, "name", name, "color", e.color)
	return true
}

// Deselect stops tracking catalogID and synchronously releases its marker,
// both segments and all cached state. Retrievals still in flight for it are
// discarded when they complete.
func (s *Session) Deselect(catalogID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tracked[catalogID]
	if !ok {
		return false
	}
	delete(s.tracked, catalogID)
	e.release()
	s.dequeueLocked(catalogID)
	s.sink.Released(catalogID)
	metrics.SetTrackedSatellites(len(s.tracked))

	s.logger.Info("satellite deselected", "norad_id", catalogID)
	return true
}

// Tracked returns copies of every entry ordered by catalog id.
func (s *Session) Tracked() []TrackedSatellite {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TrackedSatellite, 0, len(s.tracked))
	for _, id := range slices.Sorted(maps.Keys(s.tracked)) {
		out = append(out, s.tracked[id].snapshot())
	}
	return out
}

// Get returns a copy of one entry.
func (s *Session) Get(catalogID int) (TrackedSatellite, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tracked[catalogID]
	if !ok {
		return TrackedSatellite{}, false
	}
	return e.snapshot(), true
}

// Tick recomputes positions for every resolved satellite at now, in catalog
// id order, and regenerates trajectories whose last refresh is at least
// TrajectoryInterval old or whose element set was replaced since. A
// propagation failure halts that satellite only.
func (s *Session) Tick(now time.Time) {
	start := time.Now()
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		metrics.ObserveTick(time.Since(start))
	}()

	for _, id := range slices.Sorted(maps.Keys(s.tracked)) {
		e := s.tracked[id]
		if e.state != Resolved {
			continue
		}

		state, err := e.prop.Propagate(now)
		if err != nil {
			metrics.IncPropagationErrors("position")
			s.haltLocked(e, now, err)
			continue
		}

		pos := Position{Time: state.Time, Point: state.Geodetic(), SpeedKmS: state.Speed()}
		e.position = &pos
		s.sink.PositionUpdated(PositionEvent{CatalogID: id, Name: e.name, Color: e.color, Position: pos})

		if e.trajectoryStale || now.Sub(e.lastTrajectoryAt) >= s.cfg.TrajectoryInterval {
			s.regenerateLocked(e, now)
		}
	}
}

// regenerateLocked replaces both segments wholesale.
func (s *Session) regenerateLocked(e *entry, now time.Time) {
	past, err := groundtrack.Collect(e.prop, groundtrack.Past, now.Add(-s.cfg.PastSpan), s.cfg.PastSpan, s.cfg.TrackStep)
	if err != nil {
		metrics.IncPropagationErrors("trajectory")
		s.logger.Debug("past segment unavailable", "norad_id", e.id, "error", err)
	}
	future, err := groundtrack.Collect(e.prop, groundtrack.Future, now, s.cfg.FutureSpan, s.cfg.TrackStep)
	if err != nil {
		metrics.IncPropagationErrors("trajectory")
		s.logger.Debug("future segment unavailable", "norad_id", e.id, "error", err)
	}
	if future != nil && future.Truncated {
		s.logger.Info("future segment truncated by propagation failure",
			"norad_id", e.id,
			"points", future.Len(),
		)
	}

	e.past, e.future = past, future
	e.lastTrajectoryAt = now
	e.trajectoryStale = false
	metrics.IncTrajectoryRegenerations()
	s.sink.TrajectoryUpdated(TrajectoryEvent{
		CatalogID:   e.id,
		Color:       e.color,
		GeneratedAt: now,
		Past:        past,
		Future:      future,
	})
}

func (s *Session) haltLocked(e *entry, now time.Time, err error) {
	e.state = Halted
	e.lastErr = err.Error()
	s.logger.Warn("propagation failed, marker halted", "norad_id", e.id, "error", err)
	s.raiseLocked(e.id, AdvisoryHalted, now,
		fmt.Sprintf("%s (NORAD %d): propagation failed, tracking halted until new elements arrive: %v", e.name, e.id, err))
}

// Advisories returns the outstanding advisories, oldest first.
func (s *Session) Advisories() []Advisory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.advisories)
}

// DismissAdvisory removes an advisory. It returns false for unknown ids.
func (s *Session) DismissAdvisory(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.advisories, func(a Advisory) bool { return a.ID == id })
	if i < 0 {
		return false
	}
	s.advisories = slices.Delete(s.advisories, i, i+1)
	return true
}

func (s *Session) raiseLocked(catalogID int, kind AdvisoryKind, now time.Time, msg string) {
	s.nextAdvID++
	a := Advisory{ID: s.nextAdvID, CatalogID: catalogID, Kind: kind, Message: msg, RaisedAt: now}
	s.advisories = append(s.advisories, a)
	if len(s.advisories) > maxAdvisories {
		s.advisories = slices.Delete(s.advisories, 0, len(s.advisories)-maxAdvisories)
	}
	s.sink.AdvisoryRaised(a)
}

// Run drives the session until ctx is cancelled: the position ticker, the
// element refresh ticker and the retrieval worker. It returns once all of
// them have stopped.
func (s *Session) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.retrievalLoop(ctx)
	}()
	defer wg.Wait()

	positions := time.NewTicker(s.cfg.PositionInterval)
	defer positions.Stop()
	refresh := time.NewTicker(s.cfg.ElementsInterval)
	defer refresh.Stop()

	s.logger.Info("tracking session started",
		"position_interval", s.cfg.PositionInterval.String(),
		"trajectory_interval", s.cfg.TrajectoryInterval.String(),
		"elements_interval", s.cfg.ElementsInterval.String(),
	)

	s.Tick(s.clock.Now())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("tracking session stopping")
			return
		case <-positions.C:
			s.Tick(s.clock.Now())
		case <-refresh.C:
			s.RefreshElements()
		}
	}
}

// Start runs the session in the background. Calling Start on a running
// session does nothing.
func (s *Session) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
}

// Stop cancels both tickers and the retrieval worker and waits for them.
func (s *Session) Stop() {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
