package tracking

import (
	"time"

	"github.com/star/satmap/internal/groundtrack"
	"github.com/star/satmap/internal/propagation"
	"github.com/star/satmap/internal/tle"
)

// State is the lifecycle state of a tracked satellite.
type State int

const (
	// Unresolved: selected, no element set yet.
	Unresolved State = iota
	// Resolved: an element set is in use and the marker moves every tick.
	Resolved
	// Halted: propagation failed; the marker stays frozen until a
	// replacement element set arrives.
	Halted
)

func (s State) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Resolved:
		return "resolved"
	case Halted:
		return "halted"
	}
	return "unknown"
}

// palette is assigned round-robin on select.
var palette = []string{
	"#06b6d4", "#f59e0b", "#a855f7", "#22c55e",
	"#ef4444", "#3b82f6", "#ec4899", "#eab308",
}

// TrackedSatellite is a read-only copy of one session entry.
type TrackedSatellite struct {
	CatalogID        int
	Name             string
	Color            string
	State            State
	Elements         *tle.ElementSet
	ElementSource    string
	ElementsAt       time.Time // when the current set was installed
	Position         *Position
	LastTrajectoryAt time.Time
	Past             *groundtrack.Segment
	Future           *groundtrack.Segment
	LastError        string
}

// entry is the session-owned state for one satellite. Only the session
// goroutines touch it, under Session.mu.
type entry struct {
	id         int
	name       string
	color      string
	state      State
	generation uint64

	elements  *tle.ElementSet
	source    string
	installed time.Time
	prop      *propagation.Propagator

	position         *Position
	lastTrajectoryAt time.Time
	trajectoryStale  bool // set on install, cleared by regeneration
	past, future     *groundtrack.Segment
	lastErr          string
}

func (e *entry) snapshot() TrackedSatellite {
	ts := TrackedSatellite{
		CatalogID:        e.id,
		Name:             e.name,
		Color:            e.color,
		State:            e.state,
		Elements:         e.elements,
		ElementSource:    e.source,
		ElementsAt:       e.installed,
		LastTrajectoryAt: e.lastTrajectoryAt,
		Past:             e.past,
		Future:           e.future,
		LastError:        e.lastErr,
	}
	if e.position != nil {
		p := *e.position
		ts.Position = &p
	}
	return ts
}

// install replaces the element set wholesale. The next tick propagates with
// it and regenerates both segments.
func (e *entry) install(prop *propagation.Propagator, source string, now time.Time) {
	e.prop = prop
	e.elements = prop.Elements()
	e.source = source
	e.installed = now
	e.state = Resolved
	e.lastErr = ""
	e.trajectoryStale = true
}

// release drops every derived artifact.
func (e *entry) release() {
	e.prop = nil
	e.position = nil
	e.past = nil
	e.future = nil
}
