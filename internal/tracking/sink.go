package tracking

import (
	"time"

	"github.com/star/satmap/internal/groundtrack"
	"github.com/star/satmap/internal/transform"
)

// Sink receives rendering updates. Methods are called with the session lock
// held: they must not block and must not call back into the Session.
type Sink interface {
	PositionUpdated(PositionEvent)
	TrajectoryUpdated(TrajectoryEvent)
	Released(catalogID int)
	AdvisoryRaised(Advisory)
}

// Position is a satellite's sub-satellite point and speed at one instant.
type Position struct {
	Time     time.Time
	Point    transform.GeodeticPoint
	SpeedKmS float64
}

// PositionEvent moves a satellite's marker.
type PositionEvent struct {
	CatalogID int
	Name      string
	Color     string
	Position  Position
}

// TrajectoryEvent replaces both trajectory segments of a satellite. Either
// segment may be nil when it could not be sampled at all.
type TrajectoryEvent struct {
	CatalogID   int
	Color       string
	GeneratedAt time.Time
	Past        *groundtrack.Segment
	Future      *groundtrack.Segment
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) PositionUpdated(PositionEvent)     {}
func (NopSink) TrajectoryUpdated(TrajectoryEvent) {}
func (NopSink) Released(int)                      {}
func (NopSink) AdvisoryRaised(Advisory)           {}
