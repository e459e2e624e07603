package propagation

import (
	"time"

	"github.com/star/satmap/internal/transform"
)

// State is a propagated TEME state vector.
type State struct {
	Position transform.Vector // km
	Velocity transform.Vector // km/s
	Time     time.Time        // instant actually propagated to
}

// Speed returns the inertial speed in km/s.
func (s State) Speed() float64 {
	return s.Velocity.Norm()
}

// Geodetic returns the sub-satellite point and height.
func (s State) Geodetic() transform.GeodeticPoint {
	return transform.ToGeodetic(s.Position, s.Time)
}

// Fix is one satellite's position at a batch propagation instant.
type Fix struct {
	CatalogID int
	Name      string
	Point     transform.GeodeticPoint
	SpeedKmS  float64
}
