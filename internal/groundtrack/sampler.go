// Package groundtrack samples a propagator across a time window and turns the
// result into sub-satellite polylines.
//
// A window of duration d at step s yields floor(d/s)+1 points, both endpoints
// included. Sampling is lazy and restartable: each range over the sequence
// returned by Sample propagates afresh, and nothing is computed until the
// caller pulls. A propagation failure part way through truncates the
// sequence at the last good point.
package groundtrack

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/star/satmap/internal/propagation"
	"github.com/star/satmap/internal/transform"
)

var (
	ErrInvalidStep  = errors.New("step must be positive")
	ErrInvalidRange = errors.New("duration must not be negative")
)

// Propagator is the subset of *propagation.Propagator the sampler uses.
type Propagator interface {
	Propagate(t time.Time) (propagation.State, error)
}

// Point is one sample of a ground track.
type Point struct {
	Time     time.Time
	LatDeg   float64
	LonDeg   float64
	AltKm    float64
	SpeedKmS float64
}

// Sample returns the lazy point sequence for [start, start+duration]. The
// sequence yields at most one error, as its final element.
func Sample(p Propagator, start time.Time, duration, step time.Duration) iter.Seq2[Point, error] {
	return func(yield func(Point, error) bool) {
		if step <= 0 {
			yield(Point{}, fmt.Errorf("%w: %v", ErrInvalidStep, step))
			return
		}
		if duration < 0 {
			yield(Point{}, fmt.Errorf("%w: %v", ErrInvalidRange, duration))
			return
		}

		n := Count(duration, step)
		for i := 0; i < n; i++ {
			t := start.Add(time.Duration(i) * step)
			state, err := p.Propagate(t)
			if err != nil {
				yield(Point{}, err)
				return
			}
			if !yield(pointFrom(state), nil) {
				return
			}
		}
	}
}

// Count is the number of points Sample yields for a window when nothing fails.
func Count(duration, step time.Duration) int {
	if step <= 0 || duration < 0 {
		return 0
	}
	return int(duration/step) + 1
}

func pointFrom(s propagation.State) Point {
	g := s.Geodetic()
	return Point{
		Time:     s.Time,
		LatDeg:   g.LatDeg,
		LonDeg:   g.LonDeg,
		AltKm:    g.AltKm,
		SpeedKmS: s.Speed(),
	}
}

// Geodetic returns the point without its time and speed.
func (p Point) Geodetic() transform.GeodeticPoint {
	return transform.GeodeticPoint{LatDeg: p.LatDeg, LonDeg: p.LonDeg, AltKm: p.AltKm}
}
