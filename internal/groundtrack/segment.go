package groundtrack

import (
	"fmt"
	"math"
	"time"
)

// Kind tags a segment as the span already flown or the span ahead.
type Kind string

const (
	Past   Kind = "past"
	Future Kind = "future"
)

// antimeridianThreshold is the longitude jump between consecutive samples
// taken to mean the track crossed ±180°. A LEO sample step moves a few
// degrees at most.
const antimeridianThreshold = 270.0

// Segment is an immutable, wholesale-generated trajectory span.
type Segment struct {
	Kind   Kind
	Start  time.Time
	Step   time.Duration
	Points []Point
	// Truncated is set when propagation failed before the window ended.
	Truncated bool
}

// Collect drains Sample into a Segment. A failure at index k > 0 yields the
// k points before it with Truncated set; a failure at index 0 is returned as
// the error.
func Collect(p Propagator, kind Kind, start time.Time, duration, step time.Duration) (*Segment, error) {
	seg := &Segment{
		Kind:   kind,
		Start:  start,
		Step:   step,
		Points: make([]Point, 0, Count(duration, step)),
	}
	for pt, err := range Sample(p, start, duration, step) {
		if err != nil {
			if len(seg.Points) == 0 {
				return nil, fmt.Errorf("%s segment at %s: %w", kind, start.UTC().Format(time.RFC3339), err)
			}
			seg.Truncated = true
			break
		}
		seg.Points = append(seg.Points, pt)
	}
	return seg, nil
}

// Len returns the number of points.
func (s *Segment) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

// Runs splits the segment where it crosses the antimeridian, so that each
// run can be drawn as a plain polyline. At every crossing the run on each
// side ends or starts with a point interpolated onto ±180°. Those edge
// points exist for drawing only: -180 lies outside the (-180, 180] range of
// sampled points, and no edge point is ever stored in Points.
func (s *Segment) Runs() [][]Point {
	if s.Len() == 0 {
		return nil
	}
	points := s.Points

	var runs [][]Point
	current := []Point{points[0]}
	for i := 1; i < len(points); i++ {
		prev, curr := points[i-1], points[i]
		if math.Abs(curr.LonDeg-prev.LonDeg) > antimeridianThreshold {
			before, after := interpolateAntimeridian(prev, curr)
			current = append(current, before)
			runs = append(runs, current)
			current = []Point{after, curr}
			continue
		}
		current = append(current, curr)
	}
	return append(runs, current)
}

// interpolateAntimeridian returns the crossing between p1 and p2 as seen from
// each side of the line.
func interpolateAntimeridian(p1, p2 Point) (Point, Point) {
	edge1, edge2 := -180.0, 180.0
	lon2 := p2.LonDeg - 360
	if p1.LonDeg > 0 {
		edge1, edge2 = 180, -180
		lon2 = p2.LonDeg + 360
	}

	frac := 0.5
	if dLon := lon2 - p1.LonDeg; math.Abs(dLon) > 1e-10 {
		frac = (edge1 - p1.LonDeg) / dLon
	}
	frac = math.Max(0, math.Min(1, frac))

	mid := Point{
		Time:     p1.Time.Add(time.Duration(float64(p2.Time.Sub(p1.Time)) * frac)),
		LatDeg:   p1.LatDeg + (p2.LatDeg-p1.LatDeg)*frac,
		AltKm:    p1.AltKm + (p2.AltKm-p1.AltKm)*frac,
		SpeedKmS: p1.SpeedKmS + (p2.SpeedKmS-p1.SpeedKmS)*frac,
	}
	a, b := mid, mid
	a.LonDeg = edge1
	b.LonDeg = edge2
	return a, b
}
