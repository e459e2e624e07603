package stream

import (
	"time"

	"github.com/star/satmap/internal/groundtrack"
	"github.com/star/satmap/internal/tracking"
)

// SSE message payload types. Every message carries a "type" field.

type positionMessage struct {
	Type     string  `json:"type"`
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Color    string  `json:"color"`
	T        string  `json:"t"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	AltKm    float64 `json:"alt_km"`
	SpeedKmS float64 `json:"speed_km_s"`
}

// trajectoryMessage carries each segment as antimeridian-split runs of
// [lat, lon] pairs, ready for a polyline renderer.
type trajectoryMessage struct {
	Type   string         `json:"type"`
	ID     int            `json:"id"`
	Color  string         `json:"color"`
	T      string         `json:"t"`
	Past   [][][2]float64 `json:"past"`
	Future [][][2]float64 `json:"future"`
}

type releasedMessage struct {
	Type string `json:"type"`
	ID   int    `json:"id"`
}

type advisoryMessage struct {
	Type    string `json:"type"`
	ID      int    `json:"id"`
	NoradID int    `json:"norad_id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	T       string `json:"t"`
}

func buildPositionMessage(id int, name, color string, p tracking.Position) positionMessage {
	return positionMessage{
		Type:     "position",
		ID:       id,
		Name:     name,
		Color:    color,
		T:        p.Time.UTC().Format(time.RFC3339),
		Lat:      p.Point.LatDeg,
		Lon:      p.Point.LonDeg,
		AltKm:    p.Point.AltKm,
		SpeedKmS: p.SpeedKmS,
	}
}

func buildTrajectoryMessage(id int, color string, at time.Time, past, future *groundtrack.Segment) trajectoryMessage {
	return trajectoryMessage{
		Type:   "trajectory",
		ID:     id,
		Color:  color,
		T:      at.UTC().Format(time.RFC3339),
		Past:   latLonRuns(past),
		Future: latLonRuns(future),
	}
}

func buildAdvisoryMessage(a tracking.Advisory) advisoryMessage {
	return advisoryMessage{
		Type:    "advisory",
		ID:      a.ID,
		NoradID: a.CatalogID,
		Kind:    string(a.Kind),
		Message: a.Message,
		T:       a.RaisedAt.UTC().Format(time.RFC3339),
	}
}

func latLonRuns(seg *groundtrack.Segment) [][][2]float64 {
	runs := seg.Runs()
	out := make([][][2]float64, 0, len(runs))
	for _, run := range runs {
		pts := make([][2]float64, len(run))
		for i, p := range run {
			pts[i] = [2]float64{p.LatDeg, p.LonDeg}
		}
		out = append(out, pts)
	}
	return out
}
