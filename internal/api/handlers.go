package api

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/star/satmap/internal/groundtrack"
	"github.com/star/satmap/internal/passes"
	"github.com/star/satmap/internal/propagation"
	"github.com/star/satmap/internal/tle"
	"github.com/star/satmap/internal/tracking"
)

const (
	defaultTrackDuration = 90 * time.Minute
	defaultTrackStep     = 60 * time.Second

	// maxTrackPoints bounds the CPU a single ground-track request may use.
	maxTrackPoints = 10000
)

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

func (h *handlers) ready() error {
	if h.deps.Catalog == nil || h.deps.Catalog.Len() == 0 {
		return errors.New("catalog holds no element sets")
	}
	return nil
}

func pathID(r *http.Request, name string) (int, error) {
	v := r.PathValue(name)
	id, err := strconv.Atoi(v)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return id, nil
}

type catalogEntryJSON struct {
	NoradID        int     `json:"norad_id"`
	Name           string  `json:"name"`
	Designator     string  `json:"designator,omitempty"`
	Epoch          string  `json:"epoch"`
	AgeHours       float64 `json:"age_hours"`
	Source         string  `json:"source"`
	PeriodMinutes  float64 `json:"period_minutes"`
	InclinationDeg float64 `json:"inclination_deg"`
	DeepSpace      bool    `json:"deep_space"`
	Tracked        bool    `json:"tracked"`
}

// GET /api/v1/catalog
func (h *handlers) catalog(w http.ResponseWriter, r *http.Request) {
	now := h.deps.Now()
	tracked := make(map[int]bool)
	for _, ts := range h.deps.Session.Tracked() {
		tracked[ts.CatalogID] = true
	}

	entries := h.deps.Catalog.List()
	out := make([]catalogEntryJSON, 0, len(entries))
	for _, e := range entries {
		el := e.Elements
		out = append(out, catalogEntryJSON{
			NoradID:        el.CatalogID,
			Name:           el.Name,
			Designator:     el.Designator,
			Epoch:          el.Epoch.UTC().Format(time.RFC3339),
			AgeHours:       roundTo(el.Age(now).Hours(), 2),
			Source:         e.Source,
			PeriodMinutes:  roundTo(el.Period().Minutes(), 2),
			InclinationDeg: el.Inclination,
			DeepSpace:      el.DeepSpace(),
			Tracked:        tracked[el.CatalogID],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":      len(out),
		"satellites": out,
	})
}

type fixJSON struct {
	NoradID  int     `json:"norad_id"`
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	AltKm    float64 `json:"alt_km"`
	SpeedKmS float64 `json:"speed_km_s"`
}

// GET /api/v1/positions?t=RFC3339
func (h *handlers) positions(w http.ResponseWriter, r *http.Request) {
	t, err := parseTime(r.URL.Query().Get("t"), h.deps.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fixes, ok, failed := h.deps.Pool.PropagateAll(r.Context(), h.deps.Catalog.List(), t)
	slices.SortFunc(fixes, func(a, b propagation.Fix) int { return a.CatalogID - b.CatalogID })

	out := make([]fixJSON, 0, len(fixes))
	for _, f := range fixes {
		out = append(out, fixJSON{
			NoradID:  f.CatalogID,
			Name:     f.Name,
			Lat:      f.Point.LatDeg,
			Lon:      f.Point.LonDeg,
			AltKm:    f.Point.AltKm,
			SpeedKmS: f.SpeedKmS,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"t":         t.Format(time.RFC3339),
		"ok":        ok,
		"failed":    failed,
		"positions": out,
	})
}

type positionJSON struct {
	T        string  `json:"t"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	AltKm    float64 `json:"alt_km"`
	SpeedKmS float64 `json:"speed_km_s"`
}

type trackedJSON struct {
	NoradID       int           `json:"norad_id"`
	Name          string        `json:"name"`
	Color         string        `json:"color"`
	State         string        `json:"state"`
	ElementSource string        `json:"element_source,omitempty"`
	Epoch         string        `json:"epoch,omitempty"`
	Position      *positionJSON `json:"position,omitempty"`
	TrajectoryAt  string        `json:"trajectory_at,omitempty"`
	PastPoints    int           `json:"past_points"`
	FuturePoints  int           `json:"future_points"`
	LastError     string        `json:"last_error,omitempty"`
}

func toTrackedJSON(ts tracking.TrackedSatellite) trackedJSON {
	out := trackedJSON{
		NoradID:       ts.CatalogID,
		Name:          ts.Name,
		Color:         ts.Color,
		State:         ts.State.String(),
		ElementSource: ts.ElementSource,
		PastPoints:    ts.Past.Len(),
		FuturePoints:  ts.Future.Len(),
		LastError:     ts.LastError,
	}
	if ts.Elements != nil {
		out.Epoch = ts.Elements.Epoch.UTC().Format(time.RFC3339)
	}
	if p := ts.Position; p != nil {
		out.Position = &positionJSON{
			T:        p.Time.UTC().Format(time.RFC3339),
			Lat:      p.Point.LatDeg,
			Lon:      p.Point.LonDeg,
			AltKm:    p.Point.AltKm,
			SpeedKmS: p.SpeedKmS,
		}
	}
	if !ts.LastTrajectoryAt.IsZero() {
		out.TrajectoryAt = ts.LastTrajectoryAt.UTC().Format(time.RFC3339)
	}
	return out
}

// GET /api/v1/tracked
func (h *handlers) listTracked(w http.ResponseWriter, r *http.Request) {
	tracked := h.deps.Session.Tracked()
	out := make([]trackedJSON, 0, len(tracked))
	for _, ts := range tracked {
		out = append(out, toTrackedJSON(ts))
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/v1/tracked/{norad_id}
func (h *handlers) getTracked(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "norad_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ts, ok := h.deps.Session.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("NORAD %d is not tracked", id))
		return
	}
	writeJSON(w, http.StatusOK, toTrackedJSON(ts))
}

// PUT /api/v1/tracked/{norad_id}?name=
func (h *handlers) selectSatellite(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "norad_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status := http.StatusOK
	if h.deps.Session.Select(id, r.URL.Query().Get("name")) {
		status = http.StatusCreated
	}
	ts, _ := h.deps.Session.Get(id)
	writeJSON(w, status, toTrackedJSON(ts))
}

// DELETE /api/v1/tracked/{norad_id}
func (h *handlers) deselectSatellite(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "norad_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.deps.Session.Deselect(id) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("NORAD %d is not tracked", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type advisoryJSON struct {
	ID      int    `json:"id"`
	NoradID int    `json:"norad_id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	T       string `json:"t"`
}

// GET /api/v1/advisories
func (h *handlers) listAdvisories(w http.ResponseWriter, r *http.Request) {
	advisories := h.deps.Session.Advisories()
	out := make([]advisoryJSON, 0, len(advisories))
	for _, a := range advisories {
		out = append(out, advisoryJSON{
			ID:      a.ID,
			NoradID: a.CatalogID,
			Kind:    string(a.Kind),
			Message: a.Message,
			T:       a.RaisedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// DELETE /api/v1/advisories/{id}
func (h *handlers) dismissAdvisory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.deps.Session.DismissAdvisory(id) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no advisory %d", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// propagatorFor prefers the element set the session is using for id and
// falls back to the catalog.
func (h *handlers) propagatorFor(id int) (*propagation.Propagator, string, error) {
	if ts, ok := h.deps.Session.Get(id); ok && ts.Elements != nil {
		p, err := propagation.NewFromElements(ts.Elements)
		return p, ts.ElementSource, err
	}
	if e, ok := h.deps.Catalog.Get(id); ok {
		p, err := propagation.NewFromElements(e.Elements)
		return p, e.Source, err
	}
	return nil, "", fmt.Errorf("NORAD %d: %w", id, tle.ErrNotFound)
}

func parseTime(v string, def time.Time) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, expected RFC 3339", v)
	}
	return t.UTC(), nil
}

func parseDuration(name, v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		if secs, aerr := strconv.Atoi(v); aerr == nil {
			return time.Duration(secs) * time.Second, nil
		}
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return d, nil
}

// GET /api/v1/propagate/{norad_id}?t=RFC3339
func (h *handlers) propagate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "norad_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := parseTime(r.URL.Query().Get("t"), h.deps.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	prop, source, err := h.propagatorFor(id)
	if err != nil {
		if errors.Is(err, propagation.ErrInit) {
			writePropagationError(w, err)
			return
		}
		writeError(w, statusFor(err), err.Error())
		return
	}
	state, err := prop.Propagate(t)
	if err != nil {
		writePropagationError(w, err)
		return
	}

	g := state.Geodetic()
	writeJSON(w, http.StatusOK, map[string]any{
		"norad_id":           id,
		"name":               prop.Elements().Name,
		"source":             source,
		"t":                  state.Time.Format(time.RFC3339),
		"minutes_from_epoch": roundTo(prop.Minutes(state.Time), 3),
		"lat":                g.LatDeg,
		"lon":                g.LonDeg,
		"alt_km":             g.AltKm,
		"speed_km_s":         state.Speed(),
		"position_teme_km":   [3]float64{state.Position.X, state.Position.Y, state.Position.Z},
		"velocity_teme_km_s": [3]float64{state.Velocity.X, state.Velocity.Y, state.Velocity.Z},
	})
}

type trackPointJSON struct {
	T     string  `json:"t"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	AltKm float64 `json:"alt_km"`
}

// GET /api/v1/groundtrack/{norad_id}?start=&duration=&step=
func (h *handlers) groundTrack(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "norad_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	start, err := parseTime(q.Get("start"), h.deps.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	duration, err := parseDuration("duration", q.Get("duration"), defaultTrackDuration)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	step, err := parseDuration("step", q.Get("step"), defaultTrackStep)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if step < time.Second || duration < 0 {
		writeError(w, http.StatusBadRequest, "step must be at least 1s and duration non-negative")
		return
	}
	if n := groundtrack.Count(duration, step); n > maxTrackPoints {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      fmt.Sprintf("request needs %d points", n),
			"max_points": maxTrackPoints,
		})
		return
	}

	prop, source, err := h.propagatorFor(id)
	if err != nil {
		if errors.Is(err, propagation.ErrInit) {
			writePropagationError(w, err)
			return
		}
		writeError(w, statusFor(err), err.Error())
		return
	}

	seg, err := groundtrack.Collect(prop, groundtrack.Future, start, duration, step)
	if err != nil {
		writePropagationError(w, err)
		return
	}

	points := make([]trackPointJSON, 0, seg.Len())
	for _, p := range seg.Points {
		points = append(points, trackPointJSON{
			T:     p.Time.UTC().Format(time.RFC3339),
			Lat:   p.LatDeg,
			Lon:   p.LonDeg,
			AltKm: p.AltKm,
		})
	}
	runs := seg.Runs()
	lines := make([][][2]float64, 0, len(runs))
	for _, run := range runs {
		line := make([][2]float64, len(run))
		for i, p := range run {
			line[i] = [2]float64{p.LatDeg, p.LonDeg}
		}
		lines = append(lines, line)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"norad_id":     id,
		"source":       source,
		"start":        start.Format(time.RFC3339),
		"step_seconds": step.Seconds(),
		"truncated":    seg.Truncated,
		"points":       points,
		"runs":         lines,
	})
}

type passJSON struct {
	Start          string           `json:"start"`
	StartAzimuth   float64          `json:"start_az"`
	StartCompass   string           `json:"start_compass"`
	StartElevation float64          `json:"start_el"`
	Max            string           `json:"max"`
	MaxAzimuth     float64          `json:"max_az"`
	MaxCompass     string           `json:"max_compass"`
	MaxElevation   float64          `json:"max_el"`
	End            string           `json:"end"`
	EndAzimuth     float64          `json:"end_az"`
	EndCompass     string           `json:"end_compass"`
	EndElevation   float64          `json:"end_el"`
	DurationSec    float64          `json:"duration_seconds"`
	Magnitude      *float64         `json:"magnitude"`
	GroundTrack    []trackPointJSON `json:"ground_track"`
}

func parseFloat(q map[string][]string, name string, required bool) (float64, error) {
	vs := q[name]
	if len(vs) == 0 || vs[0] == "" {
		if required {
			return 0, fmt.Errorf("%w: missing %s", passes.ErrInvalidRequest, name)
		}
		return 0, nil
	}
	v, err := strconv.ParseFloat(vs[0], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", passes.ErrInvalidRequest, name, vs[0])
	}
	return v, nil
}

// GET /api/v1/passes/{norad_id}?lat=&lon=&alt=&days=&min_visibility=
func (h *handlers) passes(w http.ResponseWriter, r *http.Request) {
	if h.deps.Passes == nil {
		writeError(w, http.StatusServiceUnavailable, passes.ErrNoAPIKey.Error())
		return
	}
	id, err := pathID(r, "norad_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	req := passes.Request{CatalogID: id}
	var errs []error
	var v float64
	if req.Observer.LatDeg, err = parseFloat(q, "lat", true); err != nil {
		errs = append(errs, err)
	}
	if req.Observer.LonDeg, err = parseFloat(q, "lon", true); err != nil {
		errs = append(errs, err)
	}
	if req.Observer.AltM, err = parseFloat(q, "alt", false); err != nil {
		errs = append(errs, err)
	}
	if v, err = parseFloat(q, "days", false); err != nil {
		errs = append(errs, err)
	}
	req.Days = int(v)
	if v, err = parseFloat(q, "min_visibility", false); err != nil {
		errs = append(errs, err)
	}
	req.MinVisibility = int(v)
	if err := errors.Join(errs...); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	found, err := h.deps.Passes.Passes(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status >= 500 {
			h.logger.Warn("pass lookup failed", "norad_id", id, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}

	out := make([]passJSON, 0, len(found))
	for _, p := range found {
		track := make([]trackPointJSON, 0, len(p.GroundTrack))
		for _, tp := range p.GroundTrack {
			track = append(track, trackPointJSON{
				T:     tp.Time.UTC().Format(time.RFC3339),
				Lat:   tp.LatDeg,
				Lon:   tp.LonDeg,
				AltKm: tp.AltKm,
			})
		}
		out = append(out, passJSON{
			Start:          p.Start.UTC().Format(time.RFC3339),
			StartAzimuth:   p.StartAzimuth,
			StartCompass:   p.StartCompass,
			StartElevation: p.StartElevation,
			Max:            p.Max.UTC().Format(time.RFC3339),
			MaxAzimuth:     p.MaxAzimuth,
			MaxCompass:     p.MaxCompass,
			MaxElevation:   p.MaxElevation,
			End:            p.End.UTC().Format(time.RFC3339),
			EndAzimuth:     p.EndAzimuth,
			EndCompass:     p.EndCompass,
			EndElevation:   p.EndElevation,
			DurationSec:    p.Duration.Seconds(),
			Magnitude:      p.Magnitude,
			GroundTrack:    track,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"norad_id": id,
		"count":    len(out),
		"passes":   out,
	})
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
