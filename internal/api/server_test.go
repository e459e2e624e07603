package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/star/satmap/internal/auth"
	"github.com/star/satmap/internal/passes"
	"github.com/star/satmap/internal/tle"
	"github.com/star/satmap/internal/tracking"
)

const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

var issEpoch = time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testCatalog(t *testing.T) *tle.Catalog {
	t.Helper()
	set, err := tle.Decode(tle.Lines{Line1: issLine1, Line2: issLine2})
	if err != nil {
		t.Fatalf("decoding ISS: %v", err)
	}
	set.Name = "ISS (ZARYA)"
	return tle.NewCatalog(tle.Entry{Elements: set, Source: tle.SourceBundled})
}

type fakeFetcher struct {
	passes []passes.Pass
	err    error
}

func (f *fakeFetcher) FetchPasses(ctx context.Context, req passes.Request) ([]passes.Pass, error) {
	return f.passes, f.err
}

type testEnv struct {
	handler http.Handler
	session *tracking.Session
	catalog *tle.Catalog
}

func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	catalog := testCatalog(t)
	session := tracking.New(tracking.DefaultConfig(), catalog, testLogger())
	deps := Deps{
		Catalog: catalog,
		Session: session,
		Now:     func() time.Time { return issEpoch.Add(time.Hour) },
	}
	if mutate != nil {
		mutate(&deps)
	}
	return &testEnv{
		handler: NewHandler(testLogger(), deps),
		session: session,
		catalog: catalog,
	}
}

func (e *testEnv) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestProbes(t *testing.T) {
	env := newTestEnv(t, nil)
	if w := env.do(t, "GET", "/healthz"); w.Code != http.StatusOK {
		t.Errorf("healthz = %d", w.Code)
	}
	if w := env.do(t, "GET", "/readyz"); w.Code != http.StatusOK {
		t.Errorf("readyz = %d", w.Code)
	}

	empty := newTestEnv(t, func(d *Deps) { d.Catalog = tle.NewCatalog() })
	if w := empty.do(t, "GET", "/readyz"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with empty catalog = %d, want 503", w.Code)
	}
}

func TestCatalog(t *testing.T) {
	env := newTestEnv(t, nil)
	env.session.Select(25544, "")

	w := env.do(t, "GET", "/api/v1/catalog")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Count      int                `json:"count"`
		Satellites []catalogEntryJSON `json:"satellites"`
	}
	decode(t, w, &resp)

	if resp.Count != 1 || len(resp.Satellites) != 1 {
		t.Fatalf("count = %d", resp.Count)
	}
	got := resp.Satellites[0]
	if got.NoradID != 25544 || got.Name != "ISS (ZARYA)" || got.Source != tle.SourceBundled {
		t.Errorf("entry = %+v", got)
	}
	if got.AgeHours != 1 {
		t.Errorf("age_hours = %v, want 1", got.AgeHours)
	}
	if got.PeriodMinutes < 92 || got.PeriodMinutes > 93 {
		t.Errorf("period_minutes = %v", got.PeriodMinutes)
	}
	if !got.Tracked {
		t.Error("tracked = false for a selected satellite")
	}
}

func TestSelectAndDeselect(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		method, target string
		want           int
	}{
		{"PUT", "/api/v1/tracked/25544?name=Station", http.StatusCreated},
		{"PUT", "/api/v1/tracked/25544", http.StatusOK},
		{"GET", "/api/v1/tracked/25544", http.StatusOK},
		{"PUT", "/api/v1/tracked/abc", http.StatusBadRequest},
		{"PUT", "/api/v1/tracked/-4", http.StatusBadRequest},
		{"DELETE", "/api/v1/tracked/25544", http.StatusNoContent},
		{"DELETE", "/api/v1/tracked/25544", http.StatusNotFound},
		{"GET", "/api/v1/tracked/25544", http.StatusNotFound},
	}
	for _, tt := range tests {
		if w := env.do(t, tt.method, tt.target); w.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.target, w.Code, tt.want)
		}
	}
}

func TestTrackedReflectsResolution(t *testing.T) {
	env := newTestEnv(t, nil)
	if w := env.do(t, "PUT", "/api/v1/tracked/25544"); w.Code != http.StatusCreated {
		t.Fatalf("select = %d", w.Code)
	}

	var before []trackedJSON
	decode(t, env.do(t, "GET", "/api/v1/tracked"), &before)
	if len(before) != 1 || before[0].State != "unresolved" {
		t.Fatalf("before resolve = %+v", before)
	}

	env.session.ResolvePending(context.Background())
	env.session.Tick(issEpoch.Add(time.Hour))

	var after []trackedJSON
	decode(t, env.do(t, "GET", "/api/v1/tracked"), &after)
	got := after[0]
	if got.State != "resolved" || got.ElementSource != tle.SourceBundled {
		t.Errorf("after resolve = %+v", got)
	}
	if got.Name != "ISS (ZARYA)" || got.Color == "" {
		t.Errorf("name/color = %q/%q", got.Name, got.Color)
	}
	if got.Position == nil {
		t.Fatal("no position after tick")
	}
	if got.Position.AltKm < 350 || got.Position.AltKm > 480 {
		t.Errorf("alt_km = %v", got.Position.AltKm)
	}
	if got.PastPoints != 31 || got.FuturePoints != 91 {
		t.Errorf("segments = %d/%d points, want 31/91", got.PastPoints, got.FuturePoints)
	}
}

func TestAdvisories(t *testing.T) {
	env := newTestEnv(t, nil)
	env.session.Select(99999, "")
	env.session.ResolvePending(context.Background())

	var list []advisoryJSON
	decode(t, env.do(t, "GET", "/api/v1/advisories"), &list)
	if len(list) != 1 {
		t.Fatalf("advisories = %+v, want one", list)
	}
	if list[0].NoradID != 99999 || list[0].Kind != string(tracking.AdvisoryUnavailable) {
		t.Errorf("advisory = %+v", list[0])
	}

	target := fmt.Sprintf("/api/v1/advisories/%d", list[0].ID)
	if w := env.do(t, "DELETE", target); w.Code != http.StatusNoContent {
		t.Errorf("dismiss = %d", w.Code)
	}
	if w := env.do(t, "DELETE", target); w.Code != http.StatusNotFound {
		t.Errorf("second dismiss = %d, want 404", w.Code)
	}
}

func TestPropagate(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, "GET", "/api/v1/propagate/25544?t=2024-04-09T12:00:00Z")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	decode(t, w, &resp)
	if resp["t"] != "2024-04-09T12:00:00Z" || resp["minutes_from_epoch"].(float64) != 0 {
		t.Errorf("time fields = %v %v", resp["t"], resp["minutes_from_epoch"])
	}
	if lat := resp["lat"].(float64); lat < -1 || lat > 1 {
		t.Errorf("lat at epoch = %v, want near the equator", lat)
	}
	if v := resp["speed_km_s"].(float64); v < 7.5 || v > 7.8 {
		t.Errorf("speed = %v", v)
	}
	if resp["source"] != tle.SourceBundled {
		t.Errorf("source = %v", resp["source"])
	}

	tests := []struct {
		target string
		want   int
	}{
		{"/api/v1/propagate/25544", http.StatusOK},
		{"/api/v1/propagate/25544?t=yesterday", http.StatusBadRequest},
		{"/api/v1/propagate/12345", http.StatusNotFound},
		{"/api/v1/propagate/x", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := env.do(t, "GET", tt.target); w.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.target, w.Code, tt.want)
		}
	}
}

// TestGroundTrackBudget verifies that requests exceeding the max points
// budget are rejected with 400 instead of consuming unbounded CPU.
func TestGroundTrackBudget(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantPoints int
	}{
		{"max budget exceeded: 24h at 1s", "?duration=24h&step=1s", http.StatusBadRequest, 0},
		{"max budget exceeded: seconds", "?duration=86400&step=5", http.StatusBadRequest, 0},
		{"within budget: default params", "", http.StatusOK, 91},
		{"within budget: 30m at 60s", "?duration=30m&step=60s", http.StatusOK, 31},
		{"zero duration", "?duration=0s", http.StatusOK, 1},
		{"sub-second step", "?step=500ms", http.StatusBadRequest, 0},
		{"bad start", "?start=soon", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "GET", "/api/v1/groundtrack/25544"+tt.query)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}

			var resp map[string]any
			decode(t, w, &resp)
			if tt.wantStatus == http.StatusBadRequest {
				if resp["error"] == nil {
					t.Error("expected error field in response")
				}
				return
			}
			if n := len(resp["points"].([]any)); n != tt.wantPoints {
				t.Errorf("points = %d, want %d", n, tt.wantPoints)
			}
			if resp["truncated"] != false {
				t.Errorf("truncated = %v", resp["truncated"])
			}
		})
	}

	w := env.do(t, "GET", "/api/v1/groundtrack/25544?duration=24h&step=1s")
	var resp map[string]any
	decode(t, w, &resp)
	if resp["max_points"] == nil {
		t.Error("expected max_points field in response")
	}
}

func TestPasses(t *testing.T) {
	mag := -2.5
	start := issEpoch.Add(2 * time.Hour)
	fetcher := &fakeFetcher{passes: []passes.Pass{{
		Start:        start,
		Max:          start.Add(3 * time.Minute),
		End:          start.Add(6 * time.Minute),
		MaxElevation: 54,
		Duration:     6 * time.Minute,
		Magnitude:    &mag,
	}}}
	env := newTestEnv(t, func(d *Deps) {
		d.Passes = passes.NewLookup(fetcher, d.Catalog, testLogger())
	})

	w := env.do(t, "GET", "/api/v1/passes/25544?lat=51.5&lon=-0.1&alt=20")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Count  int        `json:"count"`
		Passes []passJSON `json:"passes"`
	}
	decode(t, w, &resp)
	if resp.Count != 1 {
		t.Fatalf("count = %d", resp.Count)
	}
	p := resp.Passes[0]
	if p.MaxElevation != 54 || p.Magnitude == nil || *p.Magnitude != -2.5 || p.DurationSec != 360 {
		t.Errorf("pass = %+v", p)
	}
	if len(p.GroundTrack) != 37 {
		t.Errorf("ground track = %d points, want 37", len(p.GroundTrack))
	}

	if w := env.do(t, "GET", "/api/v1/passes/25544?lon=2"); w.Code != http.StatusBadRequest {
		t.Errorf("missing lat = %d, want 400", w.Code)
	}
	if w := env.do(t, "GET", "/api/v1/passes/25544?lat=95&lon=2"); w.Code != http.StatusBadRequest {
		t.Errorf("lat out of range = %d, want 400", w.Code)
	}

	fetcher.err = fmt.Errorf("upstream: %w", tle.ErrRateLimited)
	if w := env.do(t, "GET", "/api/v1/passes/25544?lat=1&lon=2"); w.Code != http.StatusTooManyRequests {
		t.Errorf("rate limited = %d, want 429", w.Code)
	}
	fetcher.err = passes.ErrNoAPIKey
	if w := env.do(t, "GET", "/api/v1/passes/25544?lat=1&lon=2"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("no key = %d, want 503", w.Code)
	}
}

func TestPassesDisabled(t *testing.T) {
	env := newTestEnv(t, nil)
	if w := env.do(t, "GET", "/api/v1/passes/25544?lat=1&lon=2"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestAuthAndWeb(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Auth = auth.Config{Enabled: true, Token: "tok"}
		d.Web = fstest.MapFS{
			"index.html": {Data: []byte("<html>satmap</html>")},
		}
	})

	if w := env.do(t, "GET", "/"); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "satmap") {
		t.Errorf("GET / = %d %q", w.Code, w.Body.String())
	}
	if w := env.do(t, "PUT", "/api/v1/tracked/25544"); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated select = %d, want 401", w.Code)
	}

	req := httptest.NewRequest("PUT", "/api/v1/tracked/25544", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("authenticated select = %d, want 201", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", passes.ErrInvalidRequest), http.StatusBadRequest},
		{passes.ErrNoAPIKey, http.StatusServiceUnavailable},
		{&tle.RetrievalError{Source: "n2yo", Err: tle.ErrNotFound}, http.StatusNotFound},
		{&tle.RetrievalError{Source: "n2yo", Err: tle.ErrUnauthorized}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{io.ErrUnexpectedEOF, http.StatusBadGateway},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestPositions(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, "GET", "/api/v1/positions?t=2024-04-09T12:00:00Z")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		OK        int       `json:"ok"`
		Failed    int       `json:"failed"`
		Positions []fixJSON `json:"positions"`
	}
	decode(t, w, &resp)
	if resp.OK != 1 || resp.Failed != 0 || len(resp.Positions) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if p := resp.Positions[0]; p.NoradID != 25544 || p.Lat < -1 || p.Lat > 1 {
		t.Errorf("position = %+v", p)
	}

	if w := env.do(t, "GET", "/api/v1/positions?t=later"); w.Code != http.StatusBadRequest {
		t.Errorf("bad t = %d, want 400", w.Code)
	}
}
