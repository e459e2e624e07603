package passes

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/star/satmap/internal/httputil"
	"github.com/star/satmap/internal/tle"
)

const visualPassesJSON = `{
  "info": {"satid": 25544, "satname": "SPACE STATION", "transactionscount": 4, "passescount": 2},
  "passes": [
    {"startAz": 307.21, "startAzCompass": "NW", "startEl": 13.08, "startUTC": 1712667600,
     "maxAz": 225.45, "maxAzCompass": "SW", "maxEl": 79.19, "maxUTC": 1712667900,
     "endAz": 132.82, "endAzCompass": "SE", "endEl": 0, "endUTC": 1712668200,
     "mag": -2.4, "duration": 600},
    {"startAz": 290.1, "startAzCompass": "WNW", "startEl": 10.2, "startUTC": 1712673600,
     "maxAz": 10.5, "maxAzCompass": "N", "maxEl": 22.4, "maxUTC": 1712673780,
     "endAz": 80.3, "endAzCompass": "E", "endEl": 0.5, "endUTC": 1712673960,
     "mag": 100000, "duration": 360}
  ]
}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testGetter() *httputil.Getter {
	return httputil.NewGetter(httputil.WithBackoff(time.Millisecond), httputil.WithMaxRetries(1))
}

func TestFetchPasses(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("apiKey")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, visualPassesJSON)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", testGetter())
	passes, err := c.FetchPasses(context.Background(), Request{
		CatalogID: 25544,
		Observer:  Observer{LatDeg: 51.5074, LonDeg: -0.1278, AltM: 35},
		Days:      3,
	})
	if err != nil {
		t.Fatalf("FetchPasses: %v", err)
	}

	if want := "/visualpasses/25544/51.5074/-0.1278/35/3/1"; gotPath != want {
		t.Errorf("path = %q, want %q", gotPath, want)
	}
	if gotKey != "secret" {
		t.Errorf("apiKey = %q", gotKey)
	}
	if len(passes) != 2 {
		t.Fatalf("got %d passes, want 2", len(passes))
	}

	p := passes[0]
	if !p.Start.Equal(time.Unix(1712667600, 0)) || !p.End.Equal(time.Unix(1712668200, 0)) {
		t.Errorf("pass window = %v .. %v", p.Start, p.End)
	}
	if p.MaxElevation != 79.19 || p.MaxCompass != "SW" {
		t.Errorf("max = %v %q", p.MaxElevation, p.MaxCompass)
	}
	if p.Duration != 10*time.Minute {
		t.Errorf("duration = %v", p.Duration)
	}
	if p.Magnitude == nil || *p.Magnitude != -2.4 {
		t.Errorf("magnitude = %v, want -2.4", p.Magnitude)
	}
	if passes[1].Magnitude != nil {
		t.Errorf("unknown magnitude should be nil, got %v", *passes[1].Magnitude)
	}
}

func TestFetchPassesNoKey(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "", testGetter())
	if c.Configured() {
		t.Error("Configured() = true without a key")
	}
	_, err := c.FetchPasses(context.Background(), Request{CatalogID: 25544})
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("err = %v, want ErrNoAPIKey", err)
	}
}

func TestFetchPassesErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"invalid key", http.StatusOK, `{"error":"Invalid API Key!"}`, tle.ErrUnauthorized},
		{"server error", http.StatusBadGateway, "", nil},
		{"bad json", http.StatusOK, "not json", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "secret", testGetter()).FetchPasses(context.Background(), Request{CatalogID: 25544})
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if strings.Contains(err.Error(), "secret") {
				t.Errorf("error leaks the API key: %v", err)
			}
			var se *httputil.StatusError
			if tt.status == http.StatusBadGateway && (!errors.As(err, &se) || se.Code != http.StatusBadGateway) {
				t.Errorf("err = %v, want StatusError 502", err)
			}
		})
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		ok   bool
	}{
		{"defaults", Request{CatalogID: 25544}, true},
		{"poles and antimeridian", Request{CatalogID: 1, Observer: Observer{LatDeg: -90, LonDeg: 180}}, true},
		{"zero id", Request{}, false},
		{"latitude", Request{CatalogID: 1, Observer: Observer{LatDeg: 90.5}}, false},
		{"longitude", Request{CatalogID: 1, Observer: Observer{LonDeg: -181}}, false},
		{"days too many", Request{CatalogID: 1, Days: 11}, false},
		{"days negative", Request{CatalogID: 1, Days: -1}, false},
		{"visibility", Request{CatalogID: 1, MinVisibility: -5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			err := req.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("err = %v, want ErrInvalidRequest", err)
			}
			if tt.ok && (req.Days != DefaultDays && tt.req.Days == 0) {
				t.Errorf("days default not applied: %d", req.Days)
			}
		})
	}
}
