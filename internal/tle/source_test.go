package tle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/star/satmap/internal/httputil"
)

func testGetter() *httputil.Getter {
	return httputil.NewGetter(
		httputil.WithMaxRetries(1),
		httputil.WithBackoff(time.Millisecond),
	)
}

func TestCelestrakFetch(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(issLine1 + "\r\n" + issLine2 + "\r\n"))
	}))
	defer server.Close()

	src := NewCelestrak(server.URL, testGetter())
	raw, err := src.FetchElementSet(context.Background(), 25544)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery != "CATNR=25544&FORMAT=2LE" {
		t.Errorf("query = %q", gotQuery)
	}

	lines, err := Split(raw)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if lines.Line1 != issLine1 || lines.Line2 != issLine2 {
		t.Errorf("lines = %+v", lines)
	}
}

func TestCelestrakErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		calls    int32
	}{
		{"not found body", http.StatusOK, "No GP data found", ErrNotFound, 1},
		{"404", http.StatusNotFound, "", ErrNotFound, 1},
		{"429 retried", http.StatusTooManyRequests, "", ErrRateLimited, 2},
		{"503 retried", http.StatusServiceUnavailable, "", ErrUnavailable, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewCelestrak(server.URL, testGetter()).FetchElementSet(context.Background(), 99999)
			var re *RetrievalError
			if !errors.As(err, &re) {
				t.Fatalf("error = %v, want *RetrievalError", err)
			}
			if re.Source != SourceCelestrak || re.CatalogID != 99999 {
				t.Errorf("RetrievalError = %+v", re)
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("error = %v, want %v", err, tt.sentinel)
			}
			if calls.Load() != tt.calls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.calls)
			}
		})
	}
}

func TestN2YOFetch(t *testing.T) {
	var gotPath, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("apiKey")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"info":{"satid":25544,"satname":"SPACE STATION","transactionscount":1},"tle":"` +
			issLine1 + `\r\n` + issLine2 + `"}`))
	}))
	defer server.Close()

	src := NewN2YO(server.URL+"/rest/v1/satellite/", "secret key", testGetter())
	raw, err := src.FetchElementSet(context.Background(), 25544)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/rest/v1/satellite/tle/25544" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "secret key" {
		t.Errorf("apiKey = %q", gotKey)
	}
	if !strings.Contains(raw, "\r\n") {
		t.Errorf("expected CRLF-joined lines, got %q", raw)
	}

	lines, err := Split(raw)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if lines.Line1 != issLine1 || lines.Line2 != issLine2 {
		t.Errorf("lines = %+v", lines)
	}
}

func TestN2YOErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		sentinel error
	}{
		{"invalid key", `{"error":"Invalid API Key!"}`, ErrUnauthorized},
		{"empty tle", `{"info":{"satid":99999,"satname":""},"tle":""}`, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewN2YO(server.URL, "k", testGetter()).FetchElementSet(context.Background(), 99999)
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("error = %v, want %v", err, tt.sentinel)
			}
		})
	}
}

func TestN2YOWithoutKey(t *testing.T) {
	_, err := NewN2YO("http://127.0.0.1:1", "", testGetter()).FetchElementSet(context.Background(), 25544)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("error = %v, want ErrUnauthorized", err)
	}
}

func TestRetrievalErrorKeepsKeyOutOfMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := NewN2YO(server.URL, "topsecret", testGetter()).FetchElementSet(context.Background(), 25544)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("error = %v, want ErrUnauthorized", err)
	}
	if strings.Contains(err.Error(), "topsecret") {
		t.Errorf("API key leaked into error: %v", err)
	}
}
