package tle

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"

	starlinkLine1 = "1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9995"
	starlinkLine2 = "2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    05"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"plain", issLine1 + "\n" + issLine2},
		{"crlf", issLine1 + "\r\n" + issLine2 + "\r\n"},
		{"blank lines", "\n\n" + issLine1 + "\n\n\n" + issLine2 + "\n\n"},
		{"padding", "   " + issLine1 + "   \n\t" + issLine2 + "  "},
		{"trailing junk", issLine1 + "\n" + issLine2 + "\nextra line\nmore"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines, err := Split(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if lines.Line1 != issLine1 {
				t.Errorf("Line1 = %q, want %q", lines.Line1, issLine1)
			}
			if lines.Line2 != issLine2 {
				t.Errorf("Line2 = %q, want %q", lines.Line2, issLine2)
			}
		})
	}
}

func TestSplitDoesNotInspectFields(t *testing.T) {
	lines, err := Split("ISS (ZARYA)\n" + issLine1 + "\n" + issLine2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lines.Line1 != "ISS (ZARYA)" || lines.Line2 != issLine1 {
		t.Errorf("expected first two non-empty lines, got %q / %q", lines.Line1, lines.Line2)
	}
}

func TestSplitFormatError(t *testing.T) {
	for _, raw := range []string{"", "\n\n  \n", issLine1, "\n" + issLine1 + "\n\n"} {
		_, err := Split(raw)
		var fe *FormatError
		if !errors.As(err, &fe) {
			t.Errorf("Split(%q) error = %v, want *FormatError", raw, err)
		}
	}
}

func TestSplitRoundTrip(t *testing.T) {
	raw := issLine1 + "\n" + issLine2
	lines, err := Split(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := lines.String(); got != raw {
		t.Errorf("round trip = %q, want %q", got, raw)
	}

	again, err := Split(lines.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != lines {
		t.Errorf("second split = %+v, want %+v", again, lines)
	}
}

func TestParseCatalogFile(t *testing.T) {
	data := "ISS (ZARYA)\n" + issLine1 + "\n" + issLine2 + "\n" +
		"BROKEN\nnot a tle line\n" +
		"STARLINK-1007\n" + starlinkLine1 + "\n" + starlinkLine2 + "\n"

	entries, err := Parse(strings.NewReader(data), SourceFile, testLogger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].CatalogID() != 25544 || entries[0].Elements.Name != "ISS (ZARYA)" {
		t.Errorf("first entry = %d %q", entries[0].CatalogID(), entries[0].Elements.Name)
	}
	if entries[1].CatalogID() != 44713 || entries[1].Source != SourceFile {
		t.Errorf("second entry = %d from %q", entries[1].CatalogID(), entries[1].Source)
	}
}

func TestParseEpoch(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"24100.50000000", time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)},
		{"24001.00000000", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"56001.25000000", time.Date(2056, 1, 1, 6, 0, 0, 0, time.UTC)},
		{"57001.00000000", time.Date(1957, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"98365.75000000", time.Date(1998, 12, 31, 18, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseEpoch(tt.in)
		if err != nil {
			t.Errorf("parseEpoch(%q) error: %v", tt.in, err)
			continue
		}
		if d := got.Sub(tt.want); d < -time.Millisecond || d > time.Millisecond {
			t.Errorf("parseEpoch(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "24", "xx100.5", "24abc", "24000.50000000"} {
		if _, err := parseEpoch(bad); err == nil {
			t.Errorf("parseEpoch(%q) expected error", bad)
		}
	}
}
