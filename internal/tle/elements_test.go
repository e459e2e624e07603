package tle

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestDecode(t *testing.T) {
	set, err := Decode(Lines{Line1: issLine1, Line2: issLine2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if set.CatalogID != 25544 {
		t.Errorf("CatalogID = %d, want 25544", set.CatalogID)
	}
	if set.Designator != "98067A" {
		t.Errorf("Designator = %q, want 98067A", set.Designator)
	}
	wantEpoch := time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)
	if !set.Epoch.Equal(wantEpoch) {
		t.Errorf("Epoch = %v, want %v", set.Epoch, wantEpoch)
	}

	checks := []struct {
		name      string
		got, want float64
	}{
		{"inclination", set.Inclination, 51.64},
		{"raan", set.RAAN, 100.0},
		{"eccentricity", set.Eccentricity, 0.0001},
		{"arg perigee", set.ArgPerigee, 0},
		{"mean anomaly", set.MeanAnomaly, 0},
		{"mean motion", set.MeanMotion, 15.5},
		{"ndot", set.MeanMotionDot, 0.00016717},
		{"nddot", set.MeanMotionDDot, 0},
		{"bstar", set.BStar, 0.0001027},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > 1e-12 {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	if set.DeepSpace() {
		t.Error("ISS should be in the near-Earth regime")
	}
	period := set.Period()
	if period < 92*time.Minute || period > 94*time.Minute {
		t.Errorf("Period = %v, want ~92.9m", period)
	}
}

func TestDecodeNegativeBStar(t *testing.T) {
	l1 := issLine1[:53] + "-11606-4" + issLine1[61:]
	set, err := Decode(Lines{Line1: l1, Line2: issLine2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(set.BStar-(-0.11606e-4)) > 1e-15 {
		t.Errorf("BStar = %v, want -1.1606e-5", set.BStar)
	}
}

func TestDecodeDeepSpace(t *testing.T) {
	// Geostationary mean motion, period ~1436 minutes.
	l2 := issLine2[:52] + " 1.00270000" + issLine2[63:]
	set, err := Decode(Lines{Line1: issLine1, Line2: l2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !set.DeepSpace() {
		t.Errorf("period %v should select the deep-space branch", set.Period())
	}
}

func TestDecodeFormatErrors(t *testing.T) {
	tests := []struct {
		name  string
		l1    string
		l2    string
		field string
	}{
		{"short line 1", issLine1[:60], issLine2, ""},
		{"long line 2", issLine1, issLine2 + "0", ""},
		{"swapped lines", issLine2, issLine1, ""},
		{"mismatched ids", issLine1, starlinkLine2, ""},
		{"alpha catalog number", "1 A5544" + issLine1[7:], "2 A5544" + issLine2[7:], "catalog number"},
		{"bad epoch year", issLine1[:18] + "2x" + issLine1[20:], issLine2, "epoch year"},
		{"bad epoch day", issLine1[:20] + "1x0.50000000" + issLine1[32:], issLine2, "epoch"},
		{"bad ndot", issLine1[:33] + " .0001x717" + issLine1[43:], issLine2, "mean motion derivative"},
		{"bad bstar", issLine1[:53] + " 1x270-3" + issLine1[61:], issLine2, "bstar"},
		{"bad inclination", issLine1, issLine2[:8] + " 51.6x00" + issLine2[16:], "inclination"},
		{"inclination out of range", issLine1, issLine2[:8] + "181.0000" + issLine2[16:], "inclination"},
		{"negative eccentricity", issLine1, issLine2[:26] + "-000100" + issLine2[33:], "eccentricity"},
		{"nan mean motion", issLine1, issLine2[:52] + "        NaN" + issLine2[63:], "mean motion"},
		{"zero mean motion", issLine1, issLine2[:52] + " 0.00000000" + issLine2[63:], "mean motion"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(Lines{Line1: tt.l1, Line2: tt.l2})
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("error = %v, want *FormatError", err)
			}
			if tt.field != "" && fe.Field != tt.field {
				t.Errorf("Field = %q, want %q (%v)", fe.Field, tt.field, err)
			}
			if !strings.HasPrefix(err.Error(), "tle format") {
				t.Errorf("error text %q lacks prefix", err.Error())
			}
		})
	}
}

func TestBundledCatalog(t *testing.T) {
	entries := Bundled()
	want := map[int]string{
		25544: "ISS (ZARYA)",
		44713: "STARLINK-1007",
		20580: "HUBBLE SPACE TELESCOPE",
		33591: "NOAA 19",
		48274: "TIANGONG SPACE STATION",
		25994: "TERRA",
		39634: "SENTINEL-1A",
	}
	if len(entries) != len(want) {
		t.Fatalf("got %d bundled entries, want %d", len(entries), len(want))
	}
	for _, e := range entries {
		if want[e.CatalogID()] != e.Elements.Name {
			t.Errorf("bundled %d name = %q, want %q", e.CatalogID(), e.Elements.Name, want[e.CatalogID()])
		}
		if e.Source != SourceBundled {
			t.Errorf("bundled %d source = %q", e.CatalogID(), e.Source)
		}
	}
}
