package transform

import (
	"math"
	"testing"
	"time"
)

func TestGeodeticRoundTrip(t *testing.T) {
	tests := []struct {
		lat, lon, alt float64
	}{
		{0, 0, 0},
		{0, 180, 420},
		{0, -179.999, 420},
		{51.64, 100, 415},
		{-33.9, 151.2, 0.05},
		{89.9999, 45, 800},
		{-89.9999, -120, 800},
		{90, 0, 400},
		{-90, 0, 400},
		{12.5, -75.25, 35786},
	}

	for _, tt := range tests {
		got := ECEFToGeodetic(GeodeticToECEF(tt.lat, tt.lon, tt.alt))

		if math.Abs(got.LatDeg-tt.lat) > 1e-8 {
			t.Errorf("(%v, %v, %v): lat = %.12f", tt.lat, tt.lon, tt.alt, got.LatDeg)
		}
		if math.Abs(got.AltKm-tt.alt) > 1e-6 {
			t.Errorf("(%v, %v, %v): alt = %.9f", tt.lat, tt.lon, tt.alt, got.AltKm)
		}
		if math.Abs(tt.lat) < 90 {
			want := NormalizeLongitude(tt.lon)
			if math.Abs(got.LonDeg-want) > 1e-8 {
				t.Errorf("(%v, %v, %v): lon = %.12f, want %.12f", tt.lat, tt.lon, tt.alt, got.LonDeg, want)
			}
		}
	}
}

func TestECEFToGeodeticPoles(t *testing.T) {
	const polarRadius = 6356.752314245

	tests := []struct {
		name    string
		r       Vector
		wantLat float64
	}{
		{"north pole axis", Vector{0, 0, polarRadius + 400}, 90},
		{"south pole axis", Vector{0, 0, -(polarRadius + 400)}, -90},
		{"just off axis", Vector{1e-12, -1e-12, polarRadius + 400}, 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ECEFToGeodetic(tt.r)
			if math.IsNaN(got.LatDeg) || math.IsNaN(got.LonDeg) || math.IsNaN(got.AltKm) {
				t.Fatalf("NaN in %+v", got)
			}
			if math.Abs(got.LatDeg-tt.wantLat) > 1e-9 {
				t.Errorf("lat = %v, want %v", got.LatDeg, tt.wantLat)
			}
			if math.Abs(got.AltKm-400) > 1e-6 {
				t.Errorf("alt = %v, want 400", got.AltKm)
			}
		})
	}
}

func TestECEFToGeodeticCenter(t *testing.T) {
	got := ECEFToGeodetic(Vector{})
	if math.IsNaN(got.LatDeg) || math.IsNaN(got.LonDeg) || math.IsNaN(got.AltKm) {
		t.Fatalf("NaN at Earth centre: %+v", got)
	}
}

func TestNormalizeLongitude(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{180, 180},
		{-180, 180},
		{179.5, 179.5},
		{-179.5, -179.5},
		{190, -170},
		{-190, 170},
		{360, 0},
		{540, 180},
		{-540, 180},
		{725, 5},
	}
	for _, tt := range tests {
		if got := NormalizeLongitude(tt.in); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("NormalizeLongitude(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestToGeodeticSubSatelliteLongitude(t *testing.T) {
	tm := time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)
	got := ToGeodetic(Vector{X: 6778}, tm)

	want := NormalizeLongitude(-GMST(tm) * rad2deg)
	if math.Abs(got.LonDeg-want) > 1e-9 {
		t.Errorf("lon = %v, want %v", got.LonDeg, want)
	}
	if math.Abs(got.LatDeg) > 1e-9 {
		t.Errorf("lat = %v, want 0", got.LatDeg)
	}
	if math.Abs(got.AltKm-(6778-wgs84A)) > 1e-9 {
		t.Errorf("alt = %v, want %v", got.AltKm, 6778-wgs84A)
	}
}

// TestToGeodeticRanges sweeps directions on a sphere, including points a
// hair away from the poles, and checks every output stays in range.
func TestToGeodeticRanges(t *testing.T) {
	tm := time.Date(2026, 10, 19, 6, 30, 0, 0, time.UTC)
	const radius = 6778.0

	for latStep := -90.0; latStep <= 90.0; latStep += 7.5 {
		for _, nudge := range []float64{0, 1e-9, -1e-9} {
			lat := math.Max(-90, math.Min(90, latStep+nudge)) * deg2rad
			for lonStep := -180.0; lonStep < 180.0; lonStep += 15 {
				lon := lonStep * deg2rad
				pos := Vector{
					X: radius * math.Cos(lat) * math.Cos(lon),
					Y: radius * math.Cos(lat) * math.Sin(lon),
					Z: radius * math.Sin(lat),
				}
				p := ToGeodetic(pos, tm)
				if math.IsNaN(p.LatDeg) || math.IsNaN(p.LonDeg) || math.IsNaN(p.AltKm) {
					t.Fatalf("NaN for %+v: %+v", pos, p)
				}
				if p.LatDeg < -90 || p.LatDeg > 90 {
					t.Errorf("lat %v out of range for %+v", p.LatDeg, pos)
				}
				if p.LonDeg <= -180 || p.LonDeg > 180 {
					t.Errorf("lon %v out of range for %+v", p.LonDeg, pos)
				}
			}
		}
	}
}
