package transform

import (
	"math"
	"time"
)

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378.137              // semi-major axis (km)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

const (
	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi
)

// GeodeticPoint is a position over the WGS-84 ellipsoid.
type GeodeticPoint struct {
	LatDeg float64 // [-90, 90]
	LonDeg float64 // (-180, 180]
	AltKm  float64
}

// ToGeodetic converts a TEME position (km) at t to latitude, longitude and
// height. Total for finite input.
func ToGeodetic(pos Vector, t time.Time) GeodeticPoint {
	return ECEFToGeodetic(RotateToEarthFixed(pos, GMST(t)))
}

// ECEFToGeodetic converts an ECEF position (km) to geodetic coordinates with
// Bowring's fixed-point iteration. Height uses
//
//	h = p cosφ + z sinφ - a²/N
//
// which stays well conditioned at the poles where p/cosφ does not.
func ECEFToGeodetic(r Vector) GeodeticPoint {
	p := math.Hypot(r.X, r.Y)
	lat := math.Atan2(r.Z, p*(1-wgs84E2))

	for i := 0; i < 6; i++ {
		sinLat := math.Sin(lat)
		n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		lat = math.Atan2(r.Z+wgs84E2*n*sinLat, p)
	}

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	alt := p*cosLat + r.Z*sinLat - wgs84A*wgs84A/n

	return GeodeticPoint{
		LatDeg: math.Max(-90, math.Min(90, lat*rad2deg)),
		LonDeg: NormalizeLongitude(math.Atan2(r.Y, r.X) * rad2deg),
		AltKm:  alt,
	}
}

// GeodeticToECEF converts latitude and longitude (degrees) and height (km)
// to an ECEF position in km.
func GeodeticToECEF(latDeg, lonDeg, altKm float64) Vector {
	lat := latDeg * deg2rad
	lon := lonDeg * deg2rad
	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	// Radius of curvature in the prime vertical.
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return Vector{
		X: (n + altKm) * cosLat * math.Cos(lon),
		Y: (n + altKm) * cosLat * math.Sin(lon),
		Z: (n*(1-wgs84E2) + altKm) * sinLat,
	}
}

// NormalizeLongitude maps any longitude in degrees into (-180, 180].
func NormalizeLongitude(deg float64) float64 {
	l := math.Mod(deg+180, 360)
	if l <= 0 {
		l += 360
	}
	return l - 180
}
