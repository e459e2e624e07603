// Package transform converts SGP4 output between reference frames.
//
// SGP4 produces TEME (True Equator Mean Equinox) vectors. Rotating by GMST
// alone gives the pseudo Earth-fixed frame, treated here as ECEF. Polar
// motion and the equation of the equinoxes are ignored, an error of tens of
// metres that does not show at map scale.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"math"
	"time"
)

// Vector is a Cartesian 3-vector. Units depend on context (km or km/s).
type Vector struct {
	X, Y, Z float64
}

// Norm returns the Euclidean length of v.
func (v Vector) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Finite reports whether every component is neither NaN nor infinite.
func (v Vector) Finite() bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// RotateToEarthFixed applies R3(gmst) to a TEME vector.
func RotateToEarthFixed(v Vector, gmst float64) Vector {
	cosG := math.Cos(gmst)
	sinG := math.Sin(gmst)
	return Vector{
		X: v.X*cosG + v.Y*sinG,
		Y: -v.X*sinG + v.Y*cosG,
		Z: v.Z,
	}
}

// TEMEToECEF transforms a TEME position (km) and velocity (km/s) to ECEF at t.
//
//	r_ECEF = R3(θ) r_TEME
//	v_ECEF = R3(θ) v_TEME - ω × r_ECEF
func TEMEToECEF(pos, vel Vector, t time.Time) (Vector, Vector) {
	gmst := GMST(t)
	r := RotateToEarthFixed(pos, gmst)
	v := RotateToEarthFixed(vel, gmst)

	// ω × r = [-ω y, ω x, 0]
	v.X += OmegaEarth * r.Y
	v.Y -= OmegaEarth * r.X
	return r, v
}
