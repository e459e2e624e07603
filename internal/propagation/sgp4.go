package propagation

import (
	"fmt"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/star/satmap/internal/tle"
	"github.com/star/satmap/internal/transform"
)

// SGP4 library: github.com/joshuaferrara/go-satellite (pure Go, TEME output,
// near-Earth and deep-space branches selected internally from mean motion).
//
// Propagate() takes the Satellite by value, so the model's error code for a
// given call is not visible. Failures are detected from the output instead:
// non-finite or empty vectors are a breakdown, and a radius inside one Earth
// radius is the model's own decay condition (mrt < 1).

// earthRadiusKm is the WGS-72 equatorial radius the model works in.
const earthRadiusKm = 6378.135

// Propagator wraps an initialised SGP4 model for one element set. It is
// immutable and safe for concurrent use.
type Propagator struct {
	sat      satellite.Satellite
	elements *tle.ElementSet
}

// New decodes lines and initialises the model. Malformed fields give a
// *tle.FormatError; a set the model rejects gives a *PropagationError.
func New(lines tle.Lines) (*Propagator, error) {
	set, err := tle.Decode(lines)
	if err != nil {
		return nil, err
	}
	return NewFromElements(set)
}

// NewFromElements initialises the model from an already decoded set.
func NewFromElements(set *tle.ElementSet) (p *Propagator, err error) {
	// The library panics on input Decode should already have rejected.
	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = &PropagationError{CatalogID: set.CatalogID, Detail: fmt.Sprint(r), Err: ErrInit}
		}
	}()

	sat := satellite.TLEToSat(set.Lines.Line1, set.Lines.Line2, satellite.GravityWGS72)
	if sat.Error != 0 {
		return nil, &PropagationError{
			CatalogID: set.CatalogID,
			Detail:    fmt.Sprintf("code=%d %s", sat.Error, sat.ErrorStr),
			Err:       ErrInit,
		}
	}
	return &Propagator{sat: sat, elements: set}, nil
}

// Elements returns the element set the model was initialised from.
func (p *Propagator) Elements() *tle.ElementSet {
	return p.elements
}

// CatalogID returns the NORAD catalog number.
func (p *Propagator) CatalogID() int {
	return p.elements.CatalogID
}

// Minutes returns the signed minutes from the element-set epoch to t.
func (p *Propagator) Minutes(t time.Time) float64 {
	return t.Sub(p.elements.Epoch).Minutes()
}

// Propagate returns the TEME state at t, truncated to the whole second (the
// model's calendar interface has one-second resolution). Deterministic:
// the same t always yields the same state.
func (p *Propagator) Propagate(t time.Time) (State, error) {
	t = t.UTC().Truncate(time.Second)
	pos, vel := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	r := transform.Vector{X: pos.X, Y: pos.Y, Z: pos.Z}
	v := transform.Vector{X: vel.X, Y: vel.Y, Z: vel.Z}

	if !r.Finite() || !v.Finite() {
		return State{}, p.fail(t, ErrBreakdown, "non-finite state vector")
	}
	radius := r.Norm()
	switch {
	case radius == 0:
		return State{}, p.fail(t, ErrBreakdown, "model returned an empty state")
	case radius < earthRadiusKm:
		return State{}, p.fail(t, ErrDecayed, fmt.Sprintf("radius %.1f km", radius))
	}

	return State{Position: r, Velocity: v, Time: t}, nil
}

func (p *Propagator) fail(t time.Time, cause error, detail string) *PropagationError {
	return &PropagationError{
		CatalogID: p.elements.CatalogID,
		Time:      t,
		Minutes:   p.Minutes(t),
		Detail:    detail,
		Err:       cause,
	}
}
