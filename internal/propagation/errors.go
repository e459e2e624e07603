package propagation

import (
	"errors"
	"fmt"
	"time"
)

// Failure classes carried by PropagationError.
var (
	// ErrDecayed means the model placed the satellite below the Earth's surface.
	ErrDecayed = errors.New("orbital decay")
	// ErrBreakdown means the model produced no usable state.
	ErrBreakdown = errors.New("numerical breakdown")
	// ErrInit means the model rejected the element set at initialisation.
	ErrInit = errors.New("model initialisation failed")
)

// PropagationError is terminal for the element set it was raised for.
type PropagationError struct {
	CatalogID int
	Time      time.Time // zero for initialisation failures
	Minutes   float64   // minutes since epoch at Time
	Detail    string
	Err       error
}

func (e *PropagationError) Error() string {
	if e.Time.IsZero() {
		return fmt.Sprintf("propagating NORAD %d: %v: %s", e.CatalogID, e.Err, e.Detail)
	}
	return fmt.Sprintf("propagating NORAD %d to %s (%+.1f min from epoch): %v: %s",
		e.CatalogID, e.Time.UTC().Format(time.RFC3339), e.Minutes, e.Err, e.Detail)
}

func (e *PropagationError) Unwrap() error { return e.Err }
