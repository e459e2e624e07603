package tracking

import "time"

// Clock supplies the current time to the session. Tests substitute a manual
// clock so ticks are reproducible.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }
