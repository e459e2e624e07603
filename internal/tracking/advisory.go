package tracking

import "time"

// AdvisoryKind classifies an advisory.
type AdvisoryKind string

const (
	// AdvisoryFallback: retrieval failed and a catalog or disk-cached element
	// set is in use.
	AdvisoryFallback AdvisoryKind = "retrieval_fallback"
	// AdvisoryStale: a refresh failed and the current element set was kept.
	AdvisoryStale AdvisoryKind = "retrieval_stale"
	// AdvisoryUnavailable: retrieval failed and no element set is known.
	AdvisoryUnavailable AdvisoryKind = "retrieval_unavailable"
	// AdvisoryHalted: propagation failed and the marker is frozen.
	AdvisoryHalted AdvisoryKind = "propagation_halted"
)

// Advisory is a dismissible, user-facing notice about one satellite.
type Advisory struct {
	ID        int
	CatalogID int
	Kind      AdvisoryKind
	Message   string
	RaisedAt  time.Time
}

// maxAdvisories bounds the retained list; the oldest are dropped first.
const maxAdvisories = 50
