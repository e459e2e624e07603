package tle

import "time"

// Source names recorded on catalog entries.
const (
	SourceBundled   = "bundled"
	SourceFile      = "file"
	SourceCache     = "cache"
	SourceCelestrak = "celestrak"
	SourceN2YO      = "n2yo"
)

// Entry is one satellite's most recent element set and where it came from.
type Entry struct {
	Elements  *ElementSet
	Source    string
	FetchedAt time.Time
}

// CatalogID returns the entry's NORAD catalog number.
func (e Entry) CatalogID() int {
	return e.Elements.CatalogID
}

// EpochRange represents the minimum and maximum epoch times in the catalog.
type EpochRange struct {
	Min time.Time
	Max time.Time
}
