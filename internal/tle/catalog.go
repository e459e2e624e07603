package tle

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

type catalogSnapshot struct {
	entries   map[int]Entry
	updatedAt time.Time
}

// Catalog holds the latest known element set per satellite. Reads are
// lock-free against an immutable snapshot; writers copy and swap.
type Catalog struct {
	snapshot atomic.Pointer[catalogSnapshot]
	mu       sync.Mutex // serializes writers
}

// NewCatalog creates a Catalog seeded with entries.
func NewCatalog(entries ...Entry) *Catalog {
	c := &Catalog{}
	snap := &catalogSnapshot{entries: make(map[int]Entry, len(entries)), updatedAt: time.Now()}
	for _, e := range entries {
		snap.entries[e.CatalogID()] = e
	}
	c.snapshot.Store(snap)
	return c
}

// Get returns the entry for catalogID.
func (c *Catalog) Get(catalogID int) (Entry, bool) {
	e, ok := c.snapshot.Load().entries[catalogID]
	return e, ok
}

// Put replaces the entry for the element set's catalog id.
func (c *Catalog) Put(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.snapshot.Load()
	next := &catalogSnapshot{entries: maps.Clone(old.entries), updatedAt: time.Now()}
	next.entries[e.CatalogID()] = e
	c.snapshot.Store(next)
}

// List returns all entries ordered by catalog id.
func (c *Catalog) List() []Entry {
	snap := c.snapshot.Load()
	ids := slices.Sorted(maps.Keys(snap.entries))
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, snap.entries[id])
	}
	return out
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.snapshot.Load().entries)
}

// EpochRange returns the oldest and newest element-set epochs.
func (c *Catalog) EpochRange() EpochRange {
	var r EpochRange
	for _, e := range c.snapshot.Load().entries {
		epoch := e.Elements.Epoch
		if r.Min.IsZero() || epoch.Before(r.Min) {
			r.Min = epoch
		}
		if r.Max.IsZero() || epoch.After(r.Max) {
			r.Max = epoch
		}
	}
	return r
}

// AgeSeconds returns the seconds since the catalog last changed.
func (c *Catalog) AgeSeconds() float64 {
	return time.Since(c.snapshot.Load().updatedAt).Seconds()
}
