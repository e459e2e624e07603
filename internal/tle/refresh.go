package tle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RefreshCatalog re-fetches every catalog entry from src, one request at a
// time with delay between them, and replaces each entry whose fetch
// succeeds. Entries that fail keep their previous element set unless the
// failure carries a disk-cached copy with a later epoch, which is installed
// under SourceCache. It stops early when ctx is cancelled.
func RefreshCatalog(ctx context.Context, catalog *Catalog, src Source, delay time.Duration, logger *slog.Logger) (updated, failed int) {
	entries := catalog.List()
	for i, old := range entries {
		if i > 0 && delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return updated, failed
			case <-t.C:
			}
		}
		if ctx.Err() != nil {
			return updated, failed
		}

		id := old.CatalogID()
		set, err := fetchSet(ctx, src, id)
		if err != nil {
			failed++
			logger.Warn("catalog refresh failed", "norad_id", id, "source", src.Name(), "error", err)
			if cachedSet, cachedAt, ok := newerCachedCopy(err, old); ok {
				catalog.Put(Entry{Elements: cachedSet, Source: SourceCache, FetchedAt: cachedAt})
				logger.Info("catalog entry replaced from disk cache",
					"norad_id", id,
					"epoch", cachedSet.Epoch.Format(time.RFC3339),
				)
			}
			continue
		}
		if set.Name == "" {
			set.Name = old.Elements.Name
		}
		catalog.Put(Entry{Elements: set, Source: src.Name(), FetchedAt: time.Now().UTC()})
		updated++
	}

	logger.Info("catalog refreshed",
		"source", src.Name(),
		"updated", updated,
		"failed", failed,
		"epoch_max", catalog.EpochRange().Max.Format(time.RFC3339),
	)
	return updated, failed
}

// newerCachedCopy returns the cached element set carried by err when it
// decodes and is newer than old.
func newerCachedCopy(err error, old Entry) (*ElementSet, time.Time, bool) {
	var cached *CachedError
	if !errors.As(err, &cached) {
		return nil, time.Time{}, false
	}
	set, derr := decodeFor(cached.Text, old.CatalogID())
	if derr != nil || !set.Epoch.After(old.Elements.Epoch) {
		return nil, time.Time{}, false
	}
	if set.Name == "" {
		set.Name = old.Elements.Name
	}
	return set, cached.CachedAt.UTC(), true
}

func fetchSet(ctx context.Context, src Source, catalogID int) (*ElementSet, error) {
	raw, err := src.FetchElementSet(ctx, catalogID)
	if err != nil {
		return nil, err
	}
	return decodeFor(raw, catalogID)
}

// decodeFor splits and decodes raw, which must describe catalogID.
func decodeFor(raw string, catalogID int) (*ElementSet, error) {
	lines, err := Split(raw)
	if err != nil {
		return nil, err
	}
	set, err := Decode(lines)
	if err != nil {
		return nil, err
	}
	if set.CatalogID != catalogID {
		return nil, fmt.Errorf("source returned NORAD %d for NORAD %d", set.CatalogID, catalogID)
	}
	return set, nil
}
