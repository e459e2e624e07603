package tle

import (
	_ "embed"
	"log/slog"
	"strings"
)

// bundledTLE is the static fallback catalog shipped with the binary. Its
// element sets are stale by design and only used when retrieval fails.
//
//go:embed bundled.tle
var bundledTLE string

// Bundled returns the fallback catalog entries.
func Bundled() []Entry {
	entries, _ := Parse(strings.NewReader(bundledTLE), SourceBundled, slog.New(slog.DiscardHandler))
	return entries
}
