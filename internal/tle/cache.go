package tle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Cache keeps the last few retrieved element sets per satellite on disk, one
// directory per catalog id.
type Cache struct {
	dir      string
	maxFiles int
}

// NewCache creates a Cache rooted at dir keeping at most maxFiles per satellite.
func NewCache(dir string, maxFiles int) *Cache {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &Cache{
		dir:      dir,
		maxFiles: maxFiles,
	}
}

// Write saves data to a timestamped file and prunes old files beyond maxFiles.
func (c *Cache) Write(catalogID int, data []byte, ts time.Time) error {
	dir := c.satDir(catalogID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("tle_%d.txt", ts.Unix()))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}

	return c.prune(dir)
}

// LoadLatest reads the newest cache file for catalogID.
// Returns the data, the timestamp, and any error.
func (c *Cache) LoadLatest(catalogID int) ([]byte, time.Time, error) {
	dir := c.satDir(catalogID)
	files, err := listFiles(dir)
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(files) == 0 {
		return nil, time.Time{}, fmt.Errorf("no cache files for NORAD %d", catalogID)
	}

	// Files are sorted oldest first; take the last one.
	latest := files[len(files)-1]
	data, err := os.ReadFile(filepath.Join(dir, latest.name))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading cache file: %w", err)
	}

	return data, latest.ts, nil
}

func (c *Cache) satDir(catalogID int) string {
	return filepath.Join(c.dir, strconv.Itoa(catalogID))
}

type cacheFile struct {
	name string
	ts   time.Time
}

func listFiles(dir string) ([]cacheFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	var files []cacheFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "tle_") || !strings.HasSuffix(name, ".txt") {
			continue
		}
		tsStr := strings.TrimSuffix(strings.TrimPrefix(name, "tle_"), ".txt")
		unix, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			continue
		}
		files = append(files, cacheFile{name: name, ts: time.Unix(unix, 0)})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ts.Before(files[j].ts)
	})

	return files, nil
}

func (c *Cache) prune(dir string) error {
	files, err := listFiles(dir)
	if err != nil {
		return err
	}
	if len(files) <= c.maxFiles {
		return nil
	}

	for _, f := range files[:len(files)-c.maxFiles] {
		if err := os.Remove(filepath.Join(dir, f.name)); err != nil {
			return fmt.Errorf("pruning cache file %s: %w", f.name, err)
		}
	}
	return nil
}

// CachedSource writes every successful fetch through to a Cache. When the
// upstream source fails and a copy is on disk, the failure is returned as a
// *CachedError carrying that copy.
type CachedSource struct {
	src    Source
	cache  *Cache
	logger *slog.Logger
}

// NewCachedSource wraps src with cache.
func NewCachedSource(src Source, cache *Cache, logger *slog.Logger) *CachedSource {
	return &CachedSource{src: src, cache: cache, logger: logger}
}

// Name implements Source.
func (s *CachedSource) Name() string { return s.src.Name() }

// FetchElementSet implements Source.
func (s *CachedSource) FetchElementSet(ctx context.Context, catalogID int) (string, error) {
	raw, err := s.src.FetchElementSet(ctx, catalogID)
	if err == nil {
		if _, splitErr := Split(raw); splitErr == nil {
			if werr := s.cache.Write(catalogID, []byte(raw), time.Now()); werr != nil {
				s.logger.Warn("failed to write TLE cache", "norad_id", catalogID, "error", werr)
			}
		}
		return raw, nil
	}
	if errors.Is(err, context.Canceled) {
		return "", err
	}

	data, ts, cacheErr := s.cache.LoadLatest(catalogID)
	if cacheErr != nil {
		return "", err
	}
	s.logger.Debug("cached element set available after retrieval failure",
		"norad_id", catalogID,
		"cached_at", ts.UTC().Format(time.RFC3339),
		"error", err,
	)
	return "", &CachedError{Text: string(data), CachedAt: ts, Err: err}
}
