package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Lines holds the two trimmed lines of an element set.
type Lines struct {
	Line1 string
	Line2 string
}

// String re-serializes the element set as two newline-separated lines.
func (l Lines) String() string {
	return l.Line1 + "\n" + l.Line2
}

// Split extracts the two element lines from raw text. Empty lines are
// dropped, the first two remaining lines are trimmed and returned, and
// anything after them is ignored. Field contents are not inspected.
func Split(raw string) (Lines, error) {
	var found []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		found = append(found, line)
		if len(found) == 2 {
			return Lines{Line1: found[0], Line2: found[1]}, nil
		}
	}
	return Lines{}, formatErr(0, "", "expected two non-empty lines, found %d", len(found))
}

// Parse reads 3-line NORAD TLE format (name, line 1, line 2) from r and
// returns the decodable entries. Malformed entries are skipped with a warning.
func Parse(r io.Reader, source string, logger *slog.Logger) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var entries []Entry
	for i := 0; i+2 < len(lines); {
		name := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(lines[i+1], "1 ") || !strings.HasPrefix(lines[i+2], "2 ") {
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name)
			i++
			continue
		}

		set, err := Decode(Lines{Line1: strings.TrimSpace(lines[i+1]), Line2: strings.TrimSpace(lines[i+2])})
		if err != nil {
			logger.Warn("skipping undecodable TLE entry", "name", name, "error", err)
			i += 3
			continue
		}
		set.Name = name

		entries = append(entries, Entry{Elements: set, Source: source})
		i += 3
	}

	return entries, nil
}

// parseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}
	if dayOfYear < 1 || dayOfYear >= 367 {
		return time.Time{}, fmt.Errorf("epoch day %v out of range", dayOfYear)
	}

	// dayOfYear is 1-based: day 1.0 is Jan 1 00:00.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}
