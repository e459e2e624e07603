package tle

import (
	"errors"
	"fmt"
	"time"
)

// Retrieval failure classes. RetrievalError wraps one of these when the
// upstream response identifies the cause.
var (
	ErrNotFound     = errors.New("element set not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnavailable  = errors.New("service unavailable")
)

// FormatError reports element-set text that cannot be split or decoded.
type FormatError struct {
	Line   int // 1 or 2; 0 when the text as a whole is malformed
	Field  string
	Reason string
}

func (e *FormatError) Error() string {
	switch {
	case e.Line == 0:
		return "tle format: " + e.Reason
	case e.Field == "":
		return fmt.Sprintf("tle format: line %d: %s", e.Line, e.Reason)
	default:
		return fmt.Sprintf("tle format: line %d %s: %s", e.Line, e.Field, e.Reason)
	}
}

// RetrievalError reports a failed element-set fetch from an external source.
type RetrievalError struct {
	Source    string
	CatalogID int
	Err       error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieving NORAD %d from %s: %v", e.CatalogID, e.Source, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// CachedError reports a failed retrieval for which an earlier copy of the
// element set text is still on disk. It unwraps to the upstream failure, so
// callers that cannot use old data treat it as any other error.
type CachedError struct {
	Text     string
	CachedAt time.Time
	Err      error
}

func (e *CachedError) Error() string {
	return fmt.Sprintf("%v (copy cached at %s)", e.Err, e.CachedAt.UTC().Format(time.RFC3339))
}

func (e *CachedError) Unwrap() error { return e.Err }

func formatErr(line int, field, format string, args ...any) *FormatError {
	return &FormatError{Line: line, Field: field, Reason: fmt.Sprintf(format, args...)}
}
