package tle

import (
	"context"
	"fmt"
	"strings"

	"github.com/star/satmap/internal/httputil"
)

// DefaultCelestrakURL is the Celestrak GP query endpoint.
const DefaultCelestrakURL = "https://celestrak.org/NORAD/elements/gp.php"

// Celestrak fetches element sets from the Celestrak GP service in the
// two-line format (no name line).
type Celestrak struct {
	baseURL string
	getter  *httputil.Getter
}

// NewCelestrak creates a Celestrak source. An empty baseURL selects the
// public endpoint.
func NewCelestrak(baseURL string, getter *httputil.Getter) *Celestrak {
	if baseURL == "" {
		baseURL = DefaultCelestrakURL
	}
	return &Celestrak{baseURL: baseURL, getter: getter}
}

// Name implements Source.
func (c *Celestrak) Name() string { return SourceCelestrak }

// FetchElementSet implements Source.
func (c *Celestrak) FetchElementSet(ctx context.Context, catalogID int) (string, error) {
	return instrument(ctx, SourceCelestrak, catalogID, func(ctx context.Context) (string, error) {
		url := fmt.Sprintf("%s?CATNR=%d&FORMAT=2LE", c.baseURL, catalogID)
		body, err := c.getter.Get(ctx, url)
		if err != nil {
			return "", classify(err)
		}
		text := strings.TrimSpace(string(body))
		// Celestrak answers unknown ids with 200 and a plain-text notice.
		if text == "" || strings.HasPrefix(text, "No GP data found") {
			return "", ErrNotFound
		}
		return text, nil
	})
}
