// Package passes looks up visible passes of a satellite over an observer
// from the N2YO visualpasses endpoint and attaches the sub-satellite track
// for each pass from the local propagator.
package passes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/star/satmap/internal/httputil"
	"github.com/star/satmap/internal/tle"
)

const (
	DefaultDays          = 10
	MaxDays              = 10
	DefaultMinVisibility = 1 // seconds
	maxMinVisibility     = 3600

	// unknownMagnitude is what N2YO reports when it has no brightness estimate.
	unknownMagnitude = 100000
)

var (
	ErrInvalidRequest = errors.New("invalid pass request")
	ErrNoAPIKey       = errors.New("no N2YO API key configured")
)

// Observer is a ground location. Altitude is in metres above sea level.
type Observer struct {
	LatDeg float64
	LonDeg float64
	AltM   float64
}

// Request describes one pass lookup.
type Request struct {
	CatalogID     int
	Observer      Observer
	Days          int // 1..10
	MinVisibility int // seconds of visibility required
}

// Validate checks ranges and fills defaults.
func (r *Request) Validate() error {
	if r.CatalogID <= 0 {
		return fmt.Errorf("%w: catalog id %d", ErrInvalidRequest, r.CatalogID)
	}
	if r.Observer.LatDeg < -90 || r.Observer.LatDeg > 90 {
		return fmt.Errorf("%w: latitude %v outside [-90, 90]", ErrInvalidRequest, r.Observer.LatDeg)
	}
	if r.Observer.LonDeg < -180 || r.Observer.LonDeg > 180 {
		return fmt.Errorf("%w: longitude %v outside [-180, 180]", ErrInvalidRequest, r.Observer.LonDeg)
	}
	if r.Days == 0 {
		r.Days = DefaultDays
	}
	if r.Days < 1 || r.Days > MaxDays {
		return fmt.Errorf("%w: days %d outside [1, %d]", ErrInvalidRequest, r.Days, MaxDays)
	}
	if r.MinVisibility == 0 {
		r.MinVisibility = DefaultMinVisibility
	}
	if r.MinVisibility < 1 || r.MinVisibility > maxMinVisibility {
		return fmt.Errorf("%w: min visibility %d outside [1, %d]", ErrInvalidRequest, r.MinVisibility, maxMinVisibility)
	}
	return nil
}

// Pass is one visible pass. Azimuths and elevations are in degrees.
type Pass struct {
	Start          time.Time
	StartAzimuth   float64
	StartCompass   string
	StartElevation float64
	Max            time.Time
	MaxAzimuth     float64
	MaxCompass     string
	MaxElevation   float64
	End            time.Time
	EndAzimuth     float64
	EndCompass     string
	EndElevation   float64
	Duration       time.Duration
	Magnitude      *float64 // nil when unknown
	GroundTrack    []TrackPoint
}

// TrackPoint is a sub-satellite point during a pass.
type TrackPoint struct {
	Time   time.Time
	LatDeg float64
	LonDeg float64
	AltKm  float64
}

type visualPassesResponse struct {
	Info struct {
		SatID       int    `json:"satid"`
		SatName     string `json:"satname"`
		PassesCount int    `json:"passescount"`
	} `json:"info"`
	Passes []struct {
		StartAz        float64  `json:"startAz"`
		StartAzCompass string   `json:"startAzCompass"`
		StartEl        float64  `json:"startEl"`
		StartUTC       int64    `json:"startUTC"`
		MaxAz          float64  `json:"maxAz"`
		MaxAzCompass   string   `json:"maxAzCompass"`
		MaxEl          float64  `json:"maxEl"`
		MaxUTC         int64    `json:"maxUTC"`
		EndAz          float64  `json:"endAz"`
		EndAzCompass   string   `json:"endAzCompass"`
		EndEl          float64  `json:"endEl"`
		EndUTC         int64    `json:"endUTC"`
		Mag            *float64 `json:"mag"`
		Duration       int      `json:"duration"`
	} `json:"passes"`
	Error string `json:"error"`
}

// Client queries the N2YO visualpasses endpoint.
type Client struct {
	baseURL string
	apiKey  string
	getter  *httputil.Getter
}

// NewClient creates a Client. An empty baseURL selects the public endpoint.
func NewClient(baseURL, apiKey string, getter *httputil.Getter) *Client {
	if baseURL == "" {
		baseURL = tle.DefaultN2YOURL
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, getter: getter}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// FetchPasses returns the passes N2YO predicts for req, in time order.
func (c *Client) FetchPasses(ctx context.Context, req Request) ([]Pass, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	u := fmt.Sprintf("%s/visualpasses/%d/%s/%s/%s/%d/%d?apiKey=%s",
		c.baseURL, req.CatalogID,
		formatCoord(req.Observer.LatDeg), formatCoord(req.Observer.LonDeg), formatCoord(req.Observer.AltM),
		req.Days, req.MinVisibility, url.QueryEscape(c.apiKey))

	body, err := c.getter.Get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetching passes for NORAD %d: %w", req.CatalogID, err)
	}

	var resp visualPassesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding passes response: %w", err)
	}
	if resp.Error != "" {
		if strings.Contains(strings.ToLower(resp.Error), "api key") {
			return nil, fmt.Errorf("%w: %s", tle.ErrUnauthorized, resp.Error)
		}
		return nil, fmt.Errorf("n2yo: %s", resp.Error)
	}

	passes := make([]Pass, 0, len(resp.Passes))
	for _, p := range resp.Passes {
		pass := Pass{
			Start:          time.Unix(p.StartUTC, 0).UTC(),
			StartAzimuth:   p.StartAz,
			StartCompass:   p.StartAzCompass,
			StartElevation: p.StartEl,
			Max:            time.Unix(p.MaxUTC, 0).UTC(),
			MaxAzimuth:     p.MaxAz,
			MaxCompass:     p.MaxAzCompass,
			MaxElevation:   p.MaxEl,
			End:            time.Unix(p.EndUTC, 0).UTC(),
			EndAzimuth:     p.EndAz,
			EndCompass:     p.EndAzCompass,
			EndElevation:   p.EndEl,
			Duration:       time.Duration(p.Duration) * time.Second,
		}
		if p.Mag != nil && *p.Mag < unknownMagnitude {
			m := *p.Mag
			pass.Magnitude = &m
		}
		passes = append(passes, pass)
	}
	return passes, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
