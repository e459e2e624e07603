package tle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/star/satmap/internal/httputil"
)

// DefaultN2YOURL is the N2YO REST API satellite endpoint.
const DefaultN2YOURL = "https://api.n2yo.com/rest/v1/satellite"

// N2YO fetches element sets from the N2YO REST API.
type N2YO struct {
	baseURL string
	apiKey  string
	getter  *httputil.Getter
}

// NewN2YO creates an N2YO source. An empty baseURL selects the public endpoint.
func NewN2YO(baseURL, apiKey string, getter *httputil.Getter) *N2YO {
	if baseURL == "" {
		baseURL = DefaultN2YOURL
	}
	return &N2YO{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, getter: getter}
}

type n2yoTLEResponse struct {
	Info struct {
		SatID   int    `json:"satid"`
		SatName string `json:"satname"`
	} `json:"info"`
	TLE   string `json:"tle"`
	Error string `json:"error"`
}

// Name implements Source.
func (n *N2YO) Name() string { return SourceN2YO }

// FetchElementSet implements Source. The returned text has the two lines
// separated by CRLF as N2YO delivers them.
func (n *N2YO) FetchElementSet(ctx context.Context, catalogID int) (string, error) {
	return instrument(ctx, SourceN2YO, catalogID, func(ctx context.Context) (string, error) {
		if n.apiKey == "" {
			return "", fmt.Errorf("%w: no API key configured", ErrUnauthorized)
		}
		u := fmt.Sprintf("%s/tle/%d?apiKey=%s", n.baseURL, catalogID, url.QueryEscape(n.apiKey))
		body, err := n.getter.Get(ctx, u)
		if err != nil {
			return "", classify(err)
		}

		var resp n2yoTLEResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("decoding response: %w", err)
		}
		if resp.Error != "" {
			if strings.Contains(strings.ToLower(resp.Error), "api key") {
				return "", fmt.Errorf("%w: %s", ErrUnauthorized, resp.Error)
			}
			return "", fmt.Errorf("n2yo: %s", resp.Error)
		}
		if strings.TrimSpace(resp.TLE) == "" {
			return "", ErrNotFound
		}
		return resp.TLE, nil
	})
}
