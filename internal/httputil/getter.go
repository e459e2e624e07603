package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"sync"
	"time"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxRetries   = 3
	defaultBackoff      = time.Second
	defaultMaxBodyBytes = 1 << 20
	defaultUserAgent    = "satmap/1.0"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.Code, e.URL)
}

// retryable reports whether a request failing with err is worth repeating.
// Transport errors, 429 and 5xx are; other client errors are not.
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return !errors.Is(err, errBodyTooLarge)
}

var errBodyTooLarge = errors.New("response exceeds byte limit")

// Getter performs rate-limited GET requests with bounded retries and a
// response size cap. Safe for concurrent use.
type Getter struct {
	client       *http.Client
	userAgent    string
	minInterval  time.Duration
	maxRetries   int
	backoff      time.Duration
	maxBodyBytes int64

	mu   sync.Mutex
	next time.Time // earliest start of the next request
}

// GetterOption configures a Getter.
type GetterOption func(*Getter)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) GetterOption {
	return func(g *Getter) { g.client = c }
}

// WithMinInterval sets the minimum spacing between request starts.
func WithMinInterval(d time.Duration) GetterOption {
	return func(g *Getter) { g.minInterval = d }
}

// WithMaxRetries sets how many times a failed request is repeated.
func WithMaxRetries(n int) GetterOption {
	return func(g *Getter) { g.maxRetries = n }
}

// WithBackoff sets the initial retry delay; it doubles on each attempt.
func WithBackoff(d time.Duration) GetterOption {
	return func(g *Getter) { g.backoff = d }
}

// WithMaxBodyBytes caps the accepted response size.
func WithMaxBodyBytes(n int64) GetterOption {
	return func(g *Getter) { g.maxBodyBytes = n }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) GetterOption {
	return func(g *Getter) { g.userAgent = ua }
}

// NewGetter creates a Getter.
func NewGetter(opts ...GetterOption) *Getter {
	g := &Getter{
		client:       &http.Client{Timeout: defaultTimeout},
		userAgent:    defaultUserAgent,
		maxRetries:   defaultMaxRetries,
		backoff:      defaultBackoff,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Get fetches url and returns the response body.
func (g *Getter) Get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			delay := g.backoff << (attempt - 1)
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		if err := g.waitTurn(ctx); err != nil {
			return nil, err
		}

		body, err := g.do(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("after %d retries: %w", g.maxRetries, lastErr)
}

// waitTurn reserves the next request slot and sleeps until it starts.
func (g *Getter) waitTurn(ctx context.Context) error {
	if g.minInterval <= 0 {
		return nil
	}
	g.mu.Lock()
	now := time.Now()
	start := g.next
	if start.Before(now) {
		start = now
	}
	g.next = start.Add(g.minInterval)
	g.mu.Unlock()

	return sleep(ctx, time.Until(start))
}

func (g *Getter) do(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		var ue *neturl.Error
		if errors.As(err, &ue) {
			ue.URL = redact(req)
		}
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, URL: redact(req)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, g.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if int64(len(body)) > g.maxBodyBytes {
		return nil, fmt.Errorf("%w of %d", errBodyTooLarge, g.maxBodyBytes)
	}
	return body, nil
}

// redact strips the query string so API keys never reach logs.
func redact(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	return u.String()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
