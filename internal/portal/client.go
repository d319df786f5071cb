// Package portal calls the compliance portal's discovered API endpoints
// directly, riding on the cookies of an authenticated browser session.
package portal

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/talentops/bgvsync/internal/browser"
	"github.com/talentops/bgvsync/internal/model"
	"github.com/talentops/bgvsync/internal/resilience"
)

// ErrEndpointCall marks a direct API call that failed after retries. The
// fetch pipeline treats it as the cue to fall back to browser retrieval for
// that item.
var ErrEndpointCall = eris.New("portal: endpoint call failed")

// Options configures the direct API client.
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	Rate       rate.Limit
	Burst      int
}

// Client is the direct HTTP face of the portal. It sends the browser
// session's cookies and user agent so its traffic is indistinguishable from
// the session's own.
type Client struct {
	client  *http.Client
	opts    Options
	base    string
	cookie  string
	limiter *AdaptiveLimiter
	log     *zap.Logger
}

// NewClient builds a client for the portal at base using the given captured
// browser state.
func NewClient(base string, state model.StorageState, opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = browser.UserAgent
	}
	if opts.Rate == 0 {
		opts.Rate = 5
	}
	if opts.Burst == 0 {
		opts.Burst = 5
	}

	host := base
	if u, err := url.Parse(base); err == nil {
		host = u.Hostname()
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:    opts,
		base:    base,
		cookie:  browser.CookieHeader(state, host),
		limiter: NewAdaptiveLimiter(opts.Rate, opts.Burst),
		log:     zap.L().With(zap.String("component", "portal")),
	}
}

// Base returns the portal base URL the client was built for.
func (c *Client) Base() string {
	return c.base
}

func (c *Client) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "portal: create request")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
	req.Header.Set("Accept", "*/*")
	return req, nil
}

func (c *Client) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := range c.opts.MaxRetries {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "portal: rate limiter wait")
		}

		cloned := req.Clone(ctx)
		resp, err := c.client.Do(cloned)
		if err != nil {
			lastErr = err
			c.log.Warn("portal request failed, retrying",
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			c.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			_ = resp.Body.Close()
			lastErr = eris.Errorf("http 429 from %s", req.URL.String())
			c.limiter.OnRateLimit()
			c.backoff(ctx, attempt)
			continue
		}

		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			_ = resp.Body.Close()
			lastErr = eris.Errorf("http %d from %s", resp.StatusCode, req.URL.String())
			c.log.Warn("portal server error, retrying",
				zap.String("url", req.URL.String()),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			c.backoff(ctx, attempt)
			continue
		}

		c.limiter.OnSuccess()
		return resp, nil
	}

	return nil, eris.Wrapf(ErrEndpointCall, "all retries exhausted: %v", lastErr)
}

func (c *Client) backoff(ctx context.Context, attempt int) {
	base := time.Second
	maxBackoff := 30 * time.Second
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	jitter := time.Duration(rand.Int64N(int64(d) / 2))
	d = d + jitter

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Get fetches the URL and returns the response body. Non-2xx statuses are
// endpoint-call failures.
func (c *Client) Get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Wrapf(ErrEndpointCall, "unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	return resp.Body, nil
}

// GetBytes fetches the URL and returns the whole response body.
func (c *Client) GetBytes(ctx context.Context, rawURL string) ([]byte, error) {
	body, err := c.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrapf(ErrEndpointCall, "read body from %s: %v", rawURL, err)
	}
	return data, nil
}

// GetJSON fetches the URL and decodes the response into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	data, err := c.GetBytes(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(ErrEndpointCall, "decode json from %s: %v", rawURL, err)
	}
	return nil
}

// DownloadToFile fetches the URL and writes it to the given path.
func (c *Client) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := c.Get(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "portal: create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, body)
	if err != nil {
		return n, eris.Wrap(err, "portal: write file")
	}
	return n, nil
}
