// Package stemformatics is the HTTP client for the Stemformatics data API
// (api.stemformatics.org). GET responses are cached by request fingerprint
// when a cache is attached, transient upstream failures are retried with
// exponential backoff, and every failure is classified into a fault kind.
package stemformatics

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/effective-security/xlog"

	"github.com/stemformatics/mcp/faults"
	"github.com/stemformatics/mcp/metrics"
	"github.com/stemformatics/mcp/store"
)

var logger = xlog.NewPackageLogger("github.com/stemformatics/mcp", "stemformatics")

const (
	// DefaultBaseURL is the public Stemformatics API.
	DefaultBaseURL = "https://api.stemformatics.org"

	// DefaultTimeout bounds a single upstream request.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the number of additional attempts after the
	// first failed request.
	DefaultMaxRetries = 3
)

// Doer performs a HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for the Stemformatics API.
type Client struct {
	baseURL    string
	apiKey     string
	useAuth    bool
	timeout    time.Duration
	maxRetries uint64
	httpClient Doer
	cache      store.Cache
}

// Option is an option for the Stemformatics client.
type Option func(*Client)

// WithAPIKey enables bearer authentication with the given key.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
		c.useAuth = key != ""
	}
}

// WithHTTPClient replaces the HTTP client, typically for tests.
func WithHTTPClient(hc Doer) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds each upstream request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxRetries sets how many times a transient failure is retried.
func WithMaxRetries(n uint64) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithCache attaches a result cache; responses are memoized by request
// fingerprint.
func WithCache(cache store.Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// New returns a new Stemformatics client.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		httpClient: http.DefaultClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches an API endpoint and returns the raw response body. When a
// cache is attached the body is served from and stored into the cache;
// concurrent requests for the same endpoint and parameters share one fetch.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if c.cache == nil {
		return c.fetch(ctx, endpoint, params)
	}
	fp := store.Fingerprint(endpoint, params)
	return c.cache.GetOrFetch(ctx, fp, func(ctx context.Context) ([]byte, error) {
		return c.fetch(ctx, endpoint, params)
	})
}

// getJSON fetches an endpoint and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	body, err := c.Get(ctx, endpoint, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return faults.Wrap(faults.Parse, err, "unparsable response from %s", endpoint)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	u := c.baseURL + "/" + strings.TrimPrefix(endpoint, "/")
	if len(params) > 0 {
		u = u + "?" + params.Encode()
	}

	var body []byte
	op := func() error {
		var err error
		body, err = c.request(ctx, u)
		return err
	}
	notify := func(err error, next time.Duration) {
		metrics.RecordUpstreamRetry()
		logger.KV(xlog.DEBUG,
			"reason", "upstream_retry",
			"endpoint", endpoint,
			"next", next.String(),
			"err", err.Error())
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		metrics.RecordUpstreamError()
		return nil, err
	}
	return body, nil
}

// request performs a single attempt. Transient failures come back as plain
// errors so the backoff policy retries them; anything wrapped in
// backoff.Permanent fails the fetch immediately.
func (c *Client) request(ctx context.Context, u string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(faults.Wrap(faults.Internal, err, "failed to build request"))
	}
	req.Header.Set("Accept", "application/json")
	if c.useAuth {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, faults.Wrap(faults.Timeout, ctxErr, "request timed out")
		}
		return nil, faults.Wrap(faults.Upstream, err, "request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(faults.New(faults.Auth, "upstream rejected credentials: status %d", resp.StatusCode))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, backoff.Permanent(faults.New(faults.Upstream, "upstream request failed: status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, faults.New(faults.Upstream, "upstream unavailable: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, faults.Wrap(faults.Upstream, err, "failed to read response body")
	}
	return body, nil
}
