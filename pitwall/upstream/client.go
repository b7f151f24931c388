package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/ZanzyTHEbar/pitwall/pitwall/config"
	"github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness/ports"
)

var (
	// ErrNotFound is returned when the upstream has no data for the request.
	ErrNotFound = errors.New("upstream: not found")
	// ErrUnavailable is returned for data the upstream does not publish.
	ErrUnavailable = errors.New("upstream: unavailable")
)

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream: %s returned HTTP %d", e.URL, e.Status)
}

// Client is the shared GET helper behind every upstream source. Responses are
// rate limited, retried on transient failures and memoized for a TTL.
type Client struct {
	http     *http.Client
	cache    ports.Cache
	limiter  ports.RateLimiter
	cacheTTL int
	retries  uint64
	backoff  time.Duration
	logger   zerolog.Logger
}

// Options configures a Client. Nil cache and limiter disable those layers.
type Options struct {
	Timeout  time.Duration
	Cache    ports.Cache
	CacheTTL time.Duration
	Limiter  ports.RateLimiter
	Retries  uint64
	Backoff  time.Duration
	Logger   zerolog.Logger
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}
	return &Client{
		http:     &http.Client{Timeout: opts.Timeout},
		cache:    opts.Cache,
		limiter:  opts.Limiter,
		cacheTTL: int(opts.CacheTTL / time.Second),
		retries:  opts.Retries,
		backoff:  opts.Backoff,
		logger:   opts.Logger.With().Str("component", "upstream").Logger(),
	}
}

// NewClientFromConfig wires an LRU response cache and a blocking token bucket
// from the upstream config section.
func NewClientFromConfig(cfg *config.UpstreamConfig, logger zerolog.Logger) *Client {
	return NewClient(Options{
		Timeout:  cfg.HTTPTimeout(),
		Cache:    adapters.NewLRUCache(cfg.CacheCapacity),
		CacheTTL: time.Duration(cfg.CacheTTLSeconds) * time.Second,
		Limiter:  adapters.NewBlockingTokenBucket(cfg.RateLimitCapacity, cfg.RateLimitRefill),
		Retries:  2,
		Logger:   logger,
	})
}

// GetJSON fetches url and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	if c.cache != nil {
		if body, ok := c.cache.Get(ctx, url); ok {
			return json.Unmarshal(body, out)
		}
	}

	body, err := c.getJSON(ctx, url, out)
	if err != nil {
		return err
	}
	if c.cache != nil && c.cacheTTL > 0 {
		_ = c.cache.Set(ctx, url, body, c.cacheTTL)
	}
	return nil
}

// GetJSONFresh is GetJSON without the response cache, for data that changes
// between polls. It is still rate limited and retried.
func (c *Client) GetJSONFresh(ctx context.Context, url string, out any) error {
	_, err := c.getJSON(ctx, url, out)
	return err
}

func (c *Client) getJSON(ctx context.Context, url string, out any) ([]byte, error) {
	body, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("upstream: decode %s: %w", url, err)
	}
	return body, nil
}

// Do sends a prepared request through the limiter and returns the body.
// Used for non-cacheable calls such as search POSTs.
func (c *Client) Do(req *http.Request) ([]byte, error) {
	if err := c.acquire(req.Context(), req.URL.Host); err != nil {
		return nil, err
	}
	return c.roundTrip(req)
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	b := retry.WithMaxRetries(c.retries, retry.NewExponential(c.backoff))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		if err := c.acquire(ctx, req.URL.Host); err != nil {
			return err
		}

		body, err = c.roundTrip(req)
		if err == nil {
			return nil
		}

		if errors.Is(err, ErrNotFound) {
			return err
		}
		var se *StatusError
		if errors.As(err, &se) && se.Status < 500 && se.Status != http.StatusTooManyRequests {
			return err
		}
		c.logger.Debug().Err(err).Str("url", url).Msg("retrying upstream request")
		return retry.RetryableError(err)
	})
	return body, err
}

func (c *Client) acquire(ctx context.Context, key string) error {
	if c.limiter == nil {
		return nil
	}
	release, err := c.limiter.Acquire(ctx, key)
	if err != nil {
		return fmt.Errorf("upstream: rate limit: %w", err)
	}
	release()
	return nil
}

func (c *Client) roundTrip(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: %s: %w", req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, req.URL.Redacted())
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: req.URL.Redacted(), Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("upstream: read %s: %w", req.URL.Redacted(), err)
	}
	return body, nil
}
