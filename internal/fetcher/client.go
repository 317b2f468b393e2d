package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/ForumHarvest/internal/observability"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// Client is the access layer used by discovery and extraction. It adds
// per-host throttling and retries on top of a Fetcher, and routes each
// surface to its configured backend.
type Client struct {
	fallback Fetcher
	fetchers map[types.Surface]Fetcher
	throttle *Throttle
	policy   RetryPolicy
	sleep    Sleeper
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithSurfaceFetcher routes one surface to a dedicated backend.
func WithSurfaceFetcher(s types.Surface, f Fetcher) ClientOption {
	return func(c *Client) { c.fetchers[s] = f }
}

func WithThrottle(t *Throttle) ClientOption {
	return func(c *Client) { c.throttle = t }
}

func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) { c.policy = p }
}

// WithSleeper replaces the sleep used between retries.
func WithSleeper(s Sleeper) ClientOption {
	return func(c *Client) { c.sleep = s }
}

func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient wraps f, which serves every surface without a dedicated backend.
func NewClient(f Fetcher, logger *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		fallback: f,
		fetchers: make(map[types.Surface]Fetcher),
		policy:   RetryPolicy{MaxRetries: 3, Multiplier: 2},
		sleep:    SleepContext,
		logger:   logger.With("component", "client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches rawURL for the given surface.
func (c *Client) Get(ctx context.Context, rawURL string, surface types.Surface) (*types.Response, error) {
	req, err := types.NewRequest(rawURL, surface)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Kind: types.KindNetwork, Err: err}
	}
	return c.Do(ctx, req)
}

// Do sends req, retrying retryable failures per the policy. Every error is a
// *types.FetchError; exhausted retries wrap types.ErrMaxRetries.
func (c *Client) Do(ctx context.Context, req *types.Request) (*types.Response, error) {
	f := c.fetcherFor(req.Surface)
	surface := string(req.Surface)

	var (
		last  *types.FetchError
		delay time.Duration
	)
	for attempt := 1; ; attempt++ {
		if last != nil {
			delay = c.policy.Backoff(attempt-1, last.RetryAfter, delay)
			c.metrics.RecordRetry()
			c.logger.Warn("retrying request",
				"url", req.URLString(),
				"retry", attempt-1,
				"max_retries", c.policy.MaxRetries,
				"delay", delay,
				"error", last.Err,
			)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, &types.FetchError{URL: req.URLString(), Kind: types.KindTimeout, Err: err, Attempts: attempt - 1}
			}
		}

		if err := c.throttle.Wait(ctx, req.Host()); err != nil {
			return nil, &types.FetchError{URL: req.URLString(), Kind: types.KindTimeout, Err: err, Attempts: attempt - 1}
		}

		resp, err := f.Fetch(ctx, req)
		if err == nil {
			resp.Attempts = attempt
			c.metrics.RecordRequest(surface, "ok", resp.FetchDuration)
			return resp, nil
		}

		var fe *types.FetchError
		if !errors.As(err, &fe) {
			fe = &types.FetchError{URL: req.URLString(), Kind: types.KindNetwork, Err: err}
		}
		fe.Attempts = attempt

		if !fe.Retryable {
			c.metrics.RecordRequest(surface, "error", 0)
			return nil, fe
		}
		c.metrics.RecordRequest(surface, "retryable_error", 0)

		if attempt > c.policy.MaxRetries {
			return nil, &types.FetchError{
				URL:        fe.URL,
				Kind:       fe.Kind,
				StatusCode: fe.StatusCode,
				Err:        fmt.Errorf("%w after %d attempts: %v", types.ErrMaxRetries, attempt, fe.Err),
				Retryable:  true,
				RetryAfter: fe.RetryAfter,
				Attempts:   attempt,
			}
		}
		last = fe
	}
}

// Close closes every distinct backend.
func (c *Client) Close() error {
	seen := map[Fetcher]bool{}
	var errs []error
	for _, f := range append([]Fetcher{c.fallback}, c.surfaceFetchers()...) {
		if f == nil || seen[f] {
			continue
		}
		seen[f] = true
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) fetcherFor(s types.Surface) Fetcher {
	if f, ok := c.fetchers[s]; ok {
		return f
	}
	return c.fallback
}

func (c *Client) surfaceFetchers() []Fetcher {
	out := make([]Fetcher, 0, len(c.fetchers))
	for _, f := range c.fetchers {
		out = append(out, f)
	}
	return out
}
