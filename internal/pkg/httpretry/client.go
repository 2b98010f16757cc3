// Package httpretry wraps an HTTP client with bounded retries, full-jitter
// exponential backoff and Retry-After support for calls to flaky upstreams
// such as the blog feed.
package httpretry

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/ignite/newsletter/internal/pkg/logger"
)

// Doer executes HTTP requests. *http.Client and *Client both satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options tunes a Client. Zero fields take defaults.
type Options struct {
	MaxRetries int           // retries after the first attempt, default 3
	BaseDelay  time.Duration // default 1s
	MaxDelay   time.Duration // default 30s
}

// Client retries transient failures of an underlying Doer.
type Client struct {
	next       Doer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// New wraps next, or a 30s-timeout http.Client when next is nil.
func New(next Doer, opts Options) *Client {
	if next == nil {
		next = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	return &Client{next: next, maxRetries: opts.MaxRetries, baseDelay: opts.BaseDelay, maxDelay: opts.MaxDelay}
}

// Get issues a GET for url with ctx.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Do sends req, retrying 429 and 5xx gateway statuses and transport errors.
// Client errors are returned at once. The last retryable response is
// returned as-is so callers can read its body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var lastErr error
	var wait time.Duration

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: reset request body: %w", err)
				}
				req.Body = body
			}
			if wait <= 0 {
				wait = c.backoff(attempt)
			}
			logger.Debug("http retry", "attempt", attempt, "max", c.maxRetries,
				"method", req.Method, "host", req.URL.Host, "path", req.URL.Path, "wait", wait.String())
			if err := sleep(ctx, wait); err != nil {
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, err
			}
			wait = 0
		}

		resp, err := c.next.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}
		if !retryable(resp.StatusCode) || attempt == c.maxRetries {
			return resp, nil
		}

		wait = retryAfter(resp.Header.Get("Retry-After"), c.maxDelay)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: %s %s returned %d", req.Method, req.URL.Redacted(), resp.StatusCode)
	}
	return nil, lastErr
}

// backoff is full jitter over min(maxDelay, base*2^(attempt-1)), floored
// at 10% of the base delay.
func (c *Client) backoff(attempt int) time.Duration {
	ceiling := math.Min(float64(c.baseDelay)*math.Pow(2, float64(attempt-1)), float64(c.maxDelay))
	d := time.Duration(rand.Float64() * ceiling)
	if floor := c.baseDelay / 10; d < floor {
		d = floor
	}
	return d
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(v string, max time.Duration) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > max {
		return max
	}
	return d
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
