// Package httpretry wraps an HTTP client with retries, exponential backoff
// and full jitter for calls to email provider APIs.
package httpretry

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/ignite/sequence-engine/internal/pkg/logger"
)

// Doer executes HTTP requests. *http.Client and *Client both satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client retries requests that fail with a network error or a retryable
// status (429, 500, 502, 503, 504).
type Client struct {
	doer       Doer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	log        *logger.Logger
}

// New wraps doer. A nil doer uses an http.Client with a 30s timeout and a
// non-positive maxRetries selects 3.
func New(doer Doer, maxRetries int) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Client{
		doer:       doer,
		maxRetries: maxRetries,
		baseDelay:  500 * time.Millisecond,
		maxDelay:   10 * time.Second,
		log:        logger.Default().With("component", "httpretry"),
	}
}

// WithBackoff overrides the backoff bounds.
func (c *Client) WithBackoff(base, max time.Duration) *Client {
	c.baseDelay = base
	c.maxDelay = max
	return c
}

// Do sends req, retrying transient failures. Requests with a body must set
// GetBody (http.NewRequest does for common readers). The final response is
// returned as-is so callers can classify the status themselves.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := req.Context().Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: reset request body: %w", err)
				}
				req.Body = body
			}

			delay := c.backoff(attempt)
			c.log.Warn("retrying request",
				"attempt", attempt, "max", c.maxRetries,
				"method", req.Method, "host", req.URL.Host, "path", req.URL.Path,
				"wait", delay.String(), "error", lastErr)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-req.Context().Done():
				timer.Stop()
				return nil, lastErr
			}
		}

		resp, err := c.doer.Do(req)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			continue
		}

		if !Retryable(resp.StatusCode) || attempt == c.maxRetries {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// backoff returns random(0, min(maxDelay, baseDelay*2^(attempt-1))) with a
// small floor.
func (c *Client) backoff(attempt int) time.Duration {
	exp := float64(c.baseDelay) * math.Pow(2, float64(attempt-1))
	if exp > float64(c.maxDelay) {
		exp = float64(c.maxDelay)
	}
	d := time.Duration(rand.Float64() * exp)
	if floor := c.baseDelay / 10; d < floor {
		d = floor
	}
	return d
}

// Retryable reports whether a provider status code is worth retrying.
func Retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
