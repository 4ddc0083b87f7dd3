// Package fetch is the HTTP plumbing shared by the knowledge-graph client and
// the resource downloader: paced GET requests with a user agent, retried with
// exponential backoff while the failure is transient.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// maxResponseSize caps a response body.
const maxResponseSize = 256 << 20

// RetryConfig holds retry configuration for requests.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per request.
	MaxAttempts int

	// BackoffBase is the initial backoff duration.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to backoff on each retry.
	BackoffMultiplier float64

	// MaxBackoff caps the maximum backoff duration.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns the retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// Options configure a Client.
type Options struct {
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Retry             RetryConfig
}

// Client performs paced, retried GET requests.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
	retry     RetryConfig
	logger    *slog.Logger
}

// NewClient creates a client. A zero rate disables pacing.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry = DefaultRetryConfig()
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &Client{
		http:      &http.Client{Timeout: opts.Timeout},
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: opts.UserAgent,
		retry:     opts.Retry,
		logger:    logger,
	}
}

// Get fetches url and returns the body of a 200 response.
func (c *Client) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		body, err := c.get(ctx, url, header)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if IsFatal(err) || ctx.Err() != nil {
			return nil, err
		}

		if attempt < c.retry.MaxAttempts {
			backoff := c.backoff(attempt)
			c.logger.Debug("Request failed, retrying",
				"url", url,
				"attempt", attempt,
				"max_attempts", c.retry.MaxAttempts,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", c.retry.MaxAttempts, lastErr)
}

// backoff grows exponentially with +/- 25% jitter.
func (c *Client) backoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.retry.BackoffMultiplier
	}
	backoff := time.Duration(float64(c.retry.BackoffBase) * multiplier)
	if backoff > c.retry.MaxBackoff {
		backoff = c.retry.MaxBackoff
	}
	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}

func (c *Client) get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create request: %w", err))
	}
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("GET %s: %w", url, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read %s: %w", url, err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(url, resp.StatusCode, body)
	}
	return body, nil
}
