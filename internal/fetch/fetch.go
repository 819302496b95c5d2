package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ErrAuth marks an authentication failure (HTTP 401). It is fatal for
// the source: retrying cannot fix bad credentials.
var ErrAuth = errors.New("authentication failed")

// StatusError is a non-2xx response that was not retried away.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.Code, e.URL)
}

// retryable statuses signal transient server-side trouble.
var retryable = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int
	RequestDelay time.Duration
}

// Client is a rate-limited HTTP client with retry and backoff. One
// Client is created per crawler, so the rate limit applies per crawler
// instance rather than per remote host.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	maxRetries int
	cooldown   time.Duration
}

// NewClient creates a Client from the given options.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}

	var limiter *rate.Limiter
	if opts.RequestDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.RequestDelay), 1)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:    limiter,
		userAgent:  opts.UserAgent,
		maxRetries: opts.MaxRetries,
		cooldown:   60 * time.Second,
	}
}

// Get fetches a URL and returns the response body. Transient server
// errors are retried with exponential backoff; a run that keeps
// hitting 429 gets one last attempt after a cooldown. HTTP 401 returns
// ErrAuth immediately and other non-2xx statuses return a StatusError
// without retrying.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var lastErr error
	lastStatus := 0
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			if err := sleepCtx(ctx, backoff); err != nil {
				return nil, err
			}
		}

		body, status, err := c.doOnce(ctx, url, headers)
		if err == nil && status == 0 {
			return body, nil
		}
		if err != nil && status == 0 {
			// Connection-level failure; worth another attempt.
			lastErr = err
			lastStatus = 0
			log.Printf("fetch attempt %d/%d for %s failed: %v", attempt+1, c.maxRetries, url, err)
			continue
		}

		if status == http.StatusUnauthorized {
			return nil, fmt.Errorf("fetching %s: %w", url, ErrAuth)
		}
		if !retryable[status] {
			return nil, &StatusError{Code: status, URL: url}
		}

		lastErr = &StatusError{Code: status, URL: url}
		lastStatus = status
		log.Printf("fetch attempt %d/%d for %s got status %d", attempt+1, c.maxRetries, url, status)
	}

	// A persistent 429 means the server wants us gone for a while, not
	// forever. Cool down once and try a final time.
	if lastStatus == http.StatusTooManyRequests {
		log.Printf("rate limited by %s, cooling down for %s", url, c.cooldown)
		if err := sleepCtx(ctx, c.cooldown); err != nil {
			return nil, err
		}
		body, status, err := c.doOnce(ctx, url, headers)
		if err == nil && status == 0 {
			return body, nil
		}
		if status == http.StatusUnauthorized {
			return nil, fmt.Errorf("fetching %s: %w", url, ErrAuth)
		}
		if status != 0 {
			return nil, &StatusError{Code: status, URL: url}
		}
		return nil, err
	}

	return nil, lastErr
}

// doOnce performs a single request. A non-zero status reports a
// non-2xx response; err without status is a transport failure.
func (c *Client) doOnce(ctx context.Context, url string, headers map[string]string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("building request for %s: %w", url, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading response from %s: %w", url, err)
	}
	return body, 0, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
