package papersources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/helixir/publication-aggregator/internal/domain"
)

// DefaultUserAgent identifies the service to external APIs.
const DefaultUserAgent = "Helixir-PublicationAggregator/1.0"

// maxResponseBodySize caps how much of a response body Get reads.
const maxResponseBodySize = 10 << 20

// HTTPClientConfig configures an HTTPClient. Zero fields take defaults.
type HTTPClientConfig struct {
	Timeout   time.Duration
	RateLimit float64
	BurstSize int

	// MaxRetries and RetryDelay build a constant-backoff policy unless Retry
	// is set.
	MaxRetries int
	RetryDelay time.Duration
	Retry      *RetryPolicy

	UserAgent string

	// APIKey is sent in APIKeyHeader when both are set.
	APIKey       string
	APIKeyHeader string
}

func (cfg HTTPClientConfig) withDefaults() HTTPClientConfig {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 10
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return cfg
}

func (cfg HTTPClientConfig) policy() RetryPolicy {
	if cfg.Retry != nil {
		return *cfg.Retry
	}
	return RetryPolicy{
		MaxAttempts: cfg.MaxRetries + 1,
		BaseDelay:   cfg.RetryDelay,
		Backoff:     ConstantBackoff,
	}
}

// HTTPClient is the shared transport for source adapters. It throttles each
// attempt and retries 429 and 5xx responses and transport errors. It is safe
// for concurrent use.
type HTTPClient struct {
	client   *http.Client
	throttle *Throttle
	policy   RetryPolicy
	config   HTTPClientConfig
}

// NewHTTPClient builds a client from cfg.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	cfg = cfg.withDefaults()
	return &HTTPClient{
		client:   &http.Client{Timeout: cfg.Timeout},
		throttle: NewThrottle(cfg.RateLimit, cfg.BurstSize),
		policy:   cfg.policy(),
		config:   cfg,
	}
}

// retryableStatusError marks a response status worth another attempt. When
// cooled is set the throttle already holds the next attempt back.
type retryableStatusError struct {
	status int
	wait   time.Duration
	cooled bool
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("server returned status %d", e.status)
}

// Do sends req, retrying per the client's policy. A 429 carrying Retry-After
// puts the whole source into cooldown, and a 429 on the final attempt yields
// a *domain.RateLimitError. Requests with a body are resent only when
// req.GetBody is set.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}

	attempts := c.policy.Attempts()
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := rewindBody(req); err != nil {
				return nil, fmt.Errorf("cannot retry request: %w", err)
			}
		}

		resp, err := c.attempt(req)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err

		if attempt == attempts-1 {
			break
		}
		wait := c.policy.Delay(attempt)
		var statusErr *retryableStatusError
		if errors.As(err, &statusErr) {
			switch {
			case statusErr.cooled:
				wait = 0
			case statusErr.wait > 0:
				wait = statusErr.wait
			}
		}
		if err := c.policy.sleep(req.Context(), wait); err != nil {
			return nil, err
		}
	}

	var statusErr *retryableStatusError
	if errors.As(lastErr, &statusErr) {
		if statusErr.status == http.StatusTooManyRequests {
			return nil, domain.NewRateLimitError(req.URL.Host, statusErr.wait)
		}
		return nil, fmt.Errorf("max retries exhausted after %d attempts, last status: %d", attempts, statusErr.status)
	}
	return nil, lastErr
}

// attempt performs one throttled round trip. Retryable statuses come back as
// *retryableStatusError with the body drained.
func (c *HTTPClient) attempt(req *http.Request) (*http.Response, error) {
	if err := c.throttle.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if !retryableStatus(resp.StatusCode) {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	statusErr := &retryableStatusError{
		status: resp.StatusCode,
		wait:   retryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}
	if resp.StatusCode == http.StatusTooManyRequests && statusErr.wait > 0 {
		c.throttle.Cooldown(statusErr.wait)
		statusErr.cooled = true
	}
	return nil, statusErr
}

// Get performs a GET with the given headers and returns the status code and
// the body, read up to 10 MiB. Status handling is left to the caller.
func (c *HTTPClient) Get(ctx context.Context, rawURL string, headers map[string]string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code < 600)
}

// retryAfter parses a Retry-After value given in seconds or as an HTTP date.
// It returns zero when the header is absent, malformed or already past.
func retryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return 0
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func rewindBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to get request body for retry: %w", err)
	}
	req.Body = body
	return nil
}
