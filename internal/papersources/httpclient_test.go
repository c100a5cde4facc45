package papersources

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/publication-aggregator/internal/domain"
)

// noSleep records retry delays without waiting.
func noSleep(delays *[]time.Duration) SleepFunc {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func newTestClient(policy RetryPolicy) *HTTPClient {
	return NewHTTPClient(HTTPClientConfig{RateLimit: 1000, BurstSize: 100, Retry: &policy})
}

func TestNewHTTPClient_Defaults(t *testing.T) {
	c := NewHTTPClient(HTTPClientConfig{})

	assert.Equal(t, 10*time.Second, c.client.Timeout)
	assert.Equal(t, DefaultUserAgent, c.config.UserAgent)
	assert.Equal(t, 4, c.policy.Attempts())
	assert.Equal(t, time.Second, c.policy.Delay(2))
	require.NotNil(t, c.throttle)
}

func TestHTTPClient_Headers(t *testing.T) {
	tests := []struct {
		name      string
		cfg       HTTPClientConfig
		requestUA string
		wantUA    string
		wantKey   string
	}{
		{name: "default user agent", wantUA: DefaultUserAgent},
		{name: "configured user agent", cfg: HTTPClientConfig{UserAgent: "pubagg-test/1.0"}, wantUA: "pubagg-test/1.0"},
		{name: "request user agent wins", requestUA: "custom/2.0", wantUA: "custom/2.0"},
		{name: "api key header", cfg: HTTPClientConfig{APIKey: "secret", APIKeyHeader: "x-api-key"}, wantUA: DefaultUserAgent, wantKey: "secret"},
		{name: "api key without header name", cfg: HTTPClientConfig{APIKey: "secret"}, wantUA: DefaultUserAgent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUA, gotKey string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUA = r.Header.Get("User-Agent")
				gotKey = r.Header.Get("x-api-key")
			}))
			defer srv.Close()

			req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
			require.NoError(t, err)
			if tt.requestUA != "" {
				req.Header.Set("User-Agent", tt.requestUA)
			}

			resp, err := NewHTTPClient(tt.cfg).Do(req)
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, tt.wantUA, gotUA)
			assert.Equal(t, tt.wantKey, gotKey)
		})
	}
}

func TestHTTPClient_RetriesStatuses(t *testing.T) {
	tests := []struct {
		name      string
		failWith  int
		failures  int32
		wantCalls int32
		wantErr   string
		wantCode  int
	}{
		{name: "429 then success", failWith: http.StatusTooManyRequests, failures: 1, wantCalls: 2, wantCode: http.StatusOK},
		{name: "502 then success", failWith: http.StatusBadGateway, failures: 2, wantCalls: 3, wantCode: http.StatusOK},
		{name: "503 exhausted", failWith: http.StatusServiceUnavailable, failures: 10, wantCalls: 3, wantErr: "max retries exhausted after 3 attempts, last status: 503"},
		{name: "404 is final", failWith: http.StatusNotFound, failures: 10, wantCalls: 1, wantCode: http.StatusNotFound},
		{name: "400 is final", failWith: http.StatusBadRequest, failures: 10, wantCalls: 1, wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) <= tt.failures {
					w.WriteHeader(tt.failWith)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			var delays []time.Duration
			client := newTestClient(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Sleep: noSleep(&delays)})

			req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
			require.NoError(t, err)
			resp, err := client.Do(req)

			assert.Equal(t, tt.wantCalls, calls.Load())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.wantCode, resp.StatusCode)
		})
	}
}

func TestHTTPClient_InjectedPolicy(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var delays []time.Duration
	client := newTestClient(RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Backoff:     ExponentialBackoff,
		Sleep:       noSleep(&delays),
	})

	_, _, err := client.Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestHTTPClient_RetryAfter(t *testing.T) {
	t.Run("503 delay follows the header", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.Header().Set("Retry-After", "7")
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		var delays []time.Duration
		client := newTestClient(RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, Sleep: noSleep(&delays)})

		status, _, err := client.Get(context.Background(), srv.URL, nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, []time.Duration{7 * time.Second}, delays)
	})

	t.Run("429 puts the source into cooldown", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		var delays []time.Duration
		client := newTestClient(RetryPolicy{MaxAttempts: 2, BaseDelay: time.Hour, Sleep: noSleep(&delays)})

		start := time.Now()
		status, _, err := client.Get(context.Background(), srv.URL, nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, status)
		assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
		assert.Equal(t, []time.Duration{0}, delays, "the throttle owns the wait")
	})
}

func TestHTTPClient_RateLimitExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var delays []time.Duration
	_, _, err := newTestClient(RetryPolicy{MaxAttempts: 2, Sleep: noSleep(&delays)}).Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	var rlErr *domain.RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, strings.TrimPrefix(srv.URL, "http://"), rlErr.Source)
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "empty", value: "", want: 0},
		{name: "seconds", value: "5", want: 5 * time.Second},
		{name: "zero seconds", value: "0", want: 0},
		{name: "negative seconds", value: "-3", want: 0},
		{name: "http date", value: now.Add(30 * time.Second).Format(http.TimeFormat), want: 30 * time.Second},
		{name: "past date", value: now.Add(-time.Minute).Format(http.TimeFormat), want: 0},
		{name: "garbage", value: "soon", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryAfter(tt.value, now))
		})
	}
}

func TestRetryableStatus(t *testing.T) {
	for code, want := range map[int]bool{
		http.StatusOK:                  false,
		http.StatusNotFound:            false,
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusGatewayTimeout:      true,
	} {
		assert.Equal(t, want, retryableStatus(code), http.StatusText(code))
	}
}

func TestHTTPClient_Cancellation(t *testing.T) {
	t.Run("cancelled before send", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, _, err := newTestClient(RetryPolicy{MaxAttempts: 3}).Get(ctx, srv.URL, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("cancelled during retry wait", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, _, err := newTestClient(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Minute}).Get(ctx, srv.URL, nil)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestHTTPClient_ResendsBody(t *testing.T) {
	var calls atomic.Int32
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(data))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"ids":["W1"]}`))
	require.NoError(t, err)

	var delays []time.Duration
	resp, err := newTestClient(RetryPolicy{MaxAttempts: 2, Sleep: noSleep(&delays)}).Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{`{"ids":["W1"]}`, `{"ids":["W1"]}`}, bodies)
}

func TestHTTPClient_Get(t *testing.T) {
	var accept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"missing"}`))
	}))
	defer srv.Close()

	status, body, err := newTestClient(RetryPolicy{MaxAttempts: 1}).
		Get(context.Background(), srv.URL, map[string]string{"Accept": "application/json"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, `{"error":"missing"}`, string(body))
	assert.Equal(t, "application/json", accept)
}
