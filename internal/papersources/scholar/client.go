// Package scholar reads the total citation count from a Google Scholar
// profile page.
//
// Google Scholar has no public API; the count is scraped from the profile's
// citation table and may break when the page layout changes.
package scholar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/helixir/publication-aggregator/internal/domain"
	"github.com/helixir/publication-aggregator/internal/papersources"
)

const (
	// DefaultBaseURL is the default Google Scholar base URL.
	DefaultBaseURL = "https://scholar.google.com"

	// DefaultRateLimit is the default rate limit for requests per second.
	DefaultRateLimit = 1.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 1

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultUserAgent is a desktop browser user agent; Scholar rejects
	// non-browser agents.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/85.0.4183.121 Safari/537.36"

	sourceName = "Google Scholar"
)

// Config holds configuration for the Google Scholar client.
type Config struct {
	// BaseURL is the Google Scholar base URL.
	BaseURL string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// UserAgent is sent with every request.
	UserAgent string

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
}

// Client scrapes Google Scholar profile pages.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var _ papersources.ProfileSource = (*Client)(nil)

// New creates a new Google Scholar client.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	return NewWithHTTPClient(cfg, papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		MaxRetries: 1,
		UserAgent:  cfg.UserAgent,
	}))
}

// NewWithHTTPClient creates a new Google Scholar client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// ProfileURL returns the profile page for a Scholar user id. Values that
// already point at a Scholar page are returned unchanged.
func (c *Client) ProfileURL(idOrURL string) string {
	v := strings.TrimSpace(idOrURL)
	if strings.Contains(strings.ToLower(v), "scholar.google") {
		return v
	}
	return strings.TrimRight(c.config.BaseURL, "/") + "/citations?user=" + url.QueryEscape(v) + "&hl=en"
}

// FetchCitationTotal returns the all-time citation total shown on the
// profile, or nil when the page carries no readable total.
func (c *Client) FetchCitationTotal(ctx context.Context, idOrURL string) (*int, error) {
	if !c.config.Enabled {
		return nil, domain.ErrSourceDisabled
	}
	if strings.TrimSpace(idOrURL) == "" {
		return nil, domain.NewValidationError("scholar_id", "scholar id or profile url is required")
	}

	status, body, err := c.httpClient.Get(ctx, c.ProfileURL(idOrURL), map[string]string{
		"Accept":     "text/html",
		"User-Agent": c.config.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	switch {
	case status == http.StatusNotFound:
		return nil, domain.NewNotFoundError("scholar profile", idOrURL)
	case status != http.StatusOK:
		return nil, domain.NewExternalAPIError(sourceName, status, http.StatusText(status), nil)
	}

	return ParseCitationTotal(bytes.NewReader(body))
}

// ParseCitationTotal extracts the citation total from a profile page. The
// first row of the #gsc_rsb_st table is read first; when that row has no
// value cells, the first td.gsc_rsb_std on the page is used.
func ParseCitationTotal(r io.Reader) (*int, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing scholar page: %v", domain.ErrMalformedResponse, err)
	}

	if row := doc.Find("table#gsc_rsb_st tr").First(); row.Length() > 0 {
		if cells := row.Find("td"); cells.Length() >= 2 {
			return parseCount(cells.Eq(1).Text()), nil
		}
	}

	if std := doc.Find("td.gsc_rsb_std").First(); std.Length() > 0 {
		return parseCount(std.Text()), nil
	}
	return nil, nil
}

func parseCount(text string) *int {
	text = strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	n, err := strconv.Atoi(text)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}
