package semanticscholar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/helixir/publication-aggregator/internal/domain"
	"github.com/helixir/publication-aggregator/internal/papersources"
)

// Defaults match the unauthenticated tier of the Graph API.
const (
	DefaultBaseURL   = "https://api.semanticscholar.org/graph/v1"
	DefaultRateLimit = 1.0
	DefaultBurstSize = 1
	DefaultTimeout   = 10 * time.Second
)

const (
	apiKeyHeader = "x-api-key"
	sourceName   = "Semantic Scholar"
)

// Config configures the citation lookup. APIKey raises the rate limit the
// API grants but is optional.
type Config struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64
	BurstSize int
	Enabled   bool
}

func (cfg Config) withDefaults() Config {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = DefaultBurstSize
	}
	return cfg
}

// Client looks up citation counts by DOI. It is the last link of the
// citation chain, consulted when OpenAlex has no count.
type Client struct {
	httpClient *papersources.HTTPClient
	config     Config
}

var _ papersources.CitationLookup = (*Client)(nil)

// NewClient builds a client. A nil httpClient gets one sized from cfg that
// retries once.
func NewClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg = cfg.withDefaults()
	if httpClient == nil {
		httpClient = papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
			BurstSize:    cfg.BurstSize,
			MaxRetries:   1,
			APIKey:       cfg.APIKey,
			APIKeyHeader: apiKeyHeader,
		})
	}
	return &Client{httpClient: httpClient, config: cfg}
}

func (c *Client) Name() string { return sourceName }

func (c *Client) IsEnabled() bool { return c.config.Enabled }

// CitationCountByDOI returns the citationCount recorded for doi. A paper
// without the field counts as not found so the caller can fall back.
func (c *Client) CitationCountByDOI(ctx context.Context, doi string) (int, error) {
	if !c.config.Enabled {
		return 0, domain.ErrSourceDisabled
	}
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return 0, domain.NewValidationError("doi", "doi is required")
	}

	reqURL, err := c.paperURL(doi)
	if err != nil {
		return 0, err
	}
	status, body, err := c.httpClient.Get(ctx, reqURL, map[string]string{"Accept": "application/json"})
	if err != nil {
		return 0, fmt.Errorf("executing request: %w", err)
	}

	switch {
	case status == http.StatusNotFound:
		return 0, domain.NewNotFoundError("semantic scholar paper", doi)
	case status < 200 || status >= 300:
		return 0, apiError(status, body)
	}

	var paper PaperCitations
	if err := json.Unmarshal(body, &paper); err != nil {
		return 0, domain.NewExternalAPIError(sourceName, status, "decoding response",
			fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err))
	}
	if paper.CitationCount == nil {
		return 0, domain.NewNotFoundError("semantic scholar citation count", doi)
	}
	return *paper.CitationCount, nil
}

// paperURL builds /paper/DOI:{doi}?fields=citationCount under the base URL.
func (c *Client) paperURL(doi string) (string, error) {
	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/paper/DOI:" + doi
	u.RawQuery = url.Values{"fields": {"citationCount"}}.Encode()
	return u.String(), nil
}

// apiError prefers the API's own error text and falls back to the raw body.
func apiError(status int, body []byte) error {
	message := string(body)
	var resp ErrorResponse
	if json.Unmarshal(body, &resp) == nil {
		if resp.Error != "" {
			message = resp.Error
		} else if resp.Message != "" {
			message = resp.Message
		}
	}
	return domain.NewExternalAPIError(sourceName, status, message, nil)
}
