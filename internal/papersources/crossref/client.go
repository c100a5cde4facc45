package crossref

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/publication-aggregator/internal/domain"
	"github.com/helixir/publication-aggregator/internal/papersources"
)

const (
	// DefaultBaseURL is the default CrossRef API base URL.
	DefaultBaseURL = "https://api.crossref.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	DefaultRateLimit = 5.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultRows is the number of works requested per author search.
	DefaultRows = 100

	sourceName = "CrossRef"
)

// Config holds configuration for the CrossRef client.
type Config struct {
	// BaseURL is the CrossRef API base URL.
	BaseURL string

	// Mailto is the contact address for the polite pool.
	Mailto string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// Rows is the number of works requested per author search.
	Rows int

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
	if c.Rows <= 0 {
		c.Rows = DefaultRows
	}
}

// Client talks to the CrossRef REST API.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	citations  papersources.CitationChain
}

var _ papersources.WorkSource = (*Client)(nil)

// New creates a new CrossRef client. citations is consulted for each DOI
// before falling back to CrossRef's own is-referenced-by-count.
func New(cfg Config, citations papersources.CitationChain) *Client {
	cfg.applyDefaults()

	userAgent := papersources.DefaultUserAgent
	if cfg.Mailto != "" {
		userAgent += " (mailto:" + cfg.Mailto + ")"
	}

	return NewWithHTTPClient(cfg, papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		UserAgent: userAgent,
	}), citations)
}

// NewWithHTTPClient creates a new CrossRef client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient, citations papersources.CitationChain) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		citations:  citations,
	}
}

// Label returns the provenance label for CrossRef candidates.
func (c *Client) Label() domain.SourceLabel {
	return domain.SourceCrossRef
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Fetch searches works by author name and keeps those whose published-print
// year falls inside the window. Works without a published-print year are
// dropped. Candidates are not filtered by name here; CrossRef's author query
// is fuzzy and callers apply their own matching policy.
func (c *Client) Fetch(ctx context.Context, params papersources.FetchParams) ([]papersources.Candidate, error) {
	name := strings.TrimSpace(params.Identity.Name)
	if name == "" {
		return nil, domain.NewValidationError("name", "author name is required")
	}

	query := url.Values{}
	query.Set("query.author", name)
	query.Set("rows", strconv.Itoa(c.config.Rows))
	reqURL, err := c.buildURL("/works", query)
	if err != nil {
		return nil, err
	}

	var resp WorksResponse
	if err := c.getJSON(ctx, reqURL, "works", name, &resp); err != nil {
		return nil, err
	}

	candidates := make([]papersources.Candidate, 0, len(resp.Message.Items))
	for i := range resp.Message.Items {
		work := &resp.Message.Items[i]
		year, _, _ := work.PublishedPrint.Parts()
		if year == 0 || !params.Window.ContainsYear(year) {
			continue
		}
		candidates = append(candidates, c.workToCandidate(ctx, work))
	}
	return candidates, nil
}

// WorkByDOI fetches a single work.
func (c *Client) WorkByDOI(ctx context.Context, doi string) (*Work, error) {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return nil, domain.NewValidationError("doi", "doi is required")
	}

	reqURL, err := c.buildURL("/works/"+doi, url.Values{})
	if err != nil {
		return nil, err
	}

	var resp WorkResponse
	if err := c.getJSON(ctx, reqURL, "work", doi, &resp); err != nil {
		return nil, err
	}
	return &resp.Message, nil
}

// AuthorsByDOI returns the work's authors with affiliations.
func (c *Client) AuthorsByDOI(ctx context.Context, doi string) ([]domain.Author, error) {
	work, err := c.WorkByDOI(ctx, doi)
	if err != nil {
		return nil, err
	}
	authors := convertAuthors(work.Author)
	if len(authors) == 0 {
		return nil, domain.NewNotFoundError("crossref authors", doi)
	}
	return authors, nil
}

// PublisherByDOI returns the work's publisher.
func (c *Client) PublisherByDOI(ctx context.Context, doi string) (string, error) {
	work, err := c.WorkByDOI(ctx, doi)
	if err != nil {
		return "", err
	}
	if work.Publisher == "" {
		return "", domain.NewNotFoundError("crossref publisher", doi)
	}
	return work.Publisher, nil
}

func (c *Client) buildURL(path string, query url.Values) (string, error) {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	base.Path = strings.TrimRight(base.Path, "/") + path
	if c.config.Mailto != "" {
		query.Set("mailto", c.config.Mailto)
	}
	base.RawQuery = query.Encode()
	return base.String(), nil
}

func (c *Client) getJSON(ctx context.Context, reqURL, entity, id string, out any) error {
	status, body, err := c.httpClient.Get(ctx, reqURL, map[string]string{"Accept": "application/json"})
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}

	switch {
	case status == http.StatusNotFound:
		return domain.NewNotFoundError("crossref "+entity, id)
	case status != http.StatusOK:
		msg := string(body)
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return domain.NewExternalAPIError(sourceName, status, msg, nil)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return domain.NewExternalAPIError(sourceName, status, "decoding response", fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err))
	}
	return nil
}

// workToCandidate converts a CrossRef work into a journal candidate.
func (c *Client) workToCandidate(ctx context.Context, work *Work) papersources.Candidate {
	year, month, day := work.PublishedPrint.Parts()

	title := "Untitled"
	if len(work.Title) > 0 && strings.TrimSpace(work.Title[0]) != "" {
		title = strings.TrimSpace(work.Title[0])
	}

	journal := work.Publisher
	if len(work.ContainerTitle) > 0 && work.ContainerTitle[0] != "" {
		journal = work.ContainerTitle[0]
	}

	count := work.IsReferencedByCount
	origin := domain.SourceCrossRef
	if n, from, ok := c.citations.Lookup(ctx, work.DOI); ok {
		count, origin = n, from
	}

	return papersources.Candidate{
		Source:         domain.SourceCrossRef,
		RawType:        "journal-article",
		Kind:           domain.KindJournal,
		Title:          title,
		DOI:            work.DOI,
		Year:           year,
		Month:          month,
		Day:            day,
		AuthorList:     convertAuthors(work.Author),
		JournalTitle:   journal,
		Publisher:      work.Publisher,
		CitationFields: map[string]string{"citation_count": strconv.Itoa(count)},
		CitationOrigin: origin,
	}
}

func convertAuthors(in []Author) []domain.Author {
	out := make([]domain.Author, 0, len(in))
	for _, a := range in {
		name := strings.TrimSpace(a.Given + " " + a.Family)
		if name == "" {
			name = strings.TrimSpace(a.Name)
		}
		if name == "" {
			continue
		}
		affs := make([]string, 0, len(a.Affiliation))
		for _, aff := range a.Affiliation {
			if aff.Name != "" {
				affs = append(affs, aff.Name)
			}
		}
		out = append(out, domain.Author{
			Name:        name,
			Affiliation: strings.Join(affs, "; "),
			ORCID:       domain.NormalizeORCID(a.ORCID),
		})
	}
	return out
}
