package openalex

import (
	"context"
	"encoding/json"
	"errors"
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
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultPerPage is the page size for works listings (API maximum).
	DefaultPerPage = 200

	// DefaultMaxPages bounds cursor pagination per author.
	DefaultMaxPages = 5

	// DefaultAuthorCandidates is how many author search hits are considered.
	DefaultAuthorCandidates = 10

	// sourceName is the name used in errors, logs and metrics.
	sourceName = "OpenAlex"

	doiPrefix        = "https://doi.org/"
	openAlexIDPrefix = "https://openalex.org/"
)

// DefaultAuthorRetry retries author search three times with 1s, 2s backoff.
func DefaultAuthorRetry() papersources.RetryPolicy {
	return papersources.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Backoff:     papersources.ExponentialBackoff,
		Retryable: func(err error) bool {
			return !errors.Is(err, domain.ErrNotFound)
		},
	}
}

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL is the OpenAlex API base URL.
	BaseURL string

	// Email is the contact email for the polite pool.
	Email string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// PerPage is the works page size (max 200).
	PerPage int

	// MaxPages bounds how many works pages are read per author.
	MaxPages int

	// AuthorCandidates is the per-page size of author searches.
	AuthorCandidates int

	// AuthorRetry is the retry policy wrapped around author search.
	// A zero MaxAttempts selects DefaultAuthorRetry.
	AuthorRetry papersources.RetryPolicy

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// applyDefaults sets default values for unset configuration fields.
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
	if c.PerPage <= 0 || c.PerPage > DefaultPerPage {
		c.PerPage = DefaultPerPage
	}
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.AuthorCandidates <= 0 {
		c.AuthorCandidates = DefaultAuthorCandidates
	}
	if c.AuthorRetry.MaxAttempts == 0 {
		c.AuthorRetry = DefaultAuthorRetry()
	}
}

// Client talks to the OpenAlex API.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

// Ensure Client implements the source capability interfaces.
var (
	_ papersources.WorkSource     = (*Client)(nil)
	_ papersources.AuthorSearcher = (*Client)(nil)
	_ papersources.CitationLookup = (*Client)(nil)
)

// New creates a new OpenAlex client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	userAgent := papersources.DefaultUserAgent
	if cfg.Email != "" {
		userAgent += " (mailto:" + cfg.Email + ")"
	}

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		MaxRetries: 1,
		UserAgent:  userAgent,
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new OpenAlex client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Label returns the provenance label for OpenAlex candidates.
func (c *Client) Label() domain.SourceLabel {
	return domain.SourceOpenAlex
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// SearchAuthor resolves a free-text name to one OpenAlex author.
// An exact case-insensitive display name match wins; otherwise the candidate
// with the highest cited_by_count is chosen. Non-200 responses are retried
// according to the configured AuthorRetry policy.
func (c *Client) SearchAuthor(ctx context.Context, name string) (*papersources.AuthorMatch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewValidationError("name", "author name is required")
	}

	query := url.Values{}
	query.Set("search", name)
	query.Set("per-page", strconv.Itoa(c.config.AuthorCandidates))
	reqURL, err := c.buildURL("/authors", query)
	if err != nil {
		return nil, err
	}

	var resp AuthorsResponse
	_, err = c.config.AuthorRetry.Do(ctx, func(ctx context.Context, _ int) error {
		resp = AuthorsResponse{}
		return c.getJSON(ctx, reqURL, "author search", name, &resp)
	})
	if err != nil {
		return nil, err
	}

	best := pickAuthor(name, resp.Results)
	if best == nil {
		return nil, domain.NewNotFoundError("openalex author", name)
	}

	return &papersources.AuthorMatch{
		ID:           normalizeOpenAlexID(best.ID),
		DisplayName:  best.DisplayName,
		ORCID:        domain.NormalizeORCID(best.ORCID),
		CitedByCount: best.CitedByCount,
		WorksCount:   best.WorksCount,
		HIndex:       best.SummaryStats.HIndex,
		I10Index:     best.SummaryStats.I10Index,
	}, nil
}

// pickAuthor applies the exact-name-first, most-cited-second rule.
func pickAuthor(name string, authors []Author) *Author {
	if len(authors) == 0 {
		return nil
	}
	for i := range authors {
		if strings.EqualFold(strings.TrimSpace(authors[i].DisplayName), name) {
			return &authors[i]
		}
	}
	best := &authors[0]
	for i := 1; i < len(authors); i++ {
		if authors[i].CitedByCount > best.CitedByCount {
			best = &authors[i]
		}
	}
	return best
}

// Fetch lists the works of the identity's OpenAlex author inside the window.
// When the identity carries no OpenAlex id, the name is resolved first.
func (c *Client) Fetch(ctx context.Context, params papersources.FetchParams) ([]papersources.Candidate, error) {
	authorID := normalizeOpenAlexID(params.Identity.OpenAlexID)
	if authorID == "" {
		match, err := c.SearchAuthor(ctx, params.Identity.Name)
		if err != nil {
			return nil, err
		}
		authorID = match.ID
	}

	works, err := c.AuthorWorks(ctx, authorID, params.Window)
	if err != nil {
		return nil, err
	}

	candidates := make([]papersources.Candidate, 0, len(works))
	for i := range works {
		if !params.Window.ContainsYear(works[i].PublicationYear) {
			continue
		}
		candidates = append(candidates, workToCandidate(&works[i]))
	}
	return candidates, nil
}

// AuthorWorks pages through an author's works published inside the window's years.
func (c *Client) AuthorWorks(ctx context.Context, authorID string, window domain.DateWindow) ([]Work, error) {
	var works []Work
	cursor := "*"

	for page := 0; page < c.config.MaxPages && cursor != ""; page++ {
		query := url.Values{}
		query.Set("filter", fmt.Sprintf("author.id:%s,publication_year:%d-%d", authorID, window.StartYear(), window.EndYear()))
		query.Set("per-page", strconv.Itoa(c.config.PerPage))
		query.Set("cursor", cursor)
		reqURL, err := c.buildURL("/works", query)
		if err != nil {
			return nil, err
		}

		var resp WorksResponse
		if err := c.getJSON(ctx, reqURL, "works", authorID, &resp); err != nil {
			if page > 0 {
				// Keep what earlier pages produced.
				return works, nil
			}
			return nil, err
		}

		works = append(works, resp.Results...)
		if len(resp.Results) == 0 {
			break
		}
		cursor = resp.Meta.NextCursor
	}

	return works, nil
}

// WorkByDOI fetches a single work by DOI.
func (c *Client) WorkByDOI(ctx context.Context, doi string) (*Work, error) {
	doi = normalizeDOI(doi)
	if doi == "" {
		return nil, domain.NewValidationError("doi", "doi is required")
	}

	reqURL, err := c.buildURL("/works/"+doiPrefix+doi, url.Values{})
	if err != nil {
		return nil, err
	}

	var work Work
	if err := c.getJSON(ctx, reqURL, "work", doi, &work); err != nil {
		return nil, err
	}
	return &work, nil
}

// CitationCountByDOI returns the OpenAlex cited_by_count for a DOI.
func (c *Client) CitationCountByDOI(ctx context.Context, doi string) (int, error) {
	work, err := c.WorkByDOI(ctx, doi)
	if err != nil {
		return 0, err
	}
	return work.CitedByCount, nil
}

// PublisherByDOI returns the work's publisher, preferring the legacy host
// venue publisher, then the primary source's host organization.
func (c *Client) PublisherByDOI(ctx context.Context, doi string) (string, error) {
	work, err := c.WorkByDOI(ctx, doi)
	if err != nil {
		return "", err
	}
	if p := workPublisher(work); p != "" {
		return p, nil
	}
	return "", domain.NewNotFoundError("openalex publisher", doi)
}

// buildURL joins a path and query onto the configured base URL, adding the
// polite-pool mailto parameter when configured.
func (c *Client) buildURL(path string, query url.Values) (string, error) {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	base.Path = strings.TrimRight(base.Path, "/") + path
	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}
	base.RawQuery = query.Encode()
	return base.String(), nil
}

// getJSON performs a GET and decodes a 200 response into out.
func (c *Client) getJSON(ctx context.Context, reqURL, entity, id string, out any) error {
	status, body, err := c.httpClient.Get(ctx, reqURL, map[string]string{"Accept": "application/json"})
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}

	switch {
	case status == http.StatusNotFound:
		return domain.NewNotFoundError("openalex "+entity, id)
	case status != http.StatusOK:
		return domain.NewExternalAPIError(sourceName, status, truncate(string(body), 512), nil)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return domain.NewExternalAPIError(sourceName, status, "decoding response", fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err))
	}
	return nil
}

// workToCandidate converts an OpenAlex Work to a raw candidate.
func workToCandidate(work *Work) papersources.Candidate {
	title := work.DisplayName
	if title == "" {
		title = work.Title
	}

	authors := make([]domain.Author, 0, len(work.Authorships))
	for _, a := range work.Authorships {
		if strings.TrimSpace(a.Author.DisplayName) == "" {
			continue
		}
		authors = append(authors, domain.Author{
			Name:        strings.TrimSpace(a.Author.DisplayName),
			Affiliation: authorshipAffiliation(a),
			ORCID:       domain.NormalizeORCID(a.Author.ORCID),
		})
	}

	venue := ""
	if work.PrimaryLocation != nil && work.PrimaryLocation.Source != nil {
		venue = work.PrimaryLocation.Source.DisplayName
	}
	if venue == "" && work.HostVenue != nil {
		venue = work.HostVenue.DisplayName
	}
	publisher := workPublisher(work)
	if venue == "" {
		venue = publisher
	}

	c := papersources.Candidate{
		Source:         domain.SourceOpenAlex,
		RawType:        work.Type,
		Kind:           MapWorkType(work.Type),
		Title:          title,
		DOI:            work.DOI,
		Year:           work.PublicationYear,
		RawDate:        work.PublicationDate,
		AuthorList:     authors,
		Publisher:      publisher,
		CitationFields: map[string]string{"cited_by_count": strconv.Itoa(work.CitedByCount)},
		CitationOrigin: domain.SourceOpenAlex,
	}

	switch c.Kind {
	case domain.KindJournal:
		c.JournalTitle = venue
	case domain.KindBook:
		c.BookTitle = title
	case domain.KindChapter:
		c.ChapterTitle = title
		c.BookTitle = venue
	}
	return c
}

// MapWorkType maps an OpenAlex work type onto a publication kind.
// article and journal-article are journals, book is a book, and every
// other type is treated as a chapter.
func MapWorkType(t string) domain.PublicationKind {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "article", "journal-article":
		return domain.KindJournal
	case "book":
		return domain.KindBook
	default:
		return domain.KindChapter
	}
}

func authorshipAffiliation(a Authorship) string {
	if a.RawAffiliationString != "" {
		return a.RawAffiliationString
	}
	if len(a.RawAffiliationStrings) > 0 {
		return strings.Join(a.RawAffiliationStrings, "; ")
	}
	names := make([]string, 0, len(a.Institutions))
	for _, inst := range a.Institutions {
		if inst.DisplayName != "" {
			names = append(names, inst.DisplayName)
		}
	}
	return strings.Join(names, "; ")
}

func workPublisher(work *Work) string {
	if work.HostVenue != nil && work.HostVenue.Publisher != "" {
		return work.HostVenue.Publisher
	}
	if work.PrimaryLocation != nil && work.PrimaryLocation.Source != nil {
		return work.PrimaryLocation.Source.HostOrganizationName
	}
	return ""
}

// normalizeDOI strips the https://doi.org/ prefix from DOIs and returns lowercase.
func normalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	doi = strings.TrimPrefix(doi, doiPrefix)
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	doi = strings.TrimPrefix(doi, "doi:")
	return strings.ToLower(strings.TrimSpace(doi))
}

// normalizeOpenAlexID extracts the short ID from full OpenAlex URLs.
func normalizeOpenAlexID(id string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(id), openAlexIDPrefix))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
