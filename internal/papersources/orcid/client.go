package orcid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/publication-aggregator/internal/domain"
	"github.com/helixir/publication-aggregator/internal/papersources"
	"github.com/helixir/publication-aggregator/internal/resolver"
)

const (
	// DefaultBaseURL is the default ORCID public API base URL.
	DefaultBaseURL = "https://pub.orcid.org/v3.0"

	// DefaultRateLimit is the default rate limit for requests per second.
	DefaultRateLimit = 8.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 8

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultSearchRows is the number of people requested per name search.
	DefaultSearchRows = 50

	sourceName = "ORCID"
)

// Work types ORCID reports for the supported publication kinds.
const (
	TypeJournalArticle = "journal-article"
	TypeBook           = "book"
	TypeBookChapter    = "book-chapter"
)

// Config holds configuration for the ORCID client.
type Config struct {
	// BaseURL is the ORCID public API base URL.
	BaseURL string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// SearchRows is the number of people requested per name search.
	SearchRows int

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
	if c.SearchRows <= 0 {
		c.SearchRows = DefaultSearchRows
	}
}

// AuthorLookup returns a work's authors with affiliations by DOI.
type AuthorLookup interface {
	AuthorsByDOI(ctx context.Context, doi string) ([]domain.Author, error)
}

// PublisherLookup returns a work's publisher by DOI.
type PublisherLookup interface {
	PublisherByDOI(ctx context.Context, doi string) (string, error)
}

// Enrichment holds the DOI lookups used to complete ORCID works.
// Any field may be left empty.
type Enrichment struct {
	// Authors supplies journal-article author lists.
	Authors AuthorLookup

	// Publisher supplies book and chapter publishers ahead of ORCID's own.
	Publisher PublisherLookup

	// PublisherFallback is consulted when neither Publisher nor ORCID has one.
	PublisherFallback PublisherLookup

	// Citations supplies per-DOI citation counts.
	Citations papersources.CitationChain
}

// Client talks to the ORCID public API.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	enrich     Enrichment
	logger     zerolog.Logger
}

var (
	_ papersources.WorkSource     = (*Client)(nil)
	_ papersources.AuthorSearcher = (*Client)(nil)
)

// New creates a new ORCID client.
func New(cfg Config, enrich Enrichment, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	return NewWithHTTPClient(cfg, papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		MaxRetries: 1,
	}), enrich, logger)
}

// NewWithHTTPClient creates a new ORCID client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient, enrich Enrichment, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		enrich:     enrich,
		logger:     logger.With().Str("component", "orcid").Logger(),
	}
}

// Label returns the provenance label for ORCID candidates.
func (c *Client) Label() domain.SourceLabel {
	return domain.SourceORCID
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Fetch returns the works of the identity's ORCID record. Without an ORCID
// the name is resolved through the expanded search first; an unresolvable
// name yields a NotFoundError.
func (c *Client) Fetch(ctx context.Context, params papersources.FetchParams) ([]papersources.Candidate, error) {
	orcidID := domain.NormalizeORCID(params.Identity.ORCID)
	if orcidID == "" {
		if strings.TrimSpace(params.Identity.Name) == "" {
			return nil, domain.NewValidationError("orcid", "orcid or name is required")
		}
		match, err := c.SearchAuthor(ctx, params.Identity.Name)
		if err != nil {
			return nil, err
		}
		orcidID = match.ID
	}
	return c.Works(ctx, orcidID, params.Window)
}

// Works lists the journal articles, books and chapters of an ORCID record
// whose publication year lies inside the window.
func (c *Client) Works(ctx context.Context, orcidID string, window domain.DateWindow) ([]papersources.Candidate, error) {
	orcidID = domain.NormalizeORCID(orcidID)
	if orcidID == "" {
		return nil, domain.NewValidationError("orcid", "orcid is required")
	}

	var resp WorksResponse
	if err := c.getJSON(ctx, c.config.BaseURL+"/"+url.PathEscape(orcidID)+"/works", "record", orcidID, &resp); err != nil {
		return nil, err
	}

	var profileName *string
	candidates := make([]papersources.Candidate, 0, len(resp.Group))
	for i := range resp.Group {
		group := &resp.Group[i]
		if len(group.WorkSummary) == 0 {
			continue
		}
		summary := &group.WorkSummary[0]

		year, month, day := summary.PublicationDate.parts()
		if year == 0 || !window.ContainsYear(year) {
			continue
		}

		kind, ok := MapWorkType(summary.Type)
		if !ok {
			continue
		}

		cand := papersources.Candidate{
			Source:       domain.SourceORCID,
			RawType:      summary.Type,
			Kind:         kind,
			DOI:          summaryDOI(summary),
			Year:         year,
			Month:        month,
			Day:          day,
			JournalTitle: summary.JournalTitle.get(),
		}
		title := summary.Title.get()
		if title == "" {
			title = "Untitled"
		}

		contributors := summary.Contributors.names()
		inSchool := strings.Join(contributors, "; ")
		if inSchool == "" {
			if profileName == nil {
				name, err := c.ProfileName(ctx, orcidID)
				if err != nil {
					c.logger.Debug().Err(err).Str("orcid", orcidID).Msg("profile name lookup failed")
				}
				profileName = &name
			}
			inSchool = *profileName
		}
		cand.AuthorsInSchool = inSchool

		switch kind {
		case domain.KindJournal:
			cand.ArticleTitle = title
			cand.AuthorList = c.journalAuthors(ctx, cand.DOI, group)
		case domain.KindBook:
			cand.BookTitle = title
			cand.Authors = inSchool
			cand.Publisher = c.publisher(ctx, cand.DOI, group, cand.JournalTitle, "")
		case domain.KindChapter:
			cand.ChapterTitle = title
			cand.BookTitle = bookTitle(group)
			cand.Authors = inSchool
			cand.Publisher = c.publisher(ctx, cand.DOI, group, cand.JournalTitle, cand.BookTitle)
		}

		count, origin, found := c.enrich.Citations.Lookup(ctx, cand.DOI)
		if !found {
			count, origin = 0, domain.SourceORCID
		}
		cand.CitationFields = map[string]string{"citation_count": strconv.Itoa(count)}
		cand.CitationOrigin = origin

		candidates = append(candidates, cand)
	}
	return candidates, nil
}

// SearchAuthor resolves a name to the first expanded-search result whose
// full name matches it.
func (c *Client) SearchAuthor(ctx context.Context, name string) (*papersources.AuthorMatch, error) {
	results, err := c.SearchByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, domain.NewNotFoundError("orcid author", name)
	}
	return &papersources.AuthorMatch{
		ID:          results[0].ORCIDID,
		DisplayName: results[0].FullName(),
		ORCID:       results[0].ORCIDID,
	}, nil
}

// SearchByName runs the expanded search for name and keeps the people whose
// full name equals it or contains every one of its tokens as a whole word.
func (c *Client) SearchByName(ctx context.Context, name string) ([]ExpandedResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewValidationError("name", "author name is required")
	}

	query := url.Values{}
	query.Set("q", name)
	query.Set("rows", strconv.Itoa(c.config.SearchRows))

	var resp ExpandedSearchResponse
	if err := c.getJSON(ctx, c.config.BaseURL+"/expanded-search/?"+query.Encode(), "search", name, &resp); err != nil {
		return nil, err
	}

	matches := make([]ExpandedResult, 0, len(resp.ExpandedResult))
	for _, r := range resp.ExpandedResult {
		if r.ORCIDID != "" && resolver.MatchesName(name, r.FullName()) {
			matches = append(matches, r)
		}
	}
	return matches, nil
}

// ProfileName returns the display name of an ORCID record.
func (c *Client) ProfileName(ctx context.Context, orcidID string) (string, error) {
	query := url.Values{}
	query.Set("q", "orcid:"+domain.NormalizeORCID(orcidID))
	query.Set("start", "0")
	query.Set("rows", "1")

	var resp ExpandedSearchResponse
	if err := c.getJSON(ctx, c.config.BaseURL+"/expanded-search/?"+query.Encode(), "profile", orcidID, &resp); err != nil {
		return "", err
	}
	if len(resp.ExpandedResult) == 0 {
		return "", domain.NewNotFoundError("orcid profile", orcidID)
	}
	return strings.TrimSpace(resp.ExpandedResult[0].FullName()), nil
}

// MapWorkType maps an ORCID work type to a publication kind. Unsupported
// types report false.
func MapWorkType(workType string) (domain.PublicationKind, bool) {
	switch workType {
	case TypeJournalArticle:
		return domain.KindJournal, true
	case TypeBook:
		return domain.KindBook, true
	case TypeBookChapter:
		return domain.KindChapter, true
	default:
		return "", false
	}
}

// journalAuthors prefers the DOI's author list, then the contributors of all
// summaries and of the group in first-seen order.
func (c *Client) journalAuthors(ctx context.Context, doi string, group *WorkGroup) []domain.Author {
	if doi != "" && c.enrich.Authors != nil {
		authors, err := c.enrich.Authors.AuthorsByDOI(ctx, doi)
		if err == nil && len(authors) > 0 {
			return authors
		}
		c.logger.Debug().Err(err).Str("doi", doi).Msg("doi author lookup failed, using contributors")
	}

	seen := map[string]bool{}
	var out []domain.Author
	add := func(names []string) {
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				out = append(out, domain.Author{Name: n})
			}
		}
	}
	for i := range group.WorkSummary {
		add(group.WorkSummary[i].Contributors.names())
	}
	add(group.Contributors.names())
	return out
}

// publisher prefers the primary DOI lookup, then the ORCID publisher, then
// the fallback DOI lookup, then the journal or book title.
func (c *Client) publisher(ctx context.Context, doi string, group *WorkGroup, journalTitle, bookTitle string) string {
	if p := lookupPublisher(ctx, c.enrich.Publisher, doi); p != "" {
		return p
	}
	if p := groupPublisher(group); p != "" {
		return p
	}
	if p := lookupPublisher(ctx, c.enrich.PublisherFallback, doi); p != "" {
		return p
	}
	if journalTitle != "" {
		return journalTitle
	}
	return bookTitle
}

func lookupPublisher(ctx context.Context, lookup PublisherLookup, doi string) string {
	if lookup == nil || doi == "" {
		return ""
	}
	p, err := lookup.PublisherByDOI(ctx, doi)
	if err != nil {
		return ""
	}
	return p
}

func (c *Client) getJSON(ctx context.Context, reqURL, entity, id string, out any) error {
	status, body, err := c.httpClient.Get(ctx, reqURL, map[string]string{"Accept": "application/json"})
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}

	switch {
	case status == http.StatusNotFound:
		return domain.NewNotFoundError("orcid "+entity, id)
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

func summaryDOI(s *WorkSummary) string {
	if s.ExternalIDs == nil {
		return ""
	}
	for _, ext := range s.ExternalIDs.ExternalID {
		if ext.Type == "doi" && ext.Value != "" {
			return ext.Value
		}
	}
	return ""
}

// bookTitle returns the chapter's container title from the first summary,
// then the group title, then any summary.
func bookTitle(group *WorkGroup) string {
	if t := group.WorkSummary[0].ContainerTitle.get(); t != "" {
		return t
	}
	if t := group.Title.get(); t != "" {
		return t
	}
	for i := range group.WorkSummary {
		if t := group.WorkSummary[i].ContainerTitle.get(); t != "" {
			return t
		}
	}
	return ""
}

// groupPublisher returns the publisher from the first summary, then the
// group, then any summary.
func groupPublisher(group *WorkGroup) string {
	if p := group.WorkSummary[0].Publisher.get(); p != "" {
		return p
	}
	if p := group.Publisher.get(); p != "" {
		return p
	}
	for i := range group.WorkSummary {
		if p := group.WorkSummary[i].Publisher.get(); p != "" {
			return p
		}
	}
	return ""
}

func (d *PublicationDate) parts() (year, month, day int) {
	if d == nil {
		return 0, 0, 0
	}
	year = atoi(d.Year.get())
	month = atoi(d.Month.get())
	if month > 0 {
		day = atoi(d.Day.get())
	}
	return year, month, day
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
