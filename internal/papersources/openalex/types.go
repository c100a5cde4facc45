// Package openalex talks to api.openalex.org: author search by name,
// cursor-paged works for an author inside a year window, and per-DOI
// citation and publisher lookups.
package openalex

// WorksResponse is one page of /works.
type WorksResponse struct {
	Meta    Meta   `json:"meta"`
	Results []Work `json:"results"`
}

// AuthorsResponse is one page of /authors.
type AuthorsResponse struct {
	Meta    Meta     `json:"meta"`
	Results []Author `json:"results"`
}

// Meta carries the total hit count and, under cursor paging, the cursor of
// the next page. NextCursor is empty on the last page.
type Meta struct {
	Count      int    `json:"count"`
	NextCursor string `json:"next_cursor"`
}

type Author struct {
	ID           string       `json:"id"`
	DisplayName  string       `json:"display_name"`
	ORCID        string       `json:"orcid"`
	WorksCount   int          `json:"works_count"`
	CitedByCount int          `json:"cited_by_count"`
	SummaryStats SummaryStats `json:"summary_stats"`
}

type SummaryStats struct {
	HIndex   int `json:"h_index"`
	I10Index int `json:"i10_index"`
}

// Work is the subset of an OpenAlex work the normalizer reads. Title falls
// back to DisplayName when null.
type Work struct {
	DOI             string       `json:"doi"`
	Title           string       `json:"title"`
	DisplayName     string       `json:"display_name"`
	PublicationYear int          `json:"publication_year"`
	PublicationDate string       `json:"publication_date"`
	Type            string       `json:"type"`
	CitedByCount    int          `json:"cited_by_count"`
	Authorships     []Authorship `json:"authorships"`
	PrimaryLocation *Location    `json:"primary_location"`
	HostVenue       *HostVenue   `json:"host_venue"`
}

// Authorship links a work to one author. Affiliation text comes from
// the raw strings first, then the resolved institutions.
type Authorship struct {
	Author                AuthorRef     `json:"author"`
	Institutions          []Institution `json:"institutions"`
	RawAffiliationString  string        `json:"raw_affiliation_string"`
	RawAffiliationStrings []string      `json:"raw_affiliation_strings"`
}

type AuthorRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	ORCID       string `json:"orcid"`
}

type Institution struct {
	DisplayName string `json:"display_name"`
}

type Location struct {
	Source *Venue `json:"source"`
}

// Venue is the journal, book series or repository a location points at.
type Venue struct {
	DisplayName          string `json:"display_name"`
	HostOrganizationName string `json:"host_organization_name"`
}

// HostVenue is the pre-2023 venue block still present in some responses.
type HostVenue struct {
	DisplayName string `json:"display_name"`
	Publisher   string `json:"publisher"`
}
