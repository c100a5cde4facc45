// Package crossref provides a client for the CrossRef REST API.
//
// It searches works by author name and looks up single works by DOI to
// recover author affiliations and publishers.
//
// API Documentation: https://api.crossref.org/swagger-ui/index.html
package crossref

// WorksResponse is the envelope of /works searches.
type WorksResponse struct {
	Status  string       `json:"status"`
	Message WorksMessage `json:"message"`
}

// WorksMessage holds the result items of a works search.
type WorksMessage struct {
	TotalResults int    `json:"total-results"`
	Items        []Work `json:"items"`
}

// WorkResponse is the envelope of /works/{doi}.
type WorkResponse struct {
	Status  string `json:"status"`
	Message Work   `json:"message"`
}

// Work is a CrossRef work record.
type Work struct {
	DOI                 string     `json:"DOI"`
	Title               []string   `json:"title"`
	ContainerTitle      []string   `json:"container-title"`
	Publisher           string     `json:"publisher"`
	Type                string     `json:"type"`
	Author              []Author   `json:"author"`
	PublishedPrint      *DateParts `json:"published-print"`
	PublishedOnline     *DateParts `json:"published-online"`
	IsReferencedByCount int        `json:"is-referenced-by-count"`
}

// Author is a CrossRef contributor.
type Author struct {
	Given       string        `json:"given"`
	Family      string        `json:"family"`
	Name        string        `json:"name"`
	ORCID       string        `json:"ORCID"`
	Affiliation []Affiliation `json:"affiliation"`
}

// Affiliation is a contributor affiliation.
type Affiliation struct {
	Name string `json:"name"`
}

// DateParts is CrossRef's [[year, month, day]] date encoding.
// Any trailing part may be missing or null.
type DateParts struct {
	DateParts [][]int `json:"date-parts"`
}

// Parts returns year, month and day; zero means absent.
func (d *DateParts) Parts() (year, month, day int) {
	if d == nil || len(d.DateParts) == 0 {
		return 0, 0, 0
	}
	p := d.DateParts[0]
	if len(p) > 0 {
		year = p[0]
	}
	if len(p) > 1 {
		month = p[1]
	}
	if len(p) > 2 {
		day = p[2]
	}
	return year, month, day
}
