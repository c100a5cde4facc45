// Package orcid provides a client for the ORCID public API v3.0.
//
// It lists an ORCID holder's works, resolves names to ORCID iDs through the
// expanded search, and enriches works with authors, publishers and citation
// counts looked up by DOI in other sources.
//
// API Documentation: https://info.orcid.org/documentation/api-tutorials/
package orcid

// WorksResponse is the body of /{orcid}/works.
type WorksResponse struct {
	Group []WorkGroup `json:"group"`
}

// WorkGroup groups the summaries ORCID considers the same work.
type WorkGroup struct {
	WorkSummary  []WorkSummary `json:"work-summary"`
	Title        *TitleBlock   `json:"title,omitempty"`
	Publisher    *Value        `json:"publisher,omitempty"`
	Contributors *Contributors `json:"contributors,omitempty"`
}

// WorkSummary is one contributor's view of a work.
type WorkSummary struct {
	Title           *TitleBlock      `json:"title"`
	ExternalIDs     *ExternalIDs     `json:"external-ids"`
	PublicationDate *PublicationDate `json:"publication-date"`
	JournalTitle    *Value           `json:"journal-title"`
	ContainerTitle  *Value           `json:"container-title,omitempty"`
	Publisher       *Value           `json:"publisher,omitempty"`
	Type            string           `json:"type"`
	Contributors    *Contributors    `json:"contributors,omitempty"`
}

// Value is ORCID's {"value": ...} wrapper.
type Value struct {
	Value string `json:"value"`
}

// TitleBlock wraps a work title.
type TitleBlock struct {
	Title *Value `json:"title"`
}

// ExternalIDs lists a work's identifiers.
type ExternalIDs struct {
	ExternalID []ExternalID `json:"external-id"`
}

// ExternalID is one identifier such as a DOI or ISBN.
type ExternalID struct {
	Type  string `json:"external-id-type"`
	Value string `json:"external-id-value"`
}

// PublicationDate holds optional year, month and day values.
type PublicationDate struct {
	Year  *Value `json:"year"`
	Month *Value `json:"month"`
	Day   *Value `json:"day"`
}

// Contributors lists a work's contributors.
type Contributors struct {
	Contributor []Contributor `json:"contributor"`
}

// Contributor is one contributor entry.
type Contributor struct {
	CreditName       *Value `json:"credit-name"`
	ContributorORCID *Path  `json:"contributor-orcid"`
}

// Path carries an ORCID path.
type Path struct {
	Path string `json:"path"`
}

// ExpandedSearchResponse is the body of /expanded-search.
type ExpandedSearchResponse struct {
	NumFound       int              `json:"num-found"`
	ExpandedResult []ExpandedResult `json:"expanded-result"`
}

// ExpandedResult is one person returned by the expanded search.
type ExpandedResult struct {
	ORCIDID         string   `json:"orcid-id"`
	GivenNames      string   `json:"given-names"`
	FamilyNames     string   `json:"family-names"`
	InstitutionName []string `json:"institution-name"`
}

// FullName returns the given and family names joined by a space.
func (r ExpandedResult) FullName() string {
	switch {
	case r.GivenNames == "":
		return r.FamilyNames
	case r.FamilyNames == "":
		return r.GivenNames
	default:
		return r.GivenNames + " " + r.FamilyNames
	}
}

func (v *Value) get() string {
	if v == nil {
		return ""
	}
	return v.Value
}

func (t *TitleBlock) get() string {
	if t == nil {
		return ""
	}
	return t.Title.get()
}

func (c Contributor) name() string {
	if n := c.CreditName.get(); n != "" {
		return n
	}
	if c.ContributorORCID != nil {
		return c.ContributorORCID.Path
	}
	return ""
}

func (c *Contributors) names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Contributor))
	for _, contributor := range c.Contributor {
		if n := contributor.name(); n != "" {
			out = append(out, n)
		}
	}
	return out
}
