package domain

import "time"

// EntityState is a step of the per-entity bulk state machine.
type EntityState string

const (
	EntityStatePending          EntityState = "pending"
	EntityStateFetching         EntityState = "fetching"
	EntityStateRetry            EntityState = "retry"
	EntityStateFallbackScholar  EntityState = "fallback_scholar"
	EntityStateFallbackOpenAlex EntityState = "fallback_openalex"
	EntityStateSucceeded        EntityState = "succeeded"
	EntityStateFailed           EntityState = "failed"
)

// IsTerminal reports whether the state ends the entity's pipeline.
func (s EntityState) IsTerminal() bool {
	return s == EntityStateSucceeded || s == EntityStateFailed
}

// AuthorProfile is a whole-author signal produced by a fallback source.
type AuthorProfile struct {
	Name          string        `json:"name"`
	ORCID         string        `json:"orcid,omitempty"`
	ScholarID     string        `json:"scholar_id,omitempty"`
	OpenAlexID    string        `json:"openalex_id,omitempty"`
	DisplayName   string        `json:"display_name,omitempty"`
	ProfileSource ProfileSource `json:"profile_source"`
	Citations     *int          `json:"citations,omitempty"`
	WorksCount    int           `json:"works_count,omitempty"`
	HIndex        int           `json:"h_index,omitempty"`
	I10Index      int           `json:"i10_index,omitempty"`
	UsedFallback  bool          `json:"used_fallback"`
}

// Attribution ties a bulk output row back to the entity it was fetched for.
type Attribution struct {
	FacultyName  string `json:"faculty_name"`
	FacultyORCID string `json:"faculty_orcid,omitempty"`
	JoinYear     int    `json:"join_year,omitempty"`
	JoinMonth    int    `json:"join_month,omitempty"`
	StartYear    int    `json:"start_year"`
}

// AttributedRecord is a publication record tagged with the entity it belongs to.
type AttributedRecord struct {
	Record      PublicationRecord `json:"record"`
	Attribution Attribution       `json:"attribution"`
}

// EntityOutcome is the final result of one entity's pipeline.
type EntityOutcome struct {
	Index         int            `json:"index"`
	Entity        FacultyEntity  `json:"entity"`
	State         EntityState    `json:"state"`
	Window        DateWindow     `json:"window"`
	ProfileSource ProfileSource  `json:"profile_source,omitempty"`
	Attempts      int            `json:"attempts"`
	Records       Partitioned    `json:"records"`
	Profile       *AuthorProfile `json:"profile,omitempty"`
	Error         string         `json:"error,omitempty"`
	Duration      time.Duration  `json:"duration"`
}

// Succeeded reports whether the entity produced records or a profile signal.
func (o *EntityOutcome) Succeeded() bool {
	return o.State == EntityStateSucceeded
}

// FailedEntity is one entry of a batch's failure list.
type FailedEntity struct {
	Identifier string `json:"identifier"`
	Error      string `json:"error"`
}

// BatchReport is the result of processing a list of faculty entities.
type BatchReport struct {
	Journal   []AttributedRecord `json:"journal_rows"`
	Book      []AttributedRecord `json:"book_rows"`
	Chapter   []AttributedRecord `json:"chapter_rows"`
	Profiles  []AuthorProfile    `json:"profiles"`
	Failed    []FailedEntity     `json:"failed"`
	Succeeded int                `json:"succeeded"`
	Total     int                `json:"total"`
	Outcomes  []EntityOutcome    `json:"outcomes,omitempty"`
}
