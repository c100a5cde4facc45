package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PublicationKind is the category a publication record belongs to.
// Every record belongs to exactly one kind.
type PublicationKind string

const (
	KindJournal PublicationKind = "journal"
	KindBook    PublicationKind = "book"
	KindChapter PublicationKind = "chapter"
)

// AllKinds lists the publication kinds in output order.
var AllKinds = []PublicationKind{KindJournal, KindBook, KindChapter}

// String returns the string representation of the kind.
func (k PublicationKind) String() string {
	return string(k)
}

// Valid reports whether k is one of the known kinds.
func (k PublicationKind) Valid() bool {
	switch k {
	case KindJournal, KindBook, KindChapter:
		return true
	default:
		return false
	}
}

// Author represents a publication author with optional affiliation and ORCID.
type Author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	ORCID       string `json:"orcid,omitempty"`
}

// String returns a formatted string representation of the author.
func (a Author) String() string {
	var sb strings.Builder
	sb.WriteString(a.Name)

	if a.Affiliation != "" {
		sb.WriteString(" (")
		sb.WriteString(a.Affiliation)
		sb.WriteString(")")
	}

	return sb.String()
}

// CitationSample is one citation count reported for a work, tagged with the
// source that reported it. Merged records keep every sample so the merge
// strategy can be re-applied without loss.
//
// Record identifies the normalized record the sample came from. Samples with
// the same Record are one contribution; equal counts from different records
// are kept apart.
type CitationSample struct {
	Origin SourceLabel `json:"origin"`
	Count  int         `json:"count"`
	Record string      `json:"-"`
}

// Detail is the kind-specific part of a publication record.
// JournalDetail, BookDetail and ChapterDetail are the only implementations.
type Detail interface {
	Kind() PublicationKind
	sealed()
}

// JournalDetail holds fields specific to journal articles.
type JournalDetail struct {
	JournalTitle string
}

// Kind implements Detail.
func (JournalDetail) Kind() PublicationKind { return KindJournal }
func (JournalDetail) sealed()               {}

// BookDetail holds fields specific to books.
type BookDetail struct {
	BookTitle string
	Publisher string
}

// Kind implements Detail.
func (BookDetail) Kind() PublicationKind { return KindBook }
func (BookDetail) sealed()               {}

// ChapterDetail holds fields specific to book chapters.
type ChapterDetail struct {
	BookTitle    string
	ChapterTitle string
	Publisher    string
}

// Kind implements Detail.
func (ChapterDetail) Kind() PublicationKind { return KindChapter }
func (ChapterDetail) sealed()               {}

// PublicationRecord is the canonical, post-normalization description of one work.
//
// Year is 0 when unknown and PublicationDate is empty when unknown. A non-empty
// PublicationDate is always YYYY, YYYY-MM or YYYY-MM-DD.
type PublicationRecord struct {
	Title           string
	DOI             string
	Year            int
	PublicationDate string
	Authors         []string
	AuthorsDetailed []Author
	CitationCount   int
	Citations       []CitationSample
	Source          SourceLabel
	AuthorsInSchool string
	Detail          Detail
}

// Kind returns the publication kind carried by the record's detail.
// Records without a detail are treated as journal articles.
func (r *PublicationRecord) Kind() PublicationKind {
	if r.Detail == nil {
		return KindJournal
	}
	return r.Detail.Kind()
}

// JournalTitle returns the journal title for journal records.
func (r *PublicationRecord) JournalTitle() string {
	if d, ok := r.Detail.(JournalDetail); ok {
		return d.JournalTitle
	}
	return ""
}

// BookTitle returns the book title for book and chapter records.
func (r *PublicationRecord) BookTitle() string {
	switch d := r.Detail.(type) {
	case BookDetail:
		return d.BookTitle
	case ChapterDetail:
		return d.BookTitle
	}
	return ""
}

// ChapterTitle returns the chapter title for chapter records.
func (r *PublicationRecord) ChapterTitle() string {
	if d, ok := r.Detail.(ChapterDetail); ok {
		return d.ChapterTitle
	}
	return ""
}

// Publisher returns the publisher for book and chapter records.
func (r *PublicationRecord) Publisher() string {
	switch d := r.Detail.(type) {
	case BookDetail:
		return d.Publisher
	case ChapterDetail:
		return d.Publisher
	}
	return ""
}

// AuthorString returns the authors joined with "; ".
func (r *PublicationRecord) AuthorString() string {
	return strings.Join(r.Authors, "; ")
}

// Clone returns a deep copy of the record.
func (r *PublicationRecord) Clone() PublicationRecord {
	out := *r
	out.Authors = append([]string(nil), r.Authors...)
	out.AuthorsDetailed = append([]Author(nil), r.AuthorsDetailed...)
	out.Citations = append([]CitationSample(nil), r.Citations...)
	return out
}

// publicationJSON is the flat wire form of a PublicationRecord.
type publicationJSON struct {
	Type            PublicationKind  `json:"type"`
	Title           string           `json:"title"`
	DOI             string           `json:"doi,omitempty"`
	Year            int              `json:"year,omitempty"`
	PublicationDate string           `json:"publication_date,omitempty"`
	Authors         []string         `json:"authors"`
	AuthorsDetailed []Author         `json:"authors_detailed,omitempty"`
	CitationCount   int              `json:"citation_count"`
	Citations       []CitationSample `json:"citations,omitempty"`
	Source          SourceLabel      `json:"source"`
	AuthorsInSchool string           `json:"authors_in_school,omitempty"`
	JournalTitle    string           `json:"journal_title,omitempty"`
	BookTitle       string           `json:"book_title,omitempty"`
	ChapterTitle    string           `json:"chapter_title,omitempty"`
	Publisher       string           `json:"publisher,omitempty"`
}

// MarshalJSON flattens the tagged detail into the record object.
func (r PublicationRecord) MarshalJSON() ([]byte, error) {
	authors := r.Authors
	if authors == nil {
		authors = []string{}
	}
	return json.Marshal(publicationJSON{
		Type:            r.Kind(),
		Title:           r.Title,
		DOI:             r.DOI,
		Year:            r.Year,
		PublicationDate: r.PublicationDate,
		Authors:         authors,
		AuthorsDetailed: r.AuthorsDetailed,
		CitationCount:   r.CitationCount,
		Citations:       r.Citations,
		Source:          r.Source,
		AuthorsInSchool: r.AuthorsInSchool,
		JournalTitle:    r.JournalTitle(),
		BookTitle:       r.BookTitle(),
		ChapterTitle:    r.ChapterTitle(),
		Publisher:       r.Publisher(),
	})
}

// UnmarshalJSON rebuilds the tagged detail from the flat wire form.
func (r *PublicationRecord) UnmarshalJSON(data []byte) error {
	var w publicationJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	var detail Detail
	switch w.Type {
	case KindJournal, "":
		detail = JournalDetail{JournalTitle: w.JournalTitle}
	case KindBook:
		detail = BookDetail{BookTitle: w.BookTitle, Publisher: w.Publisher}
	case KindChapter:
		detail = ChapterDetail{BookTitle: w.BookTitle, ChapterTitle: w.ChapterTitle, Publisher: w.Publisher}
	default:
		return fmt.Errorf("unknown publication type %q", w.Type)
	}

	*r = PublicationRecord{
		Title:           w.Title,
		DOI:             w.DOI,
		Year:            w.Year,
		PublicationDate: w.PublicationDate,
		Authors:         w.Authors,
		AuthorsDetailed: w.AuthorsDetailed,
		CitationCount:   w.CitationCount,
		Citations:       w.Citations,
		Source:          w.Source,
		AuthorsInSchool: w.AuthorsInSchool,
		Detail:          detail,
	}
	return nil
}

// Partitioned holds merged records split by kind, each list sorted by
// publication date descending.
type Partitioned struct {
	Journal []PublicationRecord `json:"journal"`
	Book    []PublicationRecord `json:"book"`
	Chapter []PublicationRecord `json:"chapter"`
}

// Of returns the list for the given kind.
func (p *Partitioned) Of(kind PublicationKind) []PublicationRecord {
	switch kind {
	case KindBook:
		return p.Book
	case KindChapter:
		return p.Chapter
	default:
		return p.Journal
	}
}

// Len returns the total number of records across all kinds.
func (p *Partitioned) Len() int {
	return len(p.Journal) + len(p.Book) + len(p.Chapter)
}

// All returns every record in journal, book, chapter order.
func (p *Partitioned) All() []PublicationRecord {
	out := make([]PublicationRecord, 0, p.Len())
	out = append(out, p.Journal...)
	out = append(out, p.Book...)
	out = append(out, p.Chapter...)
	return out
}
