// Package faculty holds the faculty roster used to derive search windows and
// to recognise colleagues among a publication's authors.
//
// A Directory is an immutable snapshot. Build one with a Builder and hand it
// to readers; a new roster means a new Directory.
package faculty

import (
	"strings"

	"github.com/helixir/publication-aggregator/internal/domain"
)

// JoinDate is when a faculty member joined. Month is 0 when unknown.
type JoinDate struct {
	Year  int `json:"join_year" yaml:"join_year"`
	Month int `json:"join_month,omitempty" yaml:"join_month,omitempty"`
}

// Directory maps faculty identifiers to join dates and records every known
// faculty name. It is safe for concurrent use because it never changes.
type Directory struct {
	byORCID map[string]JoinDate
	byName  map[string]JoinDate
	names   map[string]struct{}
}

// Empty returns a directory with no entries.
func Empty() *Directory {
	return NewBuilder().Build()
}

// Len returns the number of distinct known names.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.names)
}

// ORCIDCount returns the number of ORCIDs with a join date.
func (d *Directory) ORCIDCount() int {
	if d == nil {
		return 0
	}
	return len(d.byORCID)
}

// IsKnownName reports whether name belongs to a faculty member.
// Comparison ignores case and surrounding whitespace.
func (d *Directory) IsKnownName(name string) bool {
	if d == nil {
		return false
	}
	_, ok := d.names[nameKey(name)]
	return ok
}

// JoinDateFor looks up the entity's join date by ORCID, then by name.
func (d *Directory) JoinDateFor(e domain.FacultyEntity) (JoinDate, bool) {
	if d == nil {
		return JoinDate{}, false
	}
	if orcid := domain.NormalizeORCID(e.ORCID); orcid != "" {
		if jd, ok := d.byORCID[orcid]; ok {
			return jd, true
		}
	}
	if key := nameKey(e.Name); key != "" {
		if jd, ok := d.byName[key]; ok {
			return jd, true
		}
	}
	return JoinDate{}, false
}

// Enrich returns e with a missing join year and month filled from the
// directory. Values already on the entity win.
func (d *Directory) Enrich(e domain.FacultyEntity) domain.FacultyEntity {
	if e.JoinYear > 0 {
		return e
	}
	if jd, ok := d.JoinDateFor(e); ok && jd.Year > 0 {
		e.JoinYear = jd.Year
		if e.JoinMonth == 0 {
			e.JoinMonth = jd.Month
		}
	}
	return e
}

// Builder accumulates roster entries for a Directory. It is not safe for
// concurrent use.
type Builder struct {
	byORCID map[string]JoinDate
	byName  map[string]JoinDate
	names   map[string]struct{}
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		byORCID: map[string]JoinDate{},
		byName:  map[string]JoinDate{},
		names:   map[string]struct{}{},
	}
}

// Add records one faculty member. Later entries for the same ORCID or name
// replace earlier join dates.
func (b *Builder) Add(name, orcid string, jd JoinDate) *Builder {
	key := nameKey(name)
	if key != "" {
		b.names[key] = struct{}{}
	}
	if jd.Month < 0 || jd.Month > 12 {
		jd.Month = 0
	}
	if jd.Year <= 0 {
		return b
	}
	if o := domain.NormalizeORCID(orcid); o != "" {
		b.byORCID[o] = jd
	}
	if key != "" {
		b.byName[key] = jd
	}
	return b
}

// AddEntities records every entity's name and join date.
func (b *Builder) AddEntities(entities []domain.FacultyEntity) *Builder {
	for _, e := range entities {
		b.Add(e.Name, e.ORCID, JoinDate{Year: e.JoinYear, Month: e.JoinMonth})
	}
	return b
}

// Merge copies every entry of d into the builder.
func (b *Builder) Merge(d *Directory) *Builder {
	if d == nil {
		return b
	}
	for k, v := range d.byORCID {
		b.byORCID[k] = v
	}
	for k, v := range d.byName {
		b.byName[k] = v
	}
	for k := range d.names {
		b.names[k] = struct{}{}
	}
	return b
}

// Build returns an immutable snapshot of the builder's entries. The builder
// may keep being used; later additions do not affect the snapshot.
func (b *Builder) Build() *Directory {
	d := &Directory{
		byORCID: make(map[string]JoinDate, len(b.byORCID)),
		byName:  make(map[string]JoinDate, len(b.byName)),
		names:   make(map[string]struct{}, len(b.names)),
	}
	for k, v := range b.byORCID {
		d.byORCID[k] = v
	}
	for k, v := range b.byName {
		d.byName[k] = v
	}
	for k := range b.names {
		d.names[k] = struct{}{}
	}
	return d
}

func nameKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
