package catalog

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/seatwatch/pkg/errors"
)

// Document is the on-disk and on-the-wire form of a catalog snapshot.
// JSON documents are accepted as well since JSON is a subset of YAML.
type Document struct {
	Semester string           `yaml:"semester,omitempty" json:"semester,omitempty"`
	Prefix   string           `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Courses  []documentCourse `yaml:"courses" json:"courses"`
}

type documentCourse struct {
	ID          string            `yaml:"id" json:"id"`
	Name        string            `yaml:"name,omitempty" json:"name,omitempty"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Sections    []documentSection `yaml:"sections,omitempty" json:"sections,omitempty"`
}

// documentSection keeps numeric fields untyped so that one bad value does
// not fail the whole document.
type documentSection struct {
	ID         string    `yaml:"id" json:"id"`
	OpenSeats  any       `yaml:"open_seats,omitempty" json:"open_seats,omitempty"`
	TotalSeats any       `yaml:"total_seats,omitempty" json:"total_seats,omitempty"`
	Instructor string    `yaml:"instructor,omitempty" json:"instructor,omitempty"`
	Waitlist   any       `yaml:"waitlist,omitempty" json:"waitlist,omitempty"`
	Holdfile   any       `yaml:"holdfile,omitempty" json:"holdfile,omitempty"`
	Meetings   []Meeting `yaml:"meetings,omitempty" json:"meetings,omitempty"`
	// Invalid names fields a previous read could not parse.
	Invalid []string `yaml:"invalid,omitempty" json:"invalid,omitempty"`
}

// Decode parses a snapshot document. Structural problems (not a mapping,
// missing ids, duplicate ids) are errors. A numeric field that is not a
// non-negative integer decodes as zero and is marked in Section.Invalid,
// as is any field listed under a section's invalid key.
func Decode(data []byte) (Catalog, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewParseError("yaml", "", "decode catalog snapshot", err)
	}
	return doc.Catalog()
}

// Catalog converts the document into a Catalog.
func (d Document) Catalog() (Catalog, error) {
	out := make(Catalog, len(d.Courses))
	for _, dc := range d.Courses {
		if dc.ID == "" {
			return nil, errors.NewValidationError("courses.id", nil, "course id is required")
		}
		if _, dup := out[dc.ID]; dup {
			return nil, errors.NewValidationError("courses.id", dc.ID, "duplicate course id")
		}
		course := Course{
			ID:          dc.ID,
			Name:        dc.Name,
			Description: dc.Description,
			Sections:    make(map[string]Section, len(dc.Sections)),
		}
		for _, ds := range dc.Sections {
			if ds.ID == "" {
				return nil, errors.NewValidationError("sections.id", dc.ID, "section id is required")
			}
			if _, dup := course.Sections[ds.ID]; dup {
				return nil, errors.NewValidationError("sections.id", dc.ID+"-"+ds.ID, "duplicate section id")
			}
			course.Sections[ds.ID] = ds.section()
		}
		out[dc.ID] = course
	}
	return out, nil
}

func (ds documentSection) section() Section {
	s := Section{
		ID:         ds.ID,
		Instructor: strings.TrimSpace(ds.Instructor),
		Meetings:   ds.Meetings,
	}
	var ok bool
	if s.OpenSeats, ok = count(ds.OpenSeats); !ok {
		s.Invalid = s.Invalid.With(FieldOpenSeats)
	}
	if s.TotalSeats, ok = count(ds.TotalSeats); !ok {
		s.Invalid = s.Invalid.With(FieldTotalSeats)
	}
	if s.Waitlist, ok = count(ds.Waitlist); !ok {
		s.Invalid = s.Invalid.With(FieldWaitlist)
	}
	if s.Holdfile, ok = count(ds.Holdfile); !ok {
		s.Invalid = s.Invalid.With(FieldHoldfile)
	}
	for _, name := range ds.Invalid {
		if f, ok := ParseField(name); ok {
			s.Invalid = s.Invalid.With(f)
		}
	}
	return s
}

// count converts a decoded scalar into a seat count. Missing values are zero.
func count(v any) (uint, bool) {
	switch n := v.(type) {
	case nil:
		return 0, true
	case uint64:
		return uint(n), true
	case uint:
		return n, true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint(n), true
	case float64:
		if n < 0 || n != math.Trunc(n) {
			return 0, false
		}
		return uint(n), true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, true
		}
		u, err := strconv.ParseUint(s, 10, 0)
		if err != nil {
			return 0, false
		}
		return uint(u), true
	default:
		return 0, false
	}
}

// NewDocument builds a document with courses and sections in id order.
func NewDocument(c Catalog, semester, prefix string) Document {
	doc := Document{Semester: semester, Prefix: prefix, Courses: make([]documentCourse, 0, len(c))}
	for _, id := range c.CourseIDs() {
		course := c[id]
		dc := documentCourse{ID: id, Name: course.Name, Description: course.Description}
		for _, sid := range course.SectionIDs() {
			s := course.Sections[sid]
			dc.Sections = append(dc.Sections, documentSection{
				ID:         sid,
				OpenSeats:  s.OpenSeats,
				TotalSeats: s.TotalSeats,
				Instructor: s.Instructor,
				Waitlist:   s.Waitlist,
				Holdfile:   s.Holdfile,
				Meetings:   s.Meetings,
				Invalid:    s.Invalid.Names(),
			})
		}
		doc.Courses = append(doc.Courses, dc)
	}
	return doc
}

// Encode renders a catalog as a YAML snapshot document.
func Encode(c Catalog, semester, prefix string) ([]byte, error) {
	data, err := yaml.MarshalWithOptions(NewDocument(c, semester, prefix), yaml.Indent(2), yaml.IndentSequence(true))
	if err != nil {
		return nil, fmt.Errorf("encode catalog snapshot: %w", err)
	}
	return data, nil
}
