// Package catalog holds the value types for one semester's course catalog.
//
// A Catalog is a snapshot taken at a single scrape instant. Snapshots are
// compared by the differ package and superseded by the next scrape; nothing
// in this package mutates a catalog after it has been built.
package catalog

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"
	"unicode"
)

// Meeting is one scheduled meeting of a section.
type Meeting struct {
	Days     string `json:"days,omitempty" yaml:"days,omitempty"`
	Start    string `json:"start,omitempty" yaml:"start,omitempty"`
	End      string `json:"end,omitempty" yaml:"end,omitempty"`
	Building string `json:"building,omitempty" yaml:"building,omitempty"`
	Room     string `json:"room,omitempty" yaml:"room,omitempty"`
	Kind     string `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// Section is a single offering of a course.
type Section struct {
	ID         string    `json:"id" yaml:"id"`
	OpenSeats  uint      `json:"open_seats" yaml:"open_seats"`
	TotalSeats uint      `json:"total_seats" yaml:"total_seats"`
	Instructor string    `json:"instructor,omitempty" yaml:"instructor,omitempty"`
	Waitlist   uint      `json:"waitlist" yaml:"waitlist"`
	Holdfile   uint      `json:"holdfile" yaml:"holdfile"`
	Meetings   []Meeting `json:"meetings,omitempty" yaml:"meetings,omitempty"`

	// Invalid records numeric fields that could not be read from the source.
	// The differ skips comparisons involving these fields. Encode keeps the
	// markers so a stored snapshot round-trips them.
	Invalid FieldSet `json:"-" yaml:"-"`
}

// Course is a catalog entry and its sections keyed by section id.
type Course struct {
	ID          string             `json:"id" yaml:"id"`
	Name        string             `json:"name,omitempty" yaml:"name,omitempty"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Sections    map[string]Section `json:"sections,omitempty" yaml:"sections,omitempty"`
}

// Catalog maps course ids to courses for one semester.
type Catalog map[string]Course

// Field names a numeric section field that can arrive malformed.
type Field uint8

// Numeric section fields.
const (
	FieldOpenSeats Field = 1 << iota
	FieldTotalSeats
	FieldWaitlist
	FieldHoldfile
)

// String returns the snapshot key for the field.
func (f Field) String() string {
	switch f {
	case FieldOpenSeats:
		return "open_seats"
	case FieldTotalSeats:
		return "total_seats"
	case FieldWaitlist:
		return "waitlist"
	case FieldHoldfile:
		return "holdfile"
	default:
		return "unknown"
	}
}

// Fields lists every numeric section field.
var Fields = []Field{FieldOpenSeats, FieldTotalSeats, FieldWaitlist, FieldHoldfile}

// ParseField is the inverse of Field.String.
func ParseField(s string) (Field, bool) {
	for _, f := range Fields {
		if f.String() == s {
			return f, true
		}
	}
	return 0, false
}

// FieldSet is a bit set of Fields.
type FieldSet uint8

// Has reports whether f is in the set.
func (s FieldSet) Has(f Field) bool { return s&FieldSet(f) != 0 }

// With returns the set with f added.
func (s FieldSet) With(f Field) FieldSet { return s | FieldSet(f) }

// Without returns the set with f removed.
func (s FieldSet) Without(f Field) FieldSet { return s &^ FieldSet(f) }

// Names returns the snapshot keys of the fields in the set.
func (s FieldSet) Names() []string {
	var out []string
	for _, f := range Fields {
		if s.Has(f) {
			out = append(out, f.String())
		}
	}
	return out
}

// Count returns the value of a numeric field.
func (s Section) Count(f Field) uint {
	switch f {
	case FieldOpenSeats:
		return s.OpenSeats
	case FieldTotalSeats:
		return s.TotalSeats
	case FieldWaitlist:
		return s.Waitlist
	case FieldHoldfile:
		return s.Holdfile
	default:
		return 0
	}
}

// SetCount sets the value of a numeric field.
func (s *Section) SetCount(f Field, v uint) {
	switch f {
	case FieldOpenSeats:
		s.OpenSeats = v
	case FieldTotalSeats:
		s.TotalSeats = v
	case FieldWaitlist:
		s.Waitlist = v
	case FieldHoldfile:
		s.Holdfile = v
	}
}

// Department derives the subject prefix of a course id ("CMSC131" -> "CMSC").
func Department(courseID string) string {
	end := strings.IndexFunc(courseID, func(r rune) bool { return !unicode.IsLetter(r) })
	if end < 0 {
		end = len(courseID)
	}
	return strings.ToUpper(courseID[:end])
}

// CanonicalMeetings encodes a meeting list so that two lists describing the
// same meetings produce the same string. List order is significant; key
// order and empty fields are not. An empty list encodes as "".
func CanonicalMeetings(meetings []Meeting) string {
	if len(meetings) == 0 {
		return ""
	}
	// json.Marshal emits struct fields in declaration order and omits empties.
	data, err := json.Marshal(meetings)
	if err != nil {
		return ""
	}
	return string(data)
}

// ParseMeetings is the inverse of CanonicalMeetings.
func ParseMeetings(s string) ([]Meeting, error) {
	if s == "" {
		return nil, nil
	}
	var meetings []Meeting
	if err := json.Unmarshal([]byte(s), &meetings); err != nil {
		return nil, err
	}
	return meetings, nil
}

// CourseIDs returns the catalog's course ids in lexicographic order.
func (c Catalog) CourseIDs() []string {
	return slices.Sorted(maps.Keys(c))
}

// SectionIDs returns the course's section ids in lexicographic order.
func (c Course) SectionIDs() []string {
	return slices.Sorted(maps.Keys(c.Sections))
}

// Clone returns a deep copy of the catalog.
func (c Catalog) Clone() Catalog {
	if c == nil {
		return nil
	}
	out := make(Catalog, len(c))
	for id, course := range c {
		out[id] = course.Clone()
	}
	return out
}

// Clone returns a deep copy of the course.
func (c Course) Clone() Course {
	out := c
	if c.Sections != nil {
		out.Sections = make(map[string]Section, len(c.Sections))
		for id, s := range c.Sections {
			s.Meetings = slices.Clone(s.Meetings)
			out.Sections[id] = s
		}
	}
	return out
}

// Settle returns a copy of c in which every field marked invalid takes its
// value and marker from the same section in previous. A section previous
// does not know keeps its markers. The result can be stored as the next
// snapshot without recording a value that was never observed.
func (c Catalog) Settle(previous Catalog) Catalog {
	out := c.Clone()
	for id, course := range out {
		prevCourse, ok := previous[id]
		if !ok {
			continue
		}
		for sid, s := range course.Sections {
			prev, ok := prevCourse.Sections[sid]
			if !ok || s.Invalid == 0 {
				continue
			}
			for _, f := range Fields {
				if !s.Invalid.Has(f) {
					continue
				}
				s.SetCount(f, prev.Count(f))
				if !prev.Invalid.Has(f) {
					s.Invalid = s.Invalid.Without(f)
				}
			}
			course.Sections[sid] = s
		}
	}
	return out
}

// Equal reports whether two catalogs describe the same courses and sections.
// Map order, meeting key order and the Invalid markers are ignored.
func (c Catalog) Equal(other Catalog) bool {
	if len(c) != len(other) {
		return false
	}
	for id, course := range c {
		o, ok := other[id]
		if !ok || !course.Equal(o) {
			return false
		}
	}
	return true
}

// Equal reports whether two courses have the same fields and sections.
func (c Course) Equal(other Course) bool {
	if c.ID != other.ID || c.Name != other.Name || c.Description != other.Description {
		return false
	}
	if len(c.Sections) != len(other.Sections) {
		return false
	}
	for id, s := range c.Sections {
		o, ok := other.Sections[id]
		if !ok || !s.Equal(o) {
			return false
		}
	}
	return true
}

// Equal reports whether two sections have the same tracked fields.
func (s Section) Equal(other Section) bool {
	return s.ID == other.ID &&
		s.OpenSeats == other.OpenSeats &&
		s.TotalSeats == other.TotalSeats &&
		s.Instructor == other.Instructor &&
		s.Waitlist == other.Waitlist &&
		s.Holdfile == other.Holdfile &&
		CanonicalMeetings(s.Meetings) == CanonicalMeetings(other.Meetings)
}

// Sections returns the number of sections across all courses.
func (c Catalog) Sections() int {
	n := 0
	for _, course := range c {
		n += len(course.Sections)
	}
	return n
}
