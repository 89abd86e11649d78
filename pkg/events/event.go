package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Change is the old/new payload of a field-change event. It is sealed:
// TextChange and CountChange are the only implementations.
type Change interface {
	fmt.Stringer
	isChange()
}

// TextChange carries string values (names, instructors, encoded meeting lists).
type TextChange struct {
	Old string
	New string
}

func (TextChange) isChange() {}

// String renders the change for logs and CLI output.
func (c TextChange) String() string {
	return fmt.Sprintf("%q -> %q", c.Old, c.New)
}

// CountChange carries seat and queue counts.
type CountChange struct {
	Old uint
	New uint
}

func (CountChange) isChange() {}

// String renders the change for logs and CLI output.
func (c CountChange) String() string {
	return fmt.Sprintf("%d -> %d", c.Old, c.New)
}

// Event is an immutable record of one change between two snapshots.
type Event struct {
	ID        string
	Type      Type
	Semester  string
	Course    string
	Title     string
	Section   string
	Change    Change // nil for lifecycle events
	Timestamp time.Time
}

// NewID returns the deterministic id of an event. All identifying fields
// are included so that distinct events never share an id.
func NewID(course string, t Type, timestamp time.Time, section, semester string) string {
	h := sha256.New()
	for i, part := range []string{course, string(t), timestamp.UTC().Format(time.RFC3339Nano), section, semester} {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Stamp sets the event id from its identifying fields.
func (e *Event) Stamp() {
	e.ID = NewID(e.Course, e.Type, e.Timestamp, e.Section, e.Semester)
}

// Key returns the persistence key of the event: the course id, or
// course-section for section events.
func (e Event) Key() string {
	if e.Section == "" {
		return e.Course
	}
	return e.Course + "-" + e.Section
}

// Text returns the change as a TextChange when the event carries one.
func (e Event) Text() (TextChange, bool) {
	c, ok := e.Change.(TextChange)
	return c, ok
}

// Count returns the change as a CountChange when the event carries one.
func (e Event) Count() (CountChange, bool) {
	c, ok := e.Change.(CountChange)
	return c, ok
}

// Values returns the old and new values formatted as strings.
// Both are empty for lifecycle events.
func (e Event) Values() (string, string) {
	switch c := e.Change.(type) {
	case TextChange:
		return c.Old, c.New
	case CountChange:
		return strconv.FormatUint(uint64(c.Old), 10), strconv.FormatUint(uint64(c.New), 10)
	default:
		return "", ""
	}
}

// String implements fmt.Stringer.
func (e Event) String() string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	b.WriteByte(' ')
	b.WriteString(e.Key())
	if e.Change != nil {
		b.WriteString(": ")
		b.WriteString(e.Change.String())
	}
	return b.String()
}

type eventJSON struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Semester  string          `json:"semester"`
	Course    string          `json:"course"`
	Title     string          `json:"title,omitempty"`
	Section   string          `json:"section,omitempty"`
	Old       json.RawMessage `json:"old,omitempty"`
	New       json.RawMessage `json:"new,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// MarshalJSON flattens the change into old/new keys.
func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{
		ID:        e.ID,
		Type:      e.Type,
		Semester:  e.Semester,
		Course:    e.Course,
		Title:     e.Title,
		Section:   e.Section,
		Timestamp: e.Timestamp.UTC(),
	}
	var err error
	switch c := e.Change.(type) {
	case TextChange:
		if out.Old, err = json.Marshal(c.Old); err != nil {
			return nil, err
		}
		out.New, err = json.Marshal(c.New)
	case CountChange:
		out.Old = json.RawMessage(strconv.FormatUint(uint64(c.Old), 10))
		out.New = json.RawMessage(strconv.FormatUint(uint64(c.New), 10))
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes old/new according to the event type.
func (e *Event) UnmarshalJSON(data []byte) error {
	var in eventJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = Event{
		ID:        in.ID,
		Type:      in.Type,
		Semester:  in.Semester,
		Course:    in.Course,
		Title:     in.Title,
		Section:   in.Section,
		Timestamp: in.Timestamp,
	}
	switch in.Type.Kind() {
	case KindLifecycle:
	case KindText:
		var c TextChange
		if err := unmarshalOptional(in.Old, &c.Old); err != nil {
			return err
		}
		if err := unmarshalOptional(in.New, &c.New); err != nil {
			return err
		}
		e.Change = c
	case KindCount:
		var c CountChange
		if err := unmarshalOptional(in.Old, &c.Old); err != nil {
			return err
		}
		if err := unmarshalOptional(in.New, &c.New); err != nil {
			return err
		}
		e.Change = c
	default:
		return fmt.Errorf("unknown event type %q", in.Type)
	}
	return nil
}

func unmarshalOptional(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
