// Package differ turns two catalog snapshots into an ordered sequence of
// typed change events.
package differ

import (
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/seatwatch/pkg/catalog"
	"github.com/agentstation/seatwatch/pkg/events"
	"github.com/agentstation/seatwatch/pkg/logging"
)

// differ carries the state of one Generate call.
type differ struct {
	logger   *zerolog.Logger
	ignore   map[events.Type]bool
	ts       time.Time
	semester string
	out      []events.Event
}

// Generate compares previous with current and returns the events that
// describe the change, sorted by course id. Events within a course keep
// their generation order. Generate never fails: missing fields compare as
// empty, and fields marked invalid in either snapshot are skipped with a
// warning.
func Generate(previous, current catalog.Catalog, ts time.Time, semester string, opts ...Option) []events.Event {
	d := &differ{
		logger:   logging.OrNop(nil),
		ignore:   make(map[events.Type]bool),
		ts:       ts,
		semester: semester,
	}
	for _, opt := range opts {
		opt(d)
	}

	// Find added and updated courses
	for _, id := range current.CourseIDs() {
		cur := current[id]
		prev, exists := previous[id]
		if !exists {
			d.emit(events.CourseAdded, id, cur.Name, "", nil)
			// The name travels as the event title; everything else is
			// compared against an empty course.
			prev = catalog.Course{ID: id, Name: cur.Name}
		}
		d.course(prev, cur)
	}

	// Find removed courses; their sections are not diffed individually.
	for _, id := range previous.CourseIDs() {
		if _, exists := current[id]; !exists {
			d.emit(events.CourseRemoved, id, previous[id].Name, "", nil)
		}
	}

	slices.SortStableFunc(d.out, func(a, b events.Event) int {
		return strings.Compare(a.Course, b.Course)
	})
	for i := range d.out {
		d.out[i].Stamp()
	}
	return d.out
}

// course compares two versions of the same course.
func (d *differ) course(prev, cur catalog.Course) {
	title := cur.Name
	if prev.Name != cur.Name {
		d.emit(events.CourseNameChanged, cur.ID, title, "", events.TextChange{Old: prev.Name, New: cur.Name})
	}
	if prev.Description != cur.Description {
		d.emit(events.CourseDescriptionChanged, cur.ID, title, "", events.TextChange{Old: prev.Description, New: cur.Description})
	}

	for _, sid := range cur.SectionIDs() {
		s := cur.Sections[sid]
		old, exists := prev.Sections[sid]
		if !exists {
			d.emit(events.SectionAdded, cur.ID, title, sid, nil)
			d.section(cur.ID, title, catalog.Section{ID: sid}, s, false)
			continue
		}
		d.section(cur.ID, title, old, s, true)
	}

	for _, sid := range prev.SectionIDs() {
		if _, exists := cur.Sections[sid]; !exists {
			d.emit(events.SectionRemoved, cur.ID, title, sid, nil)
		}
	}
}

// section compares two versions of a section. existed is false when prev is
// the implicit empty section of a newly added one.
func (d *differ) section(course, title string, prev, cur catalog.Section, existed bool) {
	sid := cur.ID

	if prev.Instructor != cur.Instructor {
		d.emit(events.InstructorChanged, course, title, sid, events.TextChange{Old: prev.Instructor, New: cur.Instructor})
	}
	if d.valid(course, sid, catalog.FieldTotalSeats, prev, cur) && prev.TotalSeats != cur.TotalSeats {
		d.emit(events.TotalSeatsChanged, course, title, sid, events.CountChange{Old: prev.TotalSeats, New: cur.TotalSeats})
	}
	if d.valid(course, sid, catalog.FieldOpenSeats, prev, cur) && prev.OpenSeats != cur.OpenSeats {
		change := events.CountChange{Old: prev.OpenSeats, New: cur.OpenSeats}
		d.emit(events.OpenSeatsChanged, course, title, sid, change)
		if existed && prev.OpenSeats == 0 && cur.OpenSeats > 0 {
			d.emit(events.OpenSeatAvailable, course, title, sid, change)
		}
	}
	if d.valid(course, sid, catalog.FieldWaitlist, prev, cur) && prev.Waitlist != cur.Waitlist {
		d.emit(events.WaitlistChanged, course, title, sid, events.CountChange{Old: prev.Waitlist, New: cur.Waitlist})
	}
	if d.valid(course, sid, catalog.FieldHoldfile, prev, cur) && prev.Holdfile != cur.Holdfile {
		d.emit(events.HoldfileChanged, course, title, sid, events.CountChange{Old: prev.Holdfile, New: cur.Holdfile})
	}
	if old, now := catalog.CanonicalMeetings(prev.Meetings), catalog.CanonicalMeetings(cur.Meetings); old != now {
		d.emit(events.MeetingTimesChanged, course, title, sid, events.TextChange{Old: old, New: now})
	}
}

// valid reports whether field can be compared, logging when it cannot.
func (d *differ) valid(course, section string, field catalog.Field, prev, cur catalog.Section) bool {
	if !prev.Invalid.Has(field) && !cur.Invalid.Has(field) {
		return true
	}
	d.logger.Warn().
		Str("semester", d.semester).
		Str("course", course).
		Str("section", section).
		Stringer("field", field).
		Bool("previous_invalid", prev.Invalid.Has(field)).
		Bool("current_invalid", cur.Invalid.Has(field)).
		Msg("Skipping malformed field")
	return false
}

func (d *differ) emit(t events.Type, course, title, section string, change events.Change) {
	if d.ignore[t] {
		return
	}
	d.out = append(d.out, events.Event{
		Type:      t,
		Semester:  d.semester,
		Course:    course,
		Title:     title,
		Section:   section,
		Change:    change,
		Timestamp: d.ts,
	})
}
