// Package events defines the typed change events produced by diffing two
// catalog snapshots.
package events

import (
	"fmt"
)

// Type identifies one of the event variants.
type Type string

// Lifecycle events.
const (
	CourseAdded    Type = "course_added"
	CourseRemoved  Type = "course_removed"
	SectionAdded   Type = "section_added"
	SectionRemoved Type = "section_removed"
)

// Field-change events.
const (
	CourseNameChanged        Type = "course_name_changed"
	CourseDescriptionChanged Type = "course_description_changed"
	InstructorChanged        Type = "instructor_changed"
	TotalSeatsChanged        Type = "total_seats_changed"
	OpenSeatsChanged         Type = "open_seats_changed"
	WaitlistChanged          Type = "waitlist_changed"
	HoldfileChanged          Type = "holdfile_changed"
	MeetingTimesChanged      Type = "meeting_times_changed"
)

// OpenSeatAvailable is synthesized when a section's open seats go from zero to positive.
const OpenSeatAvailable Type = "open_seat_available"

// Kind groups types by the shape of their payload.
type Kind int

// Event kinds.
const (
	KindUnknown Kind = iota
	KindLifecycle
	KindText
	KindCount
)

// AllTypes returns every event type in a fixed order.
func AllTypes() []Type {
	return []Type{
		CourseAdded,
		CourseRemoved,
		SectionAdded,
		SectionRemoved,
		CourseNameChanged,
		CourseDescriptionChanged,
		InstructorChanged,
		TotalSeatsChanged,
		OpenSeatsChanged,
		WaitlistChanged,
		HoldfileChanged,
		MeetingTimesChanged,
		OpenSeatAvailable,
	}
}

// Kind returns the payload kind of the type.
func (t Type) Kind() Kind {
	switch t {
	case CourseAdded, CourseRemoved, SectionAdded, SectionRemoved:
		return KindLifecycle
	case CourseNameChanged, CourseDescriptionChanged, InstructorChanged, MeetingTimesChanged:
		return KindText
	case TotalSeatsChanged, OpenSeatsChanged, WaitlistChanged, HoldfileChanged, OpenSeatAvailable:
		return KindCount
	default:
		return KindUnknown
	}
}

// Valid reports whether t is a known event type.
func (t Type) Valid() bool {
	return t.Kind() != KindUnknown
}

// SectionLevel reports whether events of this type always carry a section.
func (t Type) SectionLevel() bool {
	switch t {
	case CourseAdded, CourseRemoved, CourseNameChanged, CourseDescriptionChanged:
		return false
	default:
		return t.Valid()
	}
}

// String implements fmt.Stringer.
func (t Type) String() string {
	return string(t)
}

// ParseType parses an event type name.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return t, nil
}
