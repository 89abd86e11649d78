package differ

import (
	"fmt"
	"strings"

	"github.com/agentstation/seatwatch/pkg/events"
)

// Summary provides summary statistics for a batch of events.
type Summary struct {
	CoursesAdded    int
	CoursesRemoved  int
	SectionsAdded   int
	SectionsRemoved int
	FieldChanges    int
	SeatsOpened     int
	Courses         int // distinct courses touched
	TotalChanges    int
}

// Summarize computes the summary for a batch of events.
func Summarize(evs []events.Event) Summary {
	s := Summary{TotalChanges: len(evs)}
	courses := make(map[string]struct{})
	for _, ev := range evs {
		courses[ev.Course] = struct{}{}
		switch ev.Type {
		case events.CourseAdded:
			s.CoursesAdded++
		case events.CourseRemoved:
			s.CoursesRemoved++
		case events.SectionAdded:
			s.SectionsAdded++
		case events.SectionRemoved:
			s.SectionsRemoved++
		case events.OpenSeatAvailable:
			s.SeatsOpened++
		default:
			s.FieldChanges++
		}
	}
	s.Courses = len(courses)
	return s
}

// IsEmpty returns true if the batch contains no changes.
func (s Summary) IsEmpty() bool {
	return s.TotalChanges == 0
}

// String returns a human-readable summary.
func (s Summary) String() string {
	if s.IsEmpty() {
		return "No changes detected"
	}

	var parts []string
	add := func(n int, label string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, label))
		}
	}
	add(s.CoursesAdded, "courses added")
	add(s.CoursesRemoved, "courses removed")
	add(s.SectionsAdded, "sections added")
	add(s.SectionsRemoved, "sections removed")
	add(s.FieldChanges, "field changes")
	add(s.SeatsOpened, "seats opened")

	return fmt.Sprintf("Changes: %s (Total: %d events across %d courses)", strings.Join(parts, ", "), s.TotalChanges, s.Courses)
}
