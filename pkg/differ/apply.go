package differ

import (
	"fmt"

	"github.com/agentstation/seatwatch/pkg/catalog"
	"github.com/agentstation/seatwatch/pkg/errors"
	"github.com/agentstation/seatwatch/pkg/events"
)

// Apply replays events onto a copy of base. Applying Generate(a, b, ...)
// to a yields a catalog equal to b. An event naming a course or section
// that does not exist at that point is an error, as is adding one that
// already exists.
func Apply(base catalog.Catalog, evs []events.Event) (catalog.Catalog, error) {
	out := base.Clone()
	if out == nil {
		out = make(catalog.Catalog)
	}

	for _, ev := range evs {
		var err error
		switch ev.Type {
		case events.CourseAdded:
			if _, ok := out[ev.Course]; ok {
				return nil, applyError(ev, "course already exists")
			}
			out[ev.Course] = catalog.Course{ID: ev.Course, Name: ev.Title, Sections: map[string]catalog.Section{}}
		case events.CourseRemoved:
			if _, ok := out[ev.Course]; !ok {
				return nil, errors.NewNotFoundError("course", ev.Course)
			}
			delete(out, ev.Course)
		case events.SectionAdded:
			err = updateCourse(out, ev, func(c *catalog.Course) error {
				if _, ok := c.Sections[ev.Section]; ok {
					return applyError(ev, "section already exists")
				}
				c.Sections[ev.Section] = catalog.Section{ID: ev.Section}
				return nil
			})
		case events.SectionRemoved:
			err = updateCourse(out, ev, func(c *catalog.Course) error {
				if _, ok := c.Sections[ev.Section]; !ok {
					return errors.NewNotFoundError("section", ev.Key())
				}
				delete(c.Sections, ev.Section)
				return nil
			})
		case events.CourseNameChanged, events.CourseDescriptionChanged:
			c, ok := ev.Text()
			if !ok {
				return nil, changeError(ev)
			}
			err = updateCourse(out, ev, func(course *catalog.Course) error {
				if ev.Type == events.CourseNameChanged {
					course.Name = c.New
				} else {
					course.Description = c.New
				}
				return nil
			})
		case events.InstructorChanged, events.MeetingTimesChanged:
			c, ok := ev.Text()
			if !ok {
				return nil, changeError(ev)
			}
			err = updateSection(out, ev, func(s *catalog.Section) error {
				if ev.Type == events.InstructorChanged {
					s.Instructor = c.New
					return nil
				}
				meetings, err := catalog.ParseMeetings(c.New)
				s.Meetings = meetings
				return err
			})
		case events.TotalSeatsChanged, events.OpenSeatsChanged, events.WaitlistChanged, events.HoldfileChanged:
			c, ok := ev.Count()
			if !ok {
				return nil, changeError(ev)
			}
			err = updateSection(out, ev, func(s *catalog.Section) error {
				switch ev.Type {
				case events.TotalSeatsChanged:
					s.TotalSeats = c.New
				case events.OpenSeatsChanged:
					s.OpenSeats = c.New
				case events.WaitlistChanged:
					s.Waitlist = c.New
				case events.HoldfileChanged:
					s.Holdfile = c.New
				}
				return nil
			})
		case events.OpenSeatAvailable:
			// Derived from open_seats_changed, which carries the new value.
		default:
			return nil, fmt.Errorf("apply %s: unknown event type", ev.Type)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// updateCourse runs fn on the existing course named by ev.
func updateCourse(c catalog.Catalog, ev events.Event, fn func(*catalog.Course) error) error {
	course, ok := c[ev.Course]
	if !ok {
		return errors.NewNotFoundError("course", ev.Course)
	}
	course = course.Clone()
	if course.Sections == nil {
		course.Sections = make(map[string]catalog.Section)
	}
	if err := fn(&course); err != nil {
		return err
	}
	c[ev.Course] = course
	return nil
}

// updateSection runs fn on the existing section named by ev.
func updateSection(c catalog.Catalog, ev events.Event, fn func(*catalog.Section) error) error {
	return updateCourse(c, ev, func(course *catalog.Course) error {
		s, ok := course.Sections[ev.Section]
		if !ok {
			return errors.NewNotFoundError("section", ev.Key())
		}
		if err := fn(&s); err != nil {
			return fmt.Errorf("apply %s to %s: %w", ev.Type, ev.Key(), err)
		}
		course.Sections[ev.Section] = s
		return nil
	})
}

func applyError(ev events.Event, msg string) error {
	return fmt.Errorf("apply %s to %s: %s", ev.Type, ev.Key(), msg)
}

func changeError(ev events.Event) error {
	return fmt.Errorf("apply %s to %s: unexpected change payload %T", ev.Type, ev.Key(), ev.Change)
}
