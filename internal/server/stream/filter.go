package stream

import (
	"net/url"
	"strings"

	"github.com/agentstation/seatwatch/pkg/events"
)

// Filter narrows what a client receives. The zero Filter matches
// everything.
type Filter struct {
	Semester   string
	Department string
	// Types limits feed entries to these event types; nil allows all.
	Types map[events.Type]bool
}

// FilterSpec is the wire form of a Filter, used by query strings and
// WebSocket control frames.
type FilterSpec struct {
	Semester   string   `json:"semester"`
	Department string   `json:"dept"`
	Types      []string `json:"types"`
}

// Filter validates the spec.
func (s FilterSpec) Filter() (Filter, error) {
	f := Filter{
		Semester:   strings.TrimSpace(s.Semester),
		Department: strings.ToUpper(strings.TrimSpace(s.Department)),
	}
	for _, name := range s.Types {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		t, err := events.ParseType(name)
		if err != nil {
			return Filter{}, err
		}
		if f.Types == nil {
			f.Types = make(map[events.Type]bool)
		}
		f.Types[t] = true
	}
	return f, nil
}

// ParseFilter reads ?semester=, ?dept= and a comma separated ?types=.
func ParseFilter(q url.Values) (Filter, error) {
	var types []string
	for _, v := range q["types"] {
		types = append(types, strings.Split(v, ",")...)
	}
	return FilterSpec{
		Semester:   q.Get("semester"),
		Department: q.Get("dept"),
		Types:      types,
	}.Filter()
}

// Match reports whether m passes the filter. Cycle summaries ignore the
// type list; a cycle's prefix is compared with the department.
func (f Filter) Match(m Message) bool {
	switch {
	case m.Entry != nil:
		e := m.Entry
		if f.Types != nil && !f.Types[e.Type] {
			return false
		}
		return f.scope(e.Semester, e.Department)
	case m.Cycle != nil:
		return f.scope(m.Cycle.Semester, strings.ToUpper(m.Cycle.Prefix))
	default:
		return true
	}
}

func (f Filter) scope(semester, dept string) bool {
	if f.Semester != "" && f.Semester != semester {
		return false
	}
	return f.Department == "" || f.Department == dept
}
