package catalog_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/seatwatch/pkg/catalog"
	"github.com/agentstation/seatwatch/pkg/errors"
)

const snapshot = `
semester: "202508"
prefix: CMSC
courses:
  - id: CMSC131
    name: Object-Oriented Programming I
    description: Introduction to programming.
    sections:
      - id: "0101"
        open_seats: 0
        total_seats: 30
        instructor: " Fawzi Emad "
        waitlist: 5
        holdfile: 1
        meetings:
          - days: MWF
            start: "10:00am"
            end: "10:50am"
            building: IRB
            room: "0324"
      - id: "0102"
        open_seats: "12"
        total_seats: TBA
        waitlist: -3
  - id: CMSC132
    name: Object-Oriented Programming II
`

func TestDecode(t *testing.T) {
	c, err := catalog.Decode([]byte(snapshot))
	require.NoError(t, err)

	assert.Equal(t, []string{"CMSC131", "CMSC132"}, c.CourseIDs())
	assert.Equal(t, 2, c.Sections())

	s := c["CMSC131"].Sections["0101"]
	assert.Equal(t, uint(0), s.OpenSeats)
	assert.Equal(t, uint(30), s.TotalSeats)
	assert.Equal(t, uint(5), s.Waitlist)
	assert.Equal(t, uint(1), s.Holdfile)
	assert.Equal(t, "Fawzi Emad", s.Instructor)
	assert.Zero(t, s.Invalid)
	require.Len(t, s.Meetings, 1)
	assert.Equal(t, "IRB", s.Meetings[0].Building)

	bad := c["CMSC131"].Sections["0102"]
	assert.Equal(t, uint(12), bad.OpenSeats, "numeric strings are accepted")
	assert.False(t, bad.Invalid.Has(catalog.FieldOpenSeats))
	assert.True(t, bad.Invalid.Has(catalog.FieldTotalSeats))
	assert.True(t, bad.Invalid.Has(catalog.FieldWaitlist))
	assert.False(t, bad.Invalid.Has(catalog.FieldHoldfile), "missing values are zero, not invalid")
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		parse bool
	}{
		{name: "not yaml", input: "courses: [", parse: true},
		{name: "missing course id", input: "courses:\n  - name: x\n"},
		{name: "duplicate course", input: "courses:\n  - id: A1\n  - id: A1\n"},
		{name: "duplicate section", input: "courses:\n  - id: A1\n    sections:\n      - id: \"1\"\n      - id: \"1\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.Decode([]byte(tt.input))
			require.Error(t, err)
			if tt.parse {
				var pe *errors.ParseError
				assert.ErrorAs(t, err, &pe)
			} else {
				assert.True(t, errors.IsValidationError(err))
			}
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	c, err := catalog.Decode([]byte(snapshot))
	require.NoError(t, err)

	data, err := catalog.Encode(c, "202508", "CMSC")
	require.NoError(t, err)

	again, err := catalog.Decode(data)
	require.NoError(t, err)
	assert.True(t, c.Equal(again), cmp.Diff(c, again))

	// Invalid markers survive storage.
	bad := again["CMSC131"].Sections["0102"]
	assert.True(t, bad.Invalid.Has(catalog.FieldTotalSeats))
	assert.True(t, bad.Invalid.Has(catalog.FieldWaitlist))
	assert.False(t, bad.Invalid.Has(catalog.FieldOpenSeats))
	assert.Contains(t, string(data), "invalid:")
}

func TestSettle(t *testing.T) {
	marked := func(s catalog.Section, fields ...catalog.Field) catalog.Section {
		for _, f := range fields {
			s.Invalid = s.Invalid.With(f)
		}
		return s
	}
	previous := catalog.Catalog{
		"CMSC131": {ID: "CMSC131", Sections: map[string]catalog.Section{
			"0101": {ID: "0101", OpenSeats: 5, TotalSeats: 30, Waitlist: 2},
			"0102": marked(catalog.Section{ID: "0102", TotalSeats: 20}, catalog.FieldOpenSeats),
		}},
	}
	current := catalog.Catalog{
		"CMSC131": {ID: "CMSC131", Sections: map[string]catalog.Section{
			"0101": marked(catalog.Section{ID: "0101", TotalSeats: 30, Waitlist: 4}, catalog.FieldOpenSeats),
			"0102": marked(catalog.Section{ID: "0102", TotalSeats: 20}, catalog.FieldOpenSeats),
			"0103": marked(catalog.Section{ID: "0103"}, catalog.FieldHoldfile),
		}},
	}

	got := current.Settle(previous)

	s := got["CMSC131"].Sections["0101"]
	assert.Equal(t, uint(5), s.OpenSeats, "a malformed read keeps the previous value")
	assert.Equal(t, uint(4), s.Waitlist, "valid fields are untouched")
	assert.Zero(t, s.Invalid)

	s = got["CMSC131"].Sections["0102"]
	assert.True(t, s.Invalid.Has(catalog.FieldOpenSeats), "still unknown when the previous read was malformed too")

	s = got["CMSC131"].Sections["0103"]
	assert.True(t, s.Invalid.Has(catalog.FieldHoldfile), "new sections keep their markers")

	assert.True(t, current["CMSC131"].Sections["0101"].Invalid.Has(catalog.FieldOpenSeats), "input is not modified")
}

func TestDepartment(t *testing.T) {
	tests := map[string]string{
		"CMSC131":  "CMSC",
		"cmsc131":  "CMSC",
		"ENGL101H": "ENGL",
		"MATH":     "MATH",
		"":         "",
		"101":      "",
	}
	for in, want := range tests {
		assert.Equal(t, want, catalog.Department(in), in)
	}
}

func TestCanonicalMeetings(t *testing.T) {
	a := []catalog.Meeting{{Days: "TuTh", Start: "9:30am", Building: "ESJ"}}
	b := []catalog.Meeting{{Building: "ESJ", Start: "9:30am", Days: "TuTh"}}
	assert.Equal(t, catalog.CanonicalMeetings(a), catalog.CanonicalMeetings(b))
	assert.Empty(t, catalog.CanonicalMeetings(nil))
	assert.Equal(t, catalog.CanonicalMeetings(nil), catalog.CanonicalMeetings([]catalog.Meeting{}))

	swapped := []catalog.Meeting{{Days: "F"}, {Days: "M"}}
	ordered := []catalog.Meeting{{Days: "M"}, {Days: "F"}}
	assert.NotEqual(t, catalog.CanonicalMeetings(swapped), catalog.CanonicalMeetings(ordered))

	parsed, err := catalog.ParseMeetings(catalog.CanonicalMeetings(a))
	require.NoError(t, err)
	assert.Equal(t, a, parsed)
}

func TestCloneAndEqual(t *testing.T) {
	c, err := catalog.Decode([]byte(snapshot))
	require.NoError(t, err)

	clone := c.Clone()
	assert.True(t, c.Equal(clone))

	course := clone["CMSC131"]
	s := course.Sections["0101"]
	s.OpenSeats = 4
	s.Meetings[0].Room = "1115"
	course.Sections["0101"] = s

	assert.False(t, c.Equal(clone))
	assert.Equal(t, uint(0), c["CMSC131"].Sections["0101"].OpenSeats)
	assert.Equal(t, "0324", c["CMSC131"].Sections["0101"].Meetings[0].Room)

	// Invalid markers do not take part in equality.
	marked := c.Clone()
	m := marked["CMSC131"]
	ms := m.Sections["0101"]
	ms.Invalid = ms.Invalid.With(catalog.FieldHoldfile)
	m.Sections["0101"] = ms
	assert.True(t, c.Equal(marked))

	assert.True(t, catalog.Catalog(nil).Equal(catalog.Catalog{}))
}
