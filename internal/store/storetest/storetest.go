// Package storetest holds the behavioral suite every seatwatch store must
// pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/seatwatch"
	"github.com/agentstation/seatwatch/pkg/catalog"
	"github.com/agentstation/seatwatch/pkg/errors"
	"github.com/agentstation/seatwatch/pkg/events"
	"github.com/agentstation/seatwatch/pkg/livefeed"
	"github.com/agentstation/seatwatch/pkg/notify"
	"github.com/agentstation/seatwatch/pkg/subscriptions"
)

// Store is the full read/write surface under test.
type Store = seatwatch.Backend

var base = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

// Run executes the suite. newStore must return an empty store each call.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("RunState", func(t *testing.T) { testRunState(t, newStore(t)) })
	t.Run("Snapshots", func(t *testing.T) { testSnapshots(t, newStore(t)) })
	t.Run("Events", func(t *testing.T) { testEvents(t, newStore(t)) })
	t.Run("Subscriptions", func(t *testing.T) { testSubscriptions(t, newStore(t)) })
	t.Run("Profiles", func(t *testing.T) { testProfiles(t, newStore(t)) })
	t.Run("Community", func(t *testing.T) { testCommunity(t, newStore(t)) })
	t.Run("Feed", func(t *testing.T) { testFeed(t, newStore(t)) })
	t.Run("InvalidMarkers", func(t *testing.T) { testInvalidMarkers(t, newStore(t)) })
	t.Run("MalformedSeats", func(t *testing.T) { testMalformedSeats(t, newStore) })
}

func testRunState(t *testing.T, s Store) {
	ctx := context.Background()
	_, err := s.LastRun(ctx, "202508/CMSC")
	assert.True(t, errors.IsNotFound(err))

	require.NoError(t, s.SetLastRun(ctx, "202508/CMSC", base))
	require.NoError(t, s.SetLastRun(ctx, "202508/CMSC", base.Add(time.Minute)))

	got, err := s.LastRun(ctx, "202508/CMSC")
	require.NoError(t, err)
	assert.True(t, got.Equal(base.Add(time.Minute)))
}

func testSnapshots(t *testing.T, s Store) {
	ctx := context.Background()
	_, err := s.LastSnapshot(ctx, "202508", "CMSC")
	assert.True(t, errors.IsNotFound(err))

	c := catalog.Catalog{
		"CMSC131": {ID: "CMSC131", Name: "OOP I", Description: "Intro", Sections: map[string]catalog.Section{
			"0101": {ID: "0101", OpenSeats: 2, TotalSeats: 30, Waitlist: 1, Instructor: "Nelson",
				Meetings: []catalog.Meeting{{Days: "MWF", Start: "10:00am", End: "10:50am", Building: "IRB", Room: "0324"}}},
		}},
	}
	require.NoError(t, s.SaveSnapshot(ctx, "202508", "CMSC", c))

	got, err := s.LastSnapshot(ctx, "202508", "CMSC")
	require.NoError(t, err)
	assert.True(t, got.Equal(c))

	require.NoError(t, s.SaveSnapshot(ctx, "202508", "CMSC", catalog.Catalog{}))
	got, err = s.LastSnapshot(ctx, "202508", "CMSC")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testInvalidMarkers(t *testing.T, s Store) {
	ctx := context.Background()
	c := catalog.Catalog{
		"CMSC131": {ID: "CMSC131", Sections: map[string]catalog.Section{
			"0101": {ID: "0101", TotalSeats: 30, Invalid: catalog.FieldSet(0).With(catalog.FieldOpenSeats)},
		}},
	}
	require.NoError(t, s.SaveSnapshot(ctx, "202508", "CMSC", c))

	got, err := s.LastSnapshot(ctx, "202508", "CMSC")
	require.NoError(t, err)
	sec := got["CMSC131"].Sections["0101"]
	assert.True(t, sec.Invalid.Has(catalog.FieldOpenSeats))
	assert.False(t, sec.Invalid.Has(catalog.FieldTotalSeats))
}

// sequence serves one catalog per Fetch, in order.
type sequence struct {
	catalogs []catalog.Catalog
}

func (q *sequence) Fetch(context.Context, string, string) (catalog.Catalog, error) {
	c := q.catalogs[0]
	q.catalogs = q.catalogs[1:]
	return c.Clone(), nil
}

type discard struct{}

func (discard) Enqueue(context.Context, notify.Job) error { return nil }

func section(open uint, invalid bool) catalog.Catalog {
	s := catalog.Section{ID: "0101", OpenSeats: open, TotalSeats: 30}
	if invalid {
		s.Invalid = s.Invalid.With(catalog.FieldOpenSeats)
	}
	return catalog.Catalog{"CMSC131": {ID: "CMSC131", Name: "OOP I", Sections: map[string]catalog.Section{"0101": s}}}
}

// testMalformedSeats runs three cycles where the middle read of the open
// seat count is malformed. The malformed read counts as unchanged.
func testMalformedSeats(t *testing.T, newStore func(t *testing.T) Store) {
	tests := []struct {
		name       string
		before     uint
		after      uint
		wantEvents []events.Type
	}{
		{"unchanged around the bad read", 5, 5, nil},
		{"opening across the bad read", 0, 5, []events.Type{events.OpenSeatsChanged, events.OpenSeatAvailable}},
		{"closing across the bad read", 5, 0, []events.Type{events.OpenSeatsChanged}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			p, err := seatwatch.New(
				seatwatch.WithStore(newStore(t)),
				seatwatch.WithQueue(discard{}),
				seatwatch.WithPruneProbability(0),
			)
			require.NoError(t, err)
			src := &sequence{catalogs: []catalog.Catalog{
				section(tt.before, false),
				section(0, true),
				section(tt.after, false),
			}}

			var got [][]events.Type
			for i := range 3 {
				report, err := p.Cycle(ctx, src, "202508", "CMSC", base.Add(time.Duration(i)*time.Minute))
				require.NoError(t, err)
				var types []events.Type
				for _, ev := range report.Events {
					types = append(types, ev.Type)
				}
				got = append(got, types)
			}
			assert.Empty(t, got[0], "first cycle seeds")
			assert.Empty(t, got[1], "malformed read emits nothing")
			assert.Equal(t, tt.wantEvents, got[2])
		})
	}
}

func testEvents(t *testing.T, s Store) {
	ctx := context.Background()
	first := events.Event{Type: events.OpenSeatsChanged, Semester: "202508", Course: "CMSC131", Section: "0101",
		Change: events.CountChange{Old: 0, New: 2}, Timestamp: base}
	first.Stamp()
	second := events.Event{Type: events.OpenSeatAvailable, Semester: "202508", Course: "CMSC131", Section: "0101",
		Change: events.CountChange{Old: 0, New: 2}, Timestamp: base.Add(time.Minute)}
	second.Stamp()

	require.NoError(t, s.AppendEvents(ctx, first.Key(), []events.Event{second, first}))
	require.NoError(t, s.AppendEvents(ctx, first.Key(), []events.Event{first}))

	got, err := s.Events(ctx, "CMSC131-0101")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, events.CountChange{Old: 0, New: 2}, got[1].Change)

	got, err = s.Events(ctx, "CMSC132")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testSubscriptions(t *testing.T, s Store) {
	ctx := context.Background()
	sub := subscriptions.Subscription{
		Semester: "202508", Scope: subscriptions.ScopeCourse, Key: "CMSC131", UserID: "bob",
		Settings: subscriptions.Settings{events.OpenSeatAvailable: true, events.InstructorChanged: false},
	}
	require.NoError(t, s.Subscribe(ctx, sub))
	sub.UserID = "alice"
	require.NoError(t, s.Subscribe(ctx, sub))

	got, err := s.Subscribers(ctx, "202508", subscriptions.ScopeCourse, "CMSC131")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].UserID)
	assert.Equal(t, sub.Settings, got[0].Settings)

	none, err := s.Subscribers(ctx, "202508", subscriptions.ScopeCourse, "CMSC132")
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, s.Unsubscribe(ctx, "202508", subscriptions.ScopeCourse, "CMSC131", "bob"))
	err = s.Unsubscribe(ctx, "202508", subscriptions.ScopeCourse, "CMSC131", "bob")
	assert.True(t, errors.IsNotFound(err))

	assert.True(t, errors.IsValidationError(s.Subscribe(ctx, subscriptions.Subscription{Semester: "202508"})))
}

func testProfiles(t *testing.T, s Store) {
	ctx := context.Background()
	_, err := s.Profile(ctx, "alice")
	assert.True(t, errors.IsNotFound(err))

	p := notify.Profile{
		UserID:  "alice",
		Tier:    notify.TierBasic,
		Push:    notify.Channel{Target: "https://push.example.com/alice", Enabled: true},
		Discord: notify.Channel{Target: "https://discord.com/api/webhooks/1/a"},
	}
	require.NoError(t, s.SaveProfile(ctx, p))
	got, err := s.Profile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func testCommunity(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.AddCommunityChannel(ctx, "202508", subscriptions.ScopeDepartment, "CMSC", "https://discord.com/api/webhooks/2/b"))
	require.NoError(t, s.AddCommunityChannel(ctx, "202508", subscriptions.ScopeDepartment, "CMSC", "https://discord.com/api/webhooks/2/b"))

	got, err := s.Channels(ctx, "202508", subscriptions.ScopeDepartment, "CMSC")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://discord.com/api/webhooks/2/b"}, got)

	err = s.AddCommunityChannel(ctx, "202508", subscriptions.ScopeCourse, "CMSC131", "https://discord.com/api/webhooks/3/c")
	assert.True(t, errors.IsValidationError(err))
}

func testFeed(t *testing.T, s Store) {
	ctx := context.Background()
	var entries []livefeed.Entry
	for i := range 5 {
		entries = append(entries, livefeed.Entry{
			EventID:    string(rune('a' + i)),
			Semester:   "202508",
			Department: "CMSC",
			Course:     "CMSC131",
			Type:       events.OpenSeatsChanged,
			ObservedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
	require.NoError(t, s.Append(ctx, entries))
	require.NoError(t, s.Append(ctx, entries[:1]))

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "e", recent[0].EventID)
	assert.Equal(t, "d", recent[1].EventID)

	n, err := s.PruneBefore(ctx, base.Add(3*time.Hour), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = s.PruneBefore(ctx, base.Add(3*time.Hour), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recent, err = s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}
