package stream

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/seatwatch/pkg/events"
	"github.com/agentstation/seatwatch/pkg/livefeed"
)

type recorder struct {
	mu     sync.Mutex
	msgs   []Message
	closed bool
}

func (r *recorder) Send(m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) snapshot() ([]Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...), r.closed
}

func TestBrokerSequencesInOrder(t *testing.T) {
	logger := zerolog.Nop()
	b := NewBroker(&logger)
	a, c := &recorder{}, &recorder{}
	b.Subscribe(a)
	b.Subscribe(c)
	require.Equal(t, 2, b.Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.PublishEntry(livefeed.Entry{EventID: "e1", Course: "CMSC131"})
	b.PublishCycle(Cycle{Semester: "202508", Prefix: "CMSC", Events: 1})

	require.Eventually(t, func() bool {
		msgs, _ := c.snapshot()
		return len(msgs) == 2
	}, time.Second, 5*time.Millisecond)

	msgs, _ := a.snapshot()
	require.Len(t, msgs, 2)
	assert.Equal(t, uint64(1), msgs[0].Seq)
	assert.Equal(t, KindEntry, msgs[0].Kind)
	assert.Equal(t, "e1", msgs[0].ID())
	assert.Equal(t, uint64(2), msgs[1].Seq)
	assert.Equal(t, "2", msgs[1].ID())
	assert.False(t, msgs[1].Time.IsZero())
}

func TestBrokerUnsubscribeAndShutdown(t *testing.T) {
	logger := zerolog.Nop()
	b := NewBroker(&logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	a, c := &recorder{}, &recorder{}
	b.Subscribe(a)
	b.Subscribe(c)

	b.Unsubscribe(a)
	assert.Equal(t, 1, b.Len())
	_, closed := a.snapshot()
	assert.True(t, closed)

	cancel()
	<-done
	assert.Zero(t, b.Len())
	_, closed = c.snapshot()
	assert.True(t, closed)
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter(url.Values{
		"semester": {"202508"},
		"dept":     {"cmsc"},
		"types":    {"open_seat_available,waitlist_changed", "instructor_changed"},
	})
	require.NoError(t, err)
	assert.Equal(t, "202508", f.Semester)
	assert.Equal(t, "CMSC", f.Department)
	assert.Len(t, f.Types, 3)

	f, err = ParseFilter(url.Values{})
	require.NoError(t, err)
	assert.Nil(t, f.Types)

	_, err = ParseFilter(url.Values{"types": {"seat_sold"}})
	assert.Error(t, err)
}

func TestFilterMatch(t *testing.T) {
	entry := func(semester, dept string, typ events.Type) Message {
		return EntryMessage(livefeed.Entry{Semester: semester, Department: dept, Type: typ})
	}
	f := Filter{Semester: "202508", Department: "CMSC", Types: map[events.Type]bool{events.OpenSeatAvailable: true}}

	assert.True(t, f.Match(entry("202508", "CMSC", events.OpenSeatAvailable)))
	assert.False(t, f.Match(entry("202508", "CMSC", events.InstructorChanged)))
	assert.False(t, f.Match(entry("202601", "CMSC", events.OpenSeatAvailable)))
	assert.False(t, f.Match(entry("202508", "MATH", events.OpenSeatAvailable)))

	assert.True(t, f.Match(Message{Kind: KindCycle, Cycle: &Cycle{Semester: "202508", Prefix: "cmsc"}}))
	assert.False(t, f.Match(Message{Kind: KindCycle, Cycle: &Cycle{Semester: "202508", Prefix: "MATH"}}))
	assert.True(t, f.Match(Message{Kind: KindHello}))

	assert.True(t, Filter{}.Match(entry("202601", "MATH", events.CourseAdded)))
}
