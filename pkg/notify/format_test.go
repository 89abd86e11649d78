package notify_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/seatwatch/pkg/catalog"
	"github.com/agentstation/seatwatch/pkg/events"
	"github.com/agentstation/seatwatch/pkg/notify"
)

func sampleEvent(t events.Type) events.Event {
	ev := events.Event{Type: t, Semester: semester, Course: "CMSC131", Title: "OOP I"}
	if t.SectionLevel() {
		ev.Section = "0101"
	}
	switch t.Kind() {
	case events.KindCount:
		ev.Change = events.CountChange{Old: 0, New: 3}
	case events.KindText:
		ev.Change = events.TextChange{Old: "Herman", New: "Mount"}
	}
	if t == events.MeetingTimesChanged {
		ev.Change = events.TextChange{
			Old: catalog.CanonicalMeetings([]catalog.Meeting{{Days: "MWF", Start: "10:00am", End: "10:50am", Building: "IRB", Room: "0324"}}),
			New: "",
		}
	}
	ev.Stamp()
	return ev
}

func TestEveryTypeFormats(t *testing.T) {
	for _, typ := range events.AllTypes() {
		t.Run(string(typ), func(t *testing.T) {
			ev := sampleEvent(typ)
			headline, err := notify.Headline(ev)
			require.NoError(t, err)
			assert.Contains(t, headline, "CMSC131")

			for _, kind := range []notify.ChannelKind{notify.ChannelPush, notify.ChannelDiscord, notify.ChannelWebhook} {
				payload, err := notify.Payload(kind, ev)
				require.NoError(t, err)
				assert.True(t, json.Valid(payload))
			}
		})
	}

	_, err := notify.Headline(events.Event{Type: "seat_sold"})
	assert.Error(t, err)
	_, err = notify.Payload("carrier-pigeon", sampleEvent(events.CourseAdded))
	assert.Error(t, err)
}

func TestDiscordPayload(t *testing.T) {
	var msg struct {
		Content string `json:"content"`
	}

	payload, err := notify.DiscordPayload(sampleEvent(events.OpenSeatAvailable))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Contains(t, msg.Content, "**A seat opened up in CMSC131 section 0101**")
	assert.Contains(t, msg.Content, "`0` → `3`")

	payload, err = notify.DiscordPayload(sampleEvent(events.MeetingTimesChanged))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Contains(t, msg.Content, "MWF 10:00am-10:50am IRB 0324")
	assert.Contains(t, msg.Content, "none")

	long := sampleEvent(events.CourseDescriptionChanged)
	long.Change = events.TextChange{Old: strings.Repeat("a", 3000)}
	payload, err = notify.DiscordPayload(long)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.LessOrEqual(t, len(msg.Content), 2000+len("…"))
}

func TestPushPayload(t *testing.T) {
	var push struct {
		Title string `json:"title"`
		Body  string `json:"body"`
		Tag   string `json:"tag"`
	}
	payload, err := notify.PushPayload(sampleEvent(events.WaitlistChanged))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(payload, &push))
	assert.Equal(t, "Waitlist changed for CMSC131 section 0101", push.Title)
	assert.Equal(t, "0 → 3", push.Body)
	assert.Equal(t, "CMSC131-0101", push.Tag)

	payload, err = notify.PushPayload(sampleEvent(events.CourseAdded))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(payload, &push))
	assert.Equal(t, "OOP I", push.Body)
}

func TestShard(t *testing.T) {
	const n = 8
	counts := make([]int, n)
	for i := range 4000 {
		url := fmt.Sprintf("https://discord.com/api/webhooks/%d/token", i)
		s := notify.Shard(url, n)
		require.GreaterOrEqual(t, s, 0)
		require.Less(t, s, n)
		assert.Equal(t, s, notify.Shard(url, n))
		counts[s]++
	}
	for i, c := range counts {
		assert.InDelta(t, 500, c, 150, "shard %d", i)
	}
	assert.Equal(t, 0, notify.Shard("anything", 1))
	assert.Equal(t, 0, notify.Shard("anything", 0))
}

func TestHTTPSender(t *testing.T) {
	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		got, _ = io.ReadAll(r.Body)
		switch r.URL.Path {
		case "/slow":
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
		case "/gone":
			http.Error(w, "unknown webhook", http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	s := notify.NewHTTPSender(srv.Client())
	require.NoError(t, s.Send(context.Background(), srv.URL+"/ok", []byte(`{"a":1}`)))
	assert.JSONEq(t, `{"a":1}`, string(got))

	err := s.Send(context.Background(), srv.URL+"/slow", []byte(`{}`))
	var se *notify.StatusError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Retryable())
	assert.Equal(t, 7*time.Second, se.RetryAfter)

	err = s.Send(context.Background(), srv.URL+"/gone", []byte(`{}`))
	require.ErrorAs(t, err, &se)
	assert.False(t, se.Retryable())
	assert.Contains(t, se.Error(), "unknown webhook")
}

func TestRateLimitedSender(t *testing.T) {
	rec := &recordingSender{}
	s := notify.NewRateLimitedSender(rec, 1000, 2)
	for range 3 {
		require.NoError(t, s.Send(context.Background(), "t", []byte("x")))
	}
	assert.Len(t, rec.sent["t"], 3)

	slow := notify.NewRateLimitedSender(rec, 0.001, 1)
	require.NoError(t, slow.Send(context.Background(), "t", nil))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, slow.Send(ctx, "t", nil), "waiting past the deadline fails")
}
