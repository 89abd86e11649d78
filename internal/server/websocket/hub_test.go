package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/seatwatch/internal/server/stream"
	"github.com/agentstation/seatwatch/pkg/events"
	"github.com/agentstation/seatwatch/pkg/livefeed"
)

func entry(id, dept string) stream.Message {
	return stream.EntryMessage(livefeed.Entry{EventID: id, Semester: "202508", Department: dept, Type: events.WaitlistChanged})
}

func serve(t *testing.T, hub *Hub, backlog ...stream.Message) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, err := stream.ParseFilter(r.URL.Query())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Attach("test", conn, f, backlog)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+query, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) stream.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m stream.Message
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestHelloBacklogThenLive(t *testing.T) {
	logger := zerolog.Nop()
	hub := NewHub(&logger)
	conn := dial(t, serve(t, hub, entry("old", "CMSC")), "")

	hello := read(t, conn)
	assert.Equal(t, stream.KindHello, hello.Kind)
	assert.Equal(t, "test", hello.Client)
	assert.Equal(t, "old", read(t, conn).ID())

	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, hub.Send(entry("live", "CMSC")))
	assert.Equal(t, "live", read(t, conn).ID())
}

func TestFilterFrames(t *testing.T) {
	logger := zerolog.Nop()
	hub := NewHub(&logger)
	conn := dial(t, serve(t, hub), "?dept=CMSC")
	read(t, conn)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Send(entry("math", "MATH")))
	require.NoError(t, hub.Send(entry("cmsc", "CMSC")))
	assert.Equal(t, "cmsc", read(t, conn).ID())

	require.NoError(t, conn.WriteJSON(stream.FilterSpec{Department: "math"}))
	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		for c := range hub.clients {
			return c.Filter().Department == "MATH"
		}
		return false
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Send(entry("cmsc2", "CMSC")))
	require.NoError(t, hub.Send(entry("math2", "MATH")))
	assert.Equal(t, "math2", read(t, conn).ID())
}

func TestDisconnectAndClose(t *testing.T) {
	logger := zerolog.Nop()
	hub := NewHub(&logger)
	srv := serve(t, hub)

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)
	_ = conn.Close()
	assert.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	conn = dial(t, srv, "")
	read(t, conn)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, hub.Close())
	assert.Zero(t, hub.Len())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived), "got %v", err)
}
