// Package sse streams live feed messages as Server-Sent Events.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/seatwatch/internal/server/response"
	"github.com/agentstation/seatwatch/internal/server/stream"
	"github.com/agentstation/seatwatch/pkg/constants"
	"github.com/agentstation/seatwatch/pkg/logging"
)

// BacklogFunc returns recent messages matching f, oldest first.
type BacklogFunc func(ctx context.Context, f stream.Filter) []stream.Message

type client struct {
	ch     chan stream.Message
	filter stream.Filter
}

// Broadcaster is a stream.Subscriber that writes to SSE clients.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
	backlog BacklogFunc
	logger  *zerolog.Logger
}

var _ stream.Subscriber = (*Broadcaster)(nil)

// NewBroadcaster creates a broadcaster.
func NewBroadcaster(logger *zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		clients: make(map[*client]struct{}),
		logger:  logging.OrNop(logger),
	}
}

// SetBacklog installs the replay source for new clients.
func (b *Broadcaster) SetBacklog(fn BacklogFunc) {
	b.backlog = fn
}

// Send implements stream.Subscriber. A client whose buffer is full misses
// m and can catch up by reconnecting with Last-Event-ID.
func (b *Broadcaster) Send(m stream.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for c := range b.clients {
		if !c.filter.Match(m) {
			continue
		}
		select {
		case c.ch <- m:
		default:
			b.logger.Warn().Str("id", m.ID()).Msg("SSE client buffer full, message skipped")
		}
	}
	return nil
}

// Close implements stream.Subscriber. It ends every open stream and
// refuses new ones.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		close(c.ch)
	}
	clear(b.clients)
	b.closed = true
	return nil
}

// Len returns the number of connected clients.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) attach(f stream.Filter) (*client, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, false
	}
	c := &client{ch: make(chan stream.Message, constants.ChannelBufferSize), filter: f}
	b.clients[c] = struct{}{}
	b.logger.Debug().Int("clients", len(b.clients)).Msg("SSE client connected")
	return c, true
}

func (b *Broadcaster) detach(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.ch)
	}
	b.logger.Debug().Int("clients", len(b.clients)).Msg("SSE client disconnected")
}

// ServeHTTP streams messages until the client goes away. The query string
// selects a stream.Filter. A Last-Event-ID header skips the backlog up to
// and including that entry.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filter, err := stream.ParseFilter(r.URL.Query())
	if err != nil {
		response.BadRequest(w, "Invalid filter", err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		response.InternalError(w, nil)
		return
	}
	c, ok := b.attach(filter)
	if !ok {
		response.ServiceUnavailable(w, "stream is shutting down")
		return
	}
	defer b.detach(c)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	b.write(w, stream.Message{Kind: stream.KindHello, Time: time.Now().UTC()})

	// Entries stored just before attach can arrive both ways.
	replayed := make(map[string]bool)
	if b.backlog != nil {
		for _, m := range resume(b.backlog(r.Context(), filter), r.Header.Get("Last-Event-ID")) {
			replayed[m.ID()] = true
			b.write(w, m)
		}
	}
	flusher.Flush()

	for {
		select {
		case m, ok := <-c.ch:
			if !ok {
				return
			}
			if m.Entry != nil && replayed[m.ID()] {
				continue
			}
			b.write(w, m)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// resume drops the messages up to and including lastID. An unknown id
// replays everything.
func resume(backlog []stream.Message, lastID string) []stream.Message {
	if lastID == "" {
		return backlog
	}
	for i, m := range backlog {
		if m.ID() == lastID {
			return backlog[i+1:]
		}
	}
	return backlog
}

func (b *Broadcaster) write(w io.Writer, m stream.Message) {
	data, err := json.Marshal(m)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to marshal SSE message")
		return
	}
	if id := m.ID(); id != "" {
		_, _ = fmt.Fprintf(w, "id: %s\n", id)
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", m.Kind, data)
}
