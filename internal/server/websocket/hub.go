// Package websocket streams live feed messages to WebSocket clients.
//
// Clients narrow their stream with the same query parameters as SSE and
// may replace the filter at any time by sending a JSON stream.FilterSpec.
package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/seatwatch/internal/server/stream"
	"github.com/agentstation/seatwatch/pkg/constants"
	"github.com/agentstation/seatwatch/pkg/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxControlSize = 4096
)

// Hub is a stream.Subscriber that writes to WebSocket clients.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	closed  bool
	logger  *zerolog.Logger
}

var _ stream.Subscriber = (*Hub)(nil)

// NewHub creates a hub.
func NewHub(logger *zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logging.OrNop(logger),
	}
}

// Send implements stream.Subscriber. A client that cannot keep up is
// disconnected; it reloads the backlog when it reconnects.
func (h *Hub) Send(m stream.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.Filter().Match(m) {
			continue
		}
		select {
		case c.send <- m:
		default:
			h.logger.Warn().Str("client", c.id).Msg("WebSocket client too slow, disconnecting")
			h.dropLocked(c)
		}
	}
	return nil
}

// Close implements stream.Subscriber.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
	h.closed = true
	return nil
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Attach registers conn and starts its pumps. The hello frame and backlog
// are queued ahead of any live message. A closed hub refuses the
// connection.
func (h *Hub) Attach(id string, conn *websocket.Conn, filter stream.Filter, backlog []stream.Message) *Client {
	c := &Client{
		id:     id,
		hub:    h,
		conn:   conn,
		filter: filter,
		send:   make(chan stream.Message, constants.ChannelBufferSize+len(backlog)+1),
	}
	c.send <- stream.Message{Kind: stream.KindHello, Time: time.Now().UTC(), Client: id}
	for _, m := range backlog {
		c.send <- m
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		_ = conn.Close()
		return c
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug().Str("client", id).Int("clients", n).Msg("WebSocket client connected")

	go c.writePump()
	go c.readPump()
	return c
}

func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Client is one WebSocket connection.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan stream.Message

	mu     sync.Mutex
	filter stream.Filter
}

// Filter returns the client's current filter.
func (c *Client) Filter() stream.Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

func (c *Client) setFilter(f stream.Filter) {
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
}

// readPump applies filter frames and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		c.hub.detach(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxControlSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug().Err(err).Str("client", c.id).Msg("WebSocket read failed")
			}
			return
		}
		var spec stream.FilterSpec
		if err := json.Unmarshal(data, &spec); err != nil {
			c.hub.logger.Debug().Err(err).Str("client", c.id).Msg("Ignoring malformed filter frame")
			continue
		}
		f, err := spec.Filter()
		if err != nil {
			c.hub.logger.Debug().Err(err).Str("client", c.id).Msg("Ignoring invalid filter frame")
			continue
		}
		c.setFilter(f)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case m, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(m); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
