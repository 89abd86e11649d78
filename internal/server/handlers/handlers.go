// Package handlers implements the seatwatch HTTP API.
package handlers

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/seatwatch/internal/server/sse"
	ws "github.com/agentstation/seatwatch/internal/server/websocket"
	"github.com/agentstation/seatwatch/pkg/livefeed"
	"github.com/agentstation/seatwatch/pkg/notify"
	"github.com/agentstation/seatwatch/pkg/subscriptions"
)

// FeedReader lists recent feed entries, newest first.
type FeedReader interface {
	Recent(ctx context.Context, limit int) ([]livefeed.Entry, error)
}

// ProfileStore reads and writes delivery profiles.
type ProfileStore interface {
	notify.ProfileStore
	SaveProfile(ctx context.Context, p notify.Profile) error
}

// CommunityWriter registers shared channels.
type CommunityWriter interface {
	AddCommunityChannel(ctx context.Context, semester string, scope subscriptions.Scope, key, url string) error
}

// Deps are the stores the handlers serve.
type Deps struct {
	Feed          FeedReader
	Subscriptions subscriptions.Writer
	Profiles      ProfileStore
	Community     CommunityWriter
}

// Handlers serves the API routes.
type Handlers struct {
	deps           Deps
	wsHub          *ws.Hub
	sseBroadcaster *sse.Broadcaster
	upgrader       websocket.Upgrader
	logger         *zerolog.Logger
	started        time.Time
	backlog        int
}

// New creates the handlers. backlog is how many recent feed entries a new
// stream client is sent.
func New(deps Deps, wsHub *ws.Hub, sseBroadcaster *sse.Broadcaster, upgrader websocket.Upgrader, logger *zerolog.Logger, backlog int) *Handlers {
	return &Handlers{
		deps:           deps,
		wsHub:          wsHub,
		sseBroadcaster: sseBroadcaster,
		upgrader:       upgrader,
		logger:         logger,
		started:        time.Now(),
		backlog:        backlog,
	}
}
