// Package server exposes the live feed, subscription management and
// metrics over HTTP.
package server

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/agentstation/seatwatch"
	"github.com/agentstation/seatwatch/internal/server/handlers"
	"github.com/agentstation/seatwatch/internal/server/sse"
	"github.com/agentstation/seatwatch/internal/server/stream"
	ws "github.com/agentstation/seatwatch/internal/server/websocket"
	"github.com/agentstation/seatwatch/pkg/livefeed"
	"github.com/agentstation/seatwatch/pkg/logging"
)

// Registry is where the server registers its HTTP metrics and what
// /metrics exposes.
type Registry interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	deps           handlers.Deps
	registry       Registry
	broker         *stream.Broker
	wsHub          *ws.Hub
	sseBroadcaster *sse.Broadcaster
	upgrader       websocket.Upgrader
	logger         *zerolog.Logger
	config         Config
	cancel         context.CancelFunc
	stopped        chan struct{}
	started        bool
}

var _ livefeed.Publisher = (*Server)(nil)

// New creates a server. A nil registry gets a private one.
func New(deps handlers.Deps, registry Registry, cfg Config, logger *zerolog.Logger) *Server {
	logger = logging.OrNop(logger)
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	broker := stream.NewBroker(logger)
	wsHub := ws.NewHub(logger)
	sseBroadcaster := sse.NewBroadcaster(logger)
	broker.Subscribe(wsHub)
	broker.Subscribe(sseBroadcaster)

	return &Server{
		deps:           deps,
		registry:       registry,
		broker:         broker,
		wsHub:          wsHub,
		sseBroadcaster: sseBroadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger,
		config:  cfg,
		stopped: make(chan struct{}),
	}
}

// Start runs the stream broker in the background. Shutdown stops it and
// disconnects every stream client.
func (s *Server) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.started = true
	go func() {
		defer close(s.stopped)
		s.broker.Run(ctx)
	}()
	s.logger.Debug().Msg("Stream broker started")
}

// Publish implements livefeed.Publisher.
func (s *Server) Publish(entries []livefeed.Entry) {
	for _, e := range entries {
		s.broker.PublishEntry(e)
	}
}

// CycleCompleted is a seatwatch.CycleHook that announces finished cycles.
func (s *Server) CycleCompleted(report seatwatch.CycleReport) {
	s.broker.PublishCycle(stream.Cycle{
		Semester:  report.Semester,
		Prefix:    report.Prefix,
		Batch:     report.Batch,
		Events:    len(report.Events),
		Skipped:   report.Skipped,
		Seeded:    report.Seeded,
		Delivered: report.Dispatch.Delivered,
		Failed:    report.Dispatch.Failed,
	})
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.setupRouter()
}

// Shutdown stops the broker started by Start and waits for it.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.started {
		return nil
	}
	s.cancel()
	select {
	case <-s.stopped:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.logger.Info().Msg("Stream broker stopped")
	return nil
}

// Broker returns the stream broker.
func (s *Server) Broker() *stream.Broker {
	return s.broker
}
