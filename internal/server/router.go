package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentstation/seatwatch/internal/server/handlers"
	"github.com/agentstation/seatwatch/internal/server/middleware"
)

func (s *Server) setupRouter() http.Handler {
	mux := http.NewServeMux()
	h := handlers.New(s.deps, s.wsHub, s.sseBroadcaster, s.upgrader, s.logger, s.config.Backlog)
	s.sseBroadcaster.SetBacklog(h.Backlog)

	s.registerRoutes(mux, h)
	return s.applyMiddleware(middleware.Metrics(s.registry)(mux))
}

func (s *Server) registerRoutes(mux *http.ServeMux, h *handlers.Handlers) {
	prefix := s.config.PathPrefix

	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET "+prefix+"/health", h.HandleHealth)
	mux.HandleFunc("GET "+prefix+"/ready", h.HandleReady)

	mux.HandleFunc("GET "+prefix+"/feed", h.HandleFeed)
	mux.HandleFunc("GET "+prefix+"/feed/ws", h.HandleWebSocket)
	mux.HandleFunc("GET "+prefix+"/feed/stream", h.HandleSSE)

	if s.deps.Subscriptions != nil {
		mux.HandleFunc("POST "+prefix+"/subscriptions", h.HandleSubscribe)
		mux.HandleFunc("DELETE "+prefix+"/subscriptions", h.HandleUnsubscribe)
	}
	if s.deps.Profiles != nil {
		mux.HandleFunc("GET "+prefix+"/profiles/{id}", h.HandleGetProfile)
		mux.HandleFunc("PUT "+prefix+"/profiles/{id}", h.HandlePutProfile)
	}
	if s.deps.Community != nil {
		mux.HandleFunc("POST "+prefix+"/community", h.HandleAddCommunity)
	}

	if s.config.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
}

func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	cfg := s.config

	if cfg.APIKey != "" {
		handler = middleware.Auth(middleware.AuthConfig{
			APIKey:         cfg.APIKey,
			HeaderName:     cfg.AuthHeader,
			ReadOnlyPublic: true,
		}, s.logger)(handler)
	}
	if cfg.RateLimit > 0 {
		handler = middleware.RateLimit(middleware.NewRateLimiter(cfg.RateLimit, s.logger))(handler)
	}
	if len(cfg.CORSOrigins) > 0 {
		handler = middleware.CORS(cfg.CORSOrigins)(handler)
	}

	return middleware.Chain(
		middleware.Recovery(s.logger),
		middleware.Logger(s.logger),
	)(handler)
}
