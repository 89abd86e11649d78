package handlers

import (
	"net/http"
	"time"

	"github.com/agentstation/seatwatch/internal/server/response"
)

// HandleHealth handles GET /health (liveness).
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]any{
		"status":  "healthy",
		"service": "seatwatch",
	})
}

// HandleReady handles GET /api/v1/ready. The feed store must answer.
func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := h.deps.Feed.Recent(r.Context(), 1); err != nil {
		h.logger.Warn().Err(err).Msg("Feed store not ready")
		response.ServiceUnavailable(w, "Feed store not available")
		return
	}
	response.OK(w, map[string]any{
		"status":            "ready",
		"uptime":            time.Since(h.started).Round(time.Second).String(),
		"websocket_clients": h.wsHub.Len(),
		"sse_clients":       h.sseBroadcaster.Len(),
	})
}
