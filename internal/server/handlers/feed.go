package handlers

import (
	"context"
	"net/http"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"github.com/agentstation/seatwatch/internal/server/response"
	"github.com/agentstation/seatwatch/internal/server/stream"
	"github.com/agentstation/seatwatch/pkg/constants"
	"github.com/agentstation/seatwatch/pkg/livefeed"
)

// HandleFeed handles GET /api/v1/feed?limit=N, newest first. The stream
// filter parameters (semester, dept, types) apply here too.
func (h *Handlers) HandleFeed(w http.ResponseWriter, r *http.Request) {
	limit := constants.DefaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.BadRequest(w, "Invalid limit", "limit must be a positive integer")
			return
		}
		limit = min(n, constants.MaxPageSize)
	}
	filter, err := stream.ParseFilter(r.URL.Query())
	if err != nil {
		response.BadRequest(w, "Invalid filter", err.Error())
		return
	}

	entries, err := h.deps.Feed.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read feed")
		response.FromError(w, err)
		return
	}
	out := make([]livefeed.Entry, 0, len(entries))
	for _, e := range entries {
		if filter.Match(stream.EntryMessage(e)) {
			out = append(out, e)
		}
	}
	response.OK(w, map[string]any{"entries": out, "count": len(out)})
}

// Backlog returns the recent entries matching f, oldest first. It is the
// replay source for both stream transports.
func (h *Handlers) Backlog(ctx context.Context, f stream.Filter) []stream.Message {
	if h.backlog <= 0 {
		return nil
	}
	entries, err := h.deps.Feed.Recent(ctx, h.backlog)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to load stream backlog")
		return nil
	}
	slices.Reverse(entries)
	out := make([]stream.Message, 0, len(entries))
	for _, e := range entries {
		if m := stream.EntryMessage(e); f.Match(m) {
			out = append(out, m)
		}
	}
	return out
}

// HandleWebSocket handles GET /api/v1/feed/ws.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	filter, err := stream.ParseFilter(r.URL.Query())
	if err != nil {
		response.BadRequest(w, "Invalid filter", err.Error())
		return
	}
	backlog := h.Backlog(r.Context(), filter)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	h.wsHub.Attach(uuid.NewString(), conn, filter, backlog)
}

// HandleSSE handles GET /api/v1/feed/stream.
func (h *Handlers) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.sseBroadcaster.ServeHTTP(w, r)
}
