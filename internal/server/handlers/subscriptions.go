package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/agentstation/seatwatch/internal/server/response"
	"github.com/agentstation/seatwatch/pkg/events"
	"github.com/agentstation/seatwatch/pkg/subscriptions"
)

// subscriptionRequest is the body of POST /api/v1/subscriptions.
type subscriptionRequest struct {
	Semester string          `json:"semester"`
	Scope    string          `json:"scope"`
	Key      string          `json:"key"`
	UserID   string          `json:"user_id"`
	Settings map[string]bool `json:"settings"`
}

// HandleSubscribe handles POST /api/v1/subscriptions.
func (h *Handlers) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body", err.Error())
		return
	}
	scope, err := subscriptions.ParseScope(req.Scope)
	if err != nil {
		response.FromError(w, err)
		return
	}
	settings := make(subscriptions.Settings, len(req.Settings))
	for name, on := range req.Settings {
		t, err := events.ParseType(name)
		if err != nil {
			response.BadRequest(w, "Invalid settings", err.Error())
			return
		}
		settings[t] = on
	}
	sub := subscriptions.Subscription{
		Semester:  req.Semester,
		Scope:     scope,
		Key:       req.Key,
		UserID:    req.UserID,
		Settings:  settings,
		UpdatedAt: time.Now().UTC(),
	}
	if err := h.deps.Subscriptions.Subscribe(r.Context(), sub); err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, sub)
}

// HandleUnsubscribe handles DELETE /api/v1/subscriptions with semester,
// scope, key and user_id query parameters.
func (h *Handlers) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope, err := subscriptions.ParseScope(q.Get("scope"))
	if err != nil {
		response.FromError(w, err)
		return
	}
	if err := h.deps.Subscriptions.Unsubscribe(r.Context(), q.Get("semester"), scope, q.Get("key"), q.Get("user_id")); err != nil {
		response.FromError(w, err)
		return
	}
	response.NoContent(w)
}
