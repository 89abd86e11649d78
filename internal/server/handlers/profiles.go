package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/agentstation/seatwatch/internal/server/response"
	"github.com/agentstation/seatwatch/pkg/notify"
	"github.com/agentstation/seatwatch/pkg/subscriptions"
)

// HandleGetProfile handles GET /api/v1/profiles/{id}.
func (h *Handlers) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Profiles.Profile(r.Context(), r.PathValue("id"))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, p)
}

// HandlePutProfile handles PUT /api/v1/profiles/{id}.
func (h *Handlers) HandlePutProfile(w http.ResponseWriter, r *http.Request) {
	var p notify.Profile
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&p); err != nil {
		response.BadRequest(w, "Invalid JSON body", err.Error())
		return
	}
	p.UserID = r.PathValue("id")
	if err := h.deps.Profiles.SaveProfile(r.Context(), p); err != nil {
		response.FromError(w, err)
		return
	}
	response.OK(w, p)
}

type communityRequest struct {
	Semester string `json:"semester"`
	Scope    string `json:"scope"`
	Key      string `json:"key"`
	URL      string `json:"url"`
}

// HandleAddCommunity handles POST /api/v1/community.
func (h *Handlers) HandleAddCommunity(w http.ResponseWriter, r *http.Request) {
	var req communityRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body", err.Error())
		return
	}
	scope, err := subscriptions.ParseScope(req.Scope)
	if err != nil {
		response.FromError(w, err)
		return
	}
	if req.Semester == "" || req.URL == "" {
		response.BadRequest(w, "semester and url are required", "")
		return
	}
	if scope == subscriptions.ScopeEverything {
		req.Key = subscriptions.EverythingKey
	}
	if err := h.deps.Community.AddCommunityChannel(r.Context(), req.Semester, scope, req.Key, req.URL); err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, req)
}
