package handlers

import (
	"net/http"

	"github.com/convene-events/server/internal/api/problem"
	"github.com/convene-events/server/internal/domain/activitypub"
	"github.com/convene-events/server/internal/domain/events"
)

type groupRequest struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	URL            string `json:"url"`
	ImageFilename  string `json:"image_filename"`
	HostName       string `json:"host_name"`
	CreatorContact string `json:"creator_contact"`
	Federated      *bool  `json:"federated"`
}

func (req groupRequest) toParams() events.GroupParams {
	federated := true
	if req.Federated != nil {
		federated = *req.Federated
	}
	return events.GroupParams{
		Name:           req.Name,
		Description:    req.Description,
		URL:            req.URL,
		ImageFilename:  req.ImageFilename,
		HostName:       req.HostName,
		CreatorContact: req.CreatorContact,
		Federated:      federated,
	}
}

type groupResponse struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Name        string `json:"name"`
	Description string `json:"description"`
	HostName    string `json:"host_name,omitempty"`
	Federated   bool   `json:"federated"`
	EditToken   string `json:"edit_token,omitempty"`
}

func (h *EventsHandler) groupResponse(group *events.Group, includeToken bool) groupResponse {
	resp := groupResponse{
		ID:          group.ID,
		URL:         activitypub.ActorURL(h.domain, group.ID),
		Name:        group.Name,
		Description: group.Description,
		HostName:    group.HostName,
		Federated:   group.Federated,
	}
	if includeToken {
		resp.EditToken = group.EditToken
	}
	return resp
}

// CreateGroup handles POST /api/v1/groups.
func (h *EventsHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := decodeJSON(r, &req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "about:blank", "Bad Request", err, h.env)
		return
	}

	group, err := h.service.CreateGroup(r.Context(), req.toParams())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.groupResponse(group, true), "application/json")
}

// GetGroup handles GET /api/v1/groups/{id}.
func (h *EventsHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := h.service.GetGroup(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.groupResponse(group, false), "application/json")
}

// UpdateGroup handles PUT /api/v1/groups/{id}.
func (h *EventsHandler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := decodeJSON(r, &req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "about:blank", "Bad Request", err, h.env)
		return
	}

	group, err := h.service.UpdateGroup(r.Context(), r.PathValue("id"), r.Header.Get(editTokenHeader), req.toParams())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.groupResponse(group, false), "application/json")
}

// DeleteGroup handles DELETE /api/v1/groups/{id}. Member events survive,
// unlinked.
func (h *EventsHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteGroup(r.Context(), r.PathValue("id"), r.Header.Get(editTokenHeader))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListGroupEvents handles GET /api/v1/groups/{id}/events.
func (h *EventsHandler) ListGroupEvents(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListGroupEvents(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	views := make([]eventResponse, len(list))
	for i := range list {
		views[i] = h.eventResponse(&list[i], false)
	}
	writeJSON(w, http.StatusOK, views, "application/json")
}
