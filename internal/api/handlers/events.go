package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/convene-events/server/internal/api/problem"
	"github.com/convene-events/server/internal/domain/activitypub"
	"github.com/convene-events/server/internal/domain/events"
)

// editTokenHeader carries the secret minted at creation time. It is the
// whole authorization model for edits and deletion.
const editTokenHeader = "X-Edit-Token"

// EventsHandler is the collaborator-facing REST API for events and groups.
type EventsHandler struct {
	service *events.Service
	domain  string
	env     string
}

func NewEventsHandler(service *events.Service, domain, env string) *EventsHandler {
	return &EventsHandler{service: service, domain: domain, env: env}
}

type eventRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Location        string `json:"location"`
	Start           string `json:"start"`
	End             string `json:"end"`
	Timezone        string `json:"timezone"`
	ImageFilename   string `json:"image_filename"`
	HostName        string `json:"host_name"`
	CreatorContact  string `json:"creator_contact"`
	MaxAttendees    int    `json:"max_attendees"`
	UsersCanAttend  bool   `json:"users_can_attend"`
	UsersCanComment bool   `json:"users_can_comment"`
	Federated       *bool  `json:"federated"`
	GroupID         string `json:"group_id"`
	GroupEditToken  string `json:"group_edit_token"`
}

func (req eventRequest) toParams() (events.EventParams, error) {
	start, err := parseTimestamp(req.Start)
	if err != nil {
		return events.EventParams{}, fmt.Errorf("%w: start: %v", events.ErrInvalidInput, err)
	}
	end, err := parseTimestamp(req.End)
	if err != nil {
		return events.EventParams{}, fmt.Errorf("%w: end: %v", events.ErrInvalidInput, err)
	}

	federated := true
	if req.Federated != nil {
		federated = *req.Federated
	}

	return events.EventParams{
		Name:            req.Name,
		Description:     req.Description,
		Location:        req.Location,
		Start:           start,
		End:             end,
		Timezone:        req.Timezone,
		ImageFilename:   req.ImageFilename,
		HostName:        req.HostName,
		CreatorContact:  req.CreatorContact,
		MaxAttendees:    req.MaxAttendees,
		UsersCanAttend:  req.UsersCanAttend,
		UsersCanComment: req.UsersCanComment,
		Federated:       federated,
		GroupID:         req.GroupID,
		GroupEditToken:  req.GroupEditToken,
	}, nil
}

type eventResponse struct {
	ID              string `json:"id"`
	URL             string `json:"url"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Location        string `json:"location,omitempty"`
	Start           string `json:"start,omitempty"`
	End             string `json:"end,omitempty"`
	Timezone        string `json:"timezone,omitempty"`
	ImageFilename   string `json:"image_filename,omitempty"`
	HostName        string `json:"host_name,omitempty"`
	MaxAttendees    int    `json:"max_attendees,omitempty"`
	UsersCanAttend  bool   `json:"users_can_attend"`
	UsersCanComment bool   `json:"users_can_comment"`
	Federated       bool   `json:"federated"`
	GroupID         string `json:"group_id,omitempty"`
	EditToken       string `json:"edit_token,omitempty"`
}

func (h *EventsHandler) eventResponse(event *events.Event, includeToken bool) eventResponse {
	resp := eventResponse{
		ID:              event.ID,
		URL:             activitypub.ActorURL(h.domain, event.ID),
		Name:            event.Name,
		Description:     event.Description,
		Location:        event.Location,
		Timezone:        event.Timezone,
		ImageFilename:   event.ImageFilename,
		HostName:        event.HostName,
		MaxAttendees:    event.MaxAttendees,
		UsersCanAttend:  event.UsersCanAttend,
		UsersCanComment: event.UsersCanComment,
		Federated:       event.Federated,
		GroupID:         event.GroupID,
	}
	if !event.Start.IsZero() {
		resp.Start = event.Start.Format(time.RFC3339)
	}
	if !event.End.IsZero() {
		resp.End = event.End.Format(time.RFC3339)
	}
	if includeToken {
		resp.EditToken = event.EditToken
	}
	return resp
}

// Create handles POST /api/v1/events. The edit token is returned exactly
// once, here.
func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "about:blank", "Bad Request", err, h.env)
		return
	}
	params, err := req.toParams()
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	event, err := h.service.CreateEvent(r.Context(), params)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.eventResponse(event, true), "application/json")
}

// Get handles GET /api/v1/events/{id}. The edit token is never echoed.
func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, err := h.service.GetEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.eventResponse(event, false), "application/json")
}

// Update handles PUT /api/v1/events/{id}.
func (h *EventsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "about:blank", "Bad Request", err, h.env)
		return
	}
	params, err := req.toParams()
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	event, err := h.service.UpdateEvent(r.Context(), r.PathValue("id"), r.Header.Get(editTokenHeader), params)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.eventResponse(event, false), "application/json")
}

// Delete handles DELETE /api/v1/events/{id}. It blocks until the Delete
// activities have been attempted everywhere and local state is purged.
func (h *EventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteEvent(r.Context(), r.PathValue("id"), r.Header.Get(editTokenHeader))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type attendeeRequest struct {
	Name   string `json:"name"`
	Number int    `json:"number"`
}

// AddAttendee handles POST /api/v1/events/{id}/attendees. The returned id
// is the secret for cancelling the RSVP.
func (h *EventsHandler) AddAttendee(w http.ResponseWriter, r *http.Request) {
	var req attendeeRequest
	if err := decodeJSON(r, &req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "about:blank", "Bad Request", err, h.env)
		return
	}

	attendee, err := h.service.AddAttendee(r.Context(), r.PathValue("id"), req.Name, req.Number)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     attendee.ID,
		"name":   attendee.Name,
		"number": attendee.Number,
	}, "application/json")
}

// RemoveAttendee handles DELETE /api/v1/events/{id}/attendees/{attendeeID}.
func (h *EventsHandler) RemoveAttendee(w http.ResponseWriter, r *http.Request) {
	err := h.service.RemoveAttendee(r.Context(), r.PathValue("id"), r.PathValue("attendeeID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAttendees handles GET /api/v1/events/{id}/attendees.
func (h *EventsHandler) ListAttendees(w http.ResponseWriter, r *http.Request) {
	attendees, err := h.service.ListAttendees(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	type attendeeView struct {
		Name   string `json:"name"`
		Number int    `json:"number"`
	}
	views := make([]attendeeView, len(attendees))
	for i, a := range attendees {
		views[i] = attendeeView{Name: a.Name, Number: a.Number}
	}
	writeJSON(w, http.StatusOK, views, "application/json")
}

type commentRequest struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

// AddComment handles POST /api/v1/events/{id}/comments.
func (h *EventsHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "about:blank", "Bad Request", err, h.env)
		return
	}

	comment, err := h.service.AddComment(r.Context(), r.PathValue("id"), req.Author, req.Content)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": comment.ID}, "application/json")
}

// AddReply handles POST /api/v1/events/{id}/comments/{commentID}/replies.
func (h *EventsHandler) AddReply(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "about:blank", "Bad Request", err, h.env)
		return
	}

	reply, err := h.service.AddReply(r.Context(), r.PathValue("id"), r.PathValue("commentID"), req.Author, req.Content)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": reply.ID}, "application/json")
}

// RemoveComment handles DELETE /api/v1/events/{id}/comments/{commentID},
// a moderation action gated on the edit token.
func (h *EventsHandler) RemoveComment(w http.ResponseWriter, r *http.Request) {
	err := h.service.RemoveComment(r.Context(), r.PathValue("id"), r.Header.Get(editTokenHeader), r.PathValue("commentID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListComments handles GET /api/v1/events/{id}/comments.
func (h *EventsHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.service.ListComments(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, commentViews(comments), "application/json")
}

type commentView struct {
	ID        string      `json:"id"`
	Author    string      `json:"author"`
	AuthorURL string      `json:"author_url,omitempty"`
	Content   string      `json:"content"`
	CreatedAt string      `json:"created_at"`
	Replies   []replyView `json:"replies,omitempty"`
}

type replyView struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

func commentViews(comments []events.Comment) []commentView {
	views := make([]commentView, len(comments))
	for i, c := range comments {
		view := commentView{
			ID:        c.ID,
			Author:    c.Author,
			AuthorURL: c.AuthorURL,
			Content:   c.Content,
			CreatedAt: c.CreatedAt.Format(time.RFC3339),
		}
		for _, reply := range c.Replies {
			view.Replies = append(view.Replies, replyView{
				ID:        reply.ID,
				Author:    reply.Author,
				Content:   reply.Content,
				CreatedAt: reply.CreatedAt.Format(time.RFC3339),
			})
		}
		views[i] = view
	}
	return views
}

func (h *EventsHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, events.ErrInvalidInput):
		problem.Write(w, r, http.StatusBadRequest, "about:blank", "Bad Request", err, h.env)
	case errors.Is(err, events.ErrEventNotFound),
		errors.Is(err, events.ErrGroupNotFound),
		errors.Is(err, events.ErrAttendeeNotFound),
		errors.Is(err, events.ErrCommentNotFound):
		problem.Write(w, r, http.StatusNotFound, "about:blank", "Not Found", err, h.env)
	case errors.Is(err, events.ErrEditTokenMismatch):
		problem.Write(w, r, http.StatusForbidden, "about:blank", "Forbidden", err, h.env)
	case errors.Is(err, events.ErrEventFull):
		problem.Write(w, r, http.StatusConflict, "about:blank", "Conflict", err, h.env)
	case errors.Is(err, events.ErrAttendanceDisabled),
		errors.Is(err, events.ErrCommentsDisabled):
		problem.Write(w, r, http.StatusForbidden, "about:blank", "Forbidden", err, h.env)
	default:
		problem.Write(w, r, http.StatusInternalServerError, "about:blank", "Internal Server Error", err, h.env)
	}
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}
