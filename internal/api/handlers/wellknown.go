package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/convene-events/server/internal/api/problem"
	"github.com/convene-events/server/internal/domain/activitypub"
)

// WellKnownHandler serves Webfinger discovery so remote users can find
// actors by acct:{id}@{domain}.
type WellKnownHandler struct {
	store   activitypub.Store
	domain  string
	enabled bool
	env     string
}

func NewWellKnownHandler(store activitypub.Store, domain string, enabled bool, env string) *WellKnownHandler {
	return &WellKnownHandler{store: store, domain: domain, enabled: enabled, env: env}
}

// Webfinger resolves ?resource=acct:{id}@{domain}. Malformed resources are
// 400; unknown actors, foreign domains, and disabled federation are 404.
func (h *WellKnownHandler) Webfinger(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		problem.Write(w, r, http.StatusBadRequest, "about:blank", "Bad Request",
			errors.New("resource query parameter is required"), h.env)
		return
	}

	acct, found := strings.CutPrefix(resource, "acct:")
	if !found {
		problem.Write(w, r, http.StatusBadRequest, "about:blank", "Bad Request",
			fmt.Errorf("unsupported resource %q", resource), h.env)
		return
	}
	id, domain, found := strings.Cut(acct, "@")
	if !found || id == "" {
		problem.Write(w, r, http.StatusBadRequest, "about:blank", "Bad Request",
			fmt.Errorf("malformed acct resource %q", resource), h.env)
		return
	}

	if !h.enabled || domain != h.domain {
		problem.Write(w, r, http.StatusNotFound, "about:blank", "Not Found", nil, h.env)
		return
	}

	actor, err := h.store.GetActor(r.Context(), id)
	if errors.Is(err, activitypub.ErrUnknownLocalActor) {
		problem.Write(w, r, http.StatusNotFound, "about:blank", "Not Found", nil, h.env)
		return
	}
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "about:blank", "Internal Server Error", err, h.env)
		return
	}
	if !actor.Federated {
		problem.Write(w, r, http.StatusNotFound, "about:blank", "Not Found", nil, h.env)
		return
	}

	writeJSON(w, http.StatusOK, activitypub.NewWebfinger(h.domain, actor.ID), "application/jrd+json")
}
