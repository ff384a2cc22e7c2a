package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/convene-events/server/internal/api/problem"
	"github.com/convene-events/server/internal/domain/activitypub"
	"github.com/convene-events/server/internal/domain/ids"
	"github.com/convene-events/server/internal/metrics"
)

// ActivityPubHandler serves the federation surface: actor profiles, their
// collections, the message log, and the shared inbox. Every endpoint here
// answers 404 when federation is disabled or the actor opted out, so an
// unfederated deployment is indistinguishable from an empty one.
type ActivityPubHandler struct {
	store    activitypub.Store
	verifier *activitypub.Verifier
	inbox    *activitypub.Inbox
	metrics  *metrics.Metrics
	domain   string
	enabled  bool
	env      string
}

func NewActivityPubHandler(store activitypub.Store, verifier *activitypub.Verifier, inbox *activitypub.Inbox, m *metrics.Metrics, domain string, enabled bool, env string) *ActivityPubHandler {
	return &ActivityPubHandler{
		store:    store,
		verifier: verifier,
		inbox:    inbox,
		metrics:  m,
		domain:   domain,
		enabled:  enabled,
		env:      env,
	}
}

// GetActor serves the actor profile document for activity+json clients.
func (h *ActivityPubHandler) GetActor(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.federatedActor(w, r)
	if !ok {
		return
	}
	if !acceptsActivityJSON(r) {
		problem.Write(w, r, http.StatusNotAcceptable, "about:blank", "Not Acceptable",
			errors.New("only application/activity+json is served here"), h.env)
		return
	}
	writeRawJSON(w, http.StatusOK, actor.ActorDocument, activitypub.ContentType)
}

// GetEventObject serves the AS2 Event document referenced from Update
// activities.
func (h *ActivityPubHandler) GetEventObject(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.federatedActor(w, r)
	if !ok {
		return
	}
	if len(actor.EventDocument) == 0 {
		h.notFound(w, r)
		return
	}
	writeRawJSON(w, http.StatusOK, actor.EventDocument, activitypub.ContentType)
}

// GetFollowers serves the follower collection from local state only.
func (h *ActivityPubHandler) GetFollowers(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.federatedActor(w, r)
	if !ok {
		return
	}

	followers, err := h.store.ListFollowers(r.Context(), actor.ID)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "about:blank", "Internal Server Error", err, h.env)
		return
	}
	urls := make([]string, len(followers))
	for i, f := range followers {
		urls[i] = f.ActorURL
	}
	writeJSON(w, http.StatusOK, activitypub.NewFollowersCollection(h.domain, actor.ID, urls), activitypub.ContentType)
}

// GetFeatured serves the pinned featured post collection.
func (h *ActivityPubHandler) GetFeatured(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.federatedActor(w, r)
	if !ok {
		return
	}
	notes := []activitypub.Note{activitypub.NewFeaturedNote(h.domain, actor.ID)}
	writeJSON(w, http.StatusOK, activitypub.NewFeaturedCollection(h.domain, actor.ID, notes), activitypub.ContentType)
}

// GetMessage dereferences one entry of the actor's message log.
func (h *ActivityPubHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.federatedActor(w, r)
	if !ok {
		return
	}

	hash := r.PathValue("hash")
	if hash == "featuredPost" {
		writeJSON(w, http.StatusOK, activitypub.NewFeaturedNote(h.domain, actor.ID), activitypub.ContentType)
		return
	}

	msg, err := h.store.GetMessage(r.Context(), actor.ID, hash)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "about:blank", "Internal Server Error", err, h.env)
		return
	}
	if msg == nil {
		h.notFound(w, r)
		return
	}
	writeRawJSON(w, http.StatusOK, msg.Content, activitypub.ContentType)
}

// PostInbox is the shared inbox. The signature is verified before the body
// is acted on; an unverifiable request changes nothing.
func (h *ActivityPubHandler) PostInbox(w http.ResponseWriter, r *http.Request) {
	if !h.enabled {
		h.notFound(w, r)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, "about:blank", "Bad Request", err, h.env)
		return
	}

	// The Host header lives on the Request, not in Header; the signing
	// string needs it there.
	r.Header.Set("Host", r.Host)

	verification, err := h.verifier.Verify(r.Context(), r.Header, r.Method, r.URL.Path)
	if err != nil {
		h.recordInbox(body, "rejected")
		switch {
		case errors.Is(err, activitypub.ErrMalformedSignatureHeader):
			problem.Write(w, r, http.StatusBadRequest, "about:blank", "Bad Request", err, h.env)
		default:
			problem.Write(w, r, http.StatusUnauthorized, "about:blank", "Unauthorized", err, h.env)
		}
		return
	}

	disposition, err := h.inbox.Receive(r.Context(), verification.ActorURL, body)
	if err != nil {
		h.recordInbox(body, "rejected")
		switch {
		case errors.Is(err, activitypub.ErrUnknownLocalActor):
			problem.Write(w, r, http.StatusNotFound, "about:blank", "Not Found", err, h.env)
		default:
			problem.Write(w, r, http.StatusInternalServerError, "about:blank", "Internal Server Error", err, h.env)
		}
		return
	}

	h.recordInbox(body, string(disposition))
	status := http.StatusOK
	if disposition == activitypub.DispositionIgnored {
		status = http.StatusAccepted
	}
	writeJSON(w, status, map[string]string{"status": string(disposition)}, "application/json")
}

// federatedActor resolves {id} and applies the federation gates. On any
// miss it writes the 404 itself and returns ok=false.
func (h *ActivityPubHandler) federatedActor(w http.ResponseWriter, r *http.Request) (*activitypub.Actor, bool) {
	if !h.enabled {
		h.notFound(w, r)
		return nil, false
	}

	id := r.PathValue("id")
	if ids.ValidateActorID(id) != nil {
		h.notFound(w, r)
		return nil, false
	}

	actor, err := h.store.GetActor(r.Context(), id)
	if errors.Is(err, activitypub.ErrUnknownLocalActor) {
		h.notFound(w, r)
		return nil, false
	}
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "about:blank", "Internal Server Error", err, h.env)
		return nil, false
	}
	if !actor.Federated {
		h.notFound(w, r)
		return nil, false
	}
	return actor, true
}

func (h *ActivityPubHandler) notFound(w http.ResponseWriter, r *http.Request) {
	problem.Write(w, r, http.StatusNotFound, "about:blank", "Not Found", nil, h.env)
}

func (h *ActivityPubHandler) recordInbox(body []byte, disposition string) {
	if h.metrics == nil {
		return
	}
	var envelope struct {
		Type string `json:"type"`
	}
	activityType := "unknown"
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Type != "" {
		activityType = envelope.Type
	}
	h.metrics.RecordInboxActivity(activityType, disposition)
}

func acceptsActivityJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if accept == "" {
		return true
	}
	for _, part := range strings.Split(accept, ",") {
		mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		switch mediaType {
		case activitypub.ContentType, "application/ld+json", "application/json", "*/*":
			return true
		}
	}
	return false
}
