package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convene-events/server/internal/domain/activitypub"
)

func webfingerRequest(resource string) *http.Request {
	target := "/.well-known/webfinger"
	if resource != "" {
		target += "?resource=" + resource
	}
	return httptest.NewRequest(http.MethodGet, target, nil)
}

func TestWebfinger_ResolvesActor(t *testing.T) {
	store := newFakeStore()
	store.addActor(testActorID, true)
	h := NewWellKnownHandler(store, testDomain, true, "test")

	w := httptest.NewRecorder()
	h.Webfinger(w, webfingerRequest(fmt.Sprintf("acct:%s@%s", testActorID, testDomain)))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/jrd+json", w.Header().Get("Content-Type"))

	var wf activitypub.Webfinger
	require.NoError(t, json.NewDecoder(w.Body).Decode(&wf))
	assert.Equal(t, fmt.Sprintf("acct:%s@%s", testActorID, testDomain), wf.Subject)
	require.NotEmpty(t, wf.Links)
	assert.Equal(t, activitypub.ActorURL(testDomain, testActorID), wf.Links[0].Href)
}

func TestWebfinger_MalformedResources(t *testing.T) {
	store := newFakeStore()
	store.addActor(testActorID, true)
	h := NewWellKnownHandler(store, testDomain, true, "test")

	tests := []struct {
		name     string
		resource string
	}{
		{name: "missing resource", resource: ""},
		{name: "not an acct uri", resource: "https://events.test/" + testActorID},
		{name: "no domain part", resource: "acct:" + testActorID},
		{name: "empty id", resource: "acct:@" + testDomain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.Webfinger(w, webfingerRequest(tt.resource))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestWebfinger_NotFound(t *testing.T) {
	store := newFakeStore()
	store.addActor(testActorID, true)
	unfederated := "01hzx5m9gqv8w2k4t6y8a0b1c3"
	store.addActor(unfederated, false)

	tests := []struct {
		name     string
		enabled  bool
		resource string
	}{
		{name: "foreign domain", enabled: true, resource: fmt.Sprintf("acct:%s@other.example", testActorID)},
		{name: "unknown actor", enabled: true, resource: "acct:01hzx5m9gqv8w2k4t6y8a0b1c4@" + testDomain},
		{name: "unfederated actor", enabled: true, resource: fmt.Sprintf("acct:%s@%s", unfederated, testDomain)},
		{name: "federation disabled", enabled: false, resource: fmt.Sprintf("acct:%s@%s", testActorID, testDomain)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewWellKnownHandler(store, testDomain, tt.enabled, "test")
			w := httptest.NewRecorder()
			h.Webfinger(w, webfingerRequest(tt.resource))
			assert.Equal(t, http.StatusNotFound, w.Code)
		})
	}
}
