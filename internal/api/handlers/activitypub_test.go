package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convene-events/server/internal/domain/activitypub"
)

func actorRequest(id, accept string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/"+id, nil)
	req.SetPathValue("id", id)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return req
}

func newHandler(store *fakeStore, enabled bool) *ActivityPubHandler {
	return NewActivityPubHandler(store, nil, nil, nil, testDomain, enabled, "test")
}

func TestGetActor_ServesProfile(t *testing.T) {
	store := newFakeStore()
	store.addActor(testActorID, true)
	h := newHandler(store, true)

	w := httptest.NewRecorder()
	h.GetActor(w, actorRequest(testActorID, activitypub.ContentType))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, activitypub.ContentType, w.Header().Get("Content-Type"))

	var doc activitypub.ActorDocument
	require.NoError(t, json.NewDecoder(w.Body).Decode(&doc))
	assert.Equal(t, activitypub.ActorURL(testDomain, testActorID), doc.ID)
	assert.Equal(t, "Person", doc.Type)
	assert.Equal(t, testActorID, doc.PreferredUsername)
}

func TestGetActor_RejectsHTMLAccept(t *testing.T) {
	store := newFakeStore()
	store.addActor(testActorID, true)
	h := newHandler(store, true)

	w := httptest.NewRecorder()
	h.GetActor(w, actorRequest(testActorID, "text/html"))

	assert.Equal(t, http.StatusNotAcceptable, w.Code)
}

func TestGetActor_FederationGates(t *testing.T) {
	store := newFakeStore()
	store.addActor(testActorID, true)
	unfederated := "01hzx5m9gqv8w2k4t6y8a0b1c3"
	store.addActor(unfederated, false)

	tests := []struct {
		name    string
		enabled bool
		id      string
	}{
		{name: "federation disabled", enabled: false, id: testActorID},
		{name: "invalid id", enabled: true, id: "not-a-ulid"},
		{name: "unknown actor", enabled: true, id: "01hzx5m9gqv8w2k4t6y8a0b1c4"},
		{name: "unfederated actor", enabled: true, id: unfederated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(store, tt.enabled)
			w := httptest.NewRecorder()
			h.GetActor(w, actorRequest(tt.id, activitypub.ContentType))
			assert.Equal(t, http.StatusNotFound, w.Code)
		})
	}
}

func TestGetEventObject(t *testing.T) {
	store := newFakeStore()
	store.addActor(testActorID, true)
	h := newHandler(store, true)

	req := httptest.NewRequest(http.MethodGet, "/"+testActorID+"/event", nil)
	req.SetPathValue("id", testActorID)
	w := httptest.NewRecorder()
	h.GetEventObject(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var obj activitypub.EventObject
	require.NoError(t, json.NewDecoder(w.Body).Decode(&obj))
	assert.Equal(t, "Event", obj.Type)
	assert.Equal(t, activitypub.ActorURL(testDomain, testActorID)+"/event", obj.ID)
}

func TestGetFollowers(t *testing.T) {
	store := newFakeStore()
	store.addActor(testActorID, true)
	require.NoError(t, store.AddFollower(t.Context(), testActorID, activitypub.Follower{
		ActorURL: "https://remote.example/users/alice",
		Inbox:    "https://remote.example/inbox",
	}))
	h := newHandler(store, true)

	req := httptest.NewRequest(http.MethodGet, "/"+testActorID+"/followers", nil)
	req.SetPathValue("id", testActorID)
	w := httptest.NewRecorder()
	h.GetFollowers(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var coll activitypub.OrderedCollection
	require.NoError(t, json.NewDecoder(w.Body).Decode(&coll))
	assert.Equal(t, "OrderedCollection", coll.Type)
	assert.Equal(t, 1, coll.TotalItems)
}

func messageRequest(id, hash string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/"+id+"/m/"+hash, nil)
	req.SetPathValue("id", id)
	req.SetPathValue("hash", hash)
	return req
}

func TestGetMessage(t *testing.T) {
	store := newFakeStore()
	store.addActor(testActorID, true)
	require.NoError(t, store.AppendMessage(t.Context(), testActorID, activitypub.Message{
		ID:        "abcdef0123456789abcdef0123456789",
		Content:   json.RawMessage(`{"type":"Create"}`),
		CreatedAt: time.Now(),
	}))
	h := newHandler(store, true)

	t.Run("stored message", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.GetMessage(w, messageRequest(testActorID, "abcdef0123456789abcdef0123456789"))
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"type":"Create"}`, w.Body.String())
	})

	t.Run("featured post is synthesized", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.GetMessage(w, messageRequest(testActorID, "featuredPost"))
		require.Equal(t, http.StatusOK, w.Code)

		var note activitypub.Note
		require.NoError(t, json.NewDecoder(w.Body).Decode(&note))
		assert.Equal(t, "Note", note.Type)
	})

	t.Run("unknown hash", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.GetMessage(w, messageRequest(testActorID, "ffffffffffffffffffffffffffffffff"))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

// remoteActorServer stands in for a follower's home server, serving an
// actor document that carries publicPEM.
func remoteActorServer(t *testing.T, publicPEM string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc := map[string]any{
			"id":                "http://" + r.Host + "/actor",
			"preferredUsername": "alice",
			"inbox":             "http://" + r.Host + "/inbox",
			"publicKey": map[string]any{
				"id":           "http://" + r.Host + "/actor#main-key",
				"owner":        "http://" + r.Host + "/actor",
				"publicKeyPem": publicPEM,
			},
		}
		w.Header().Set("Content-Type", activitypub.ContentType)
		require.NoError(t, json.NewEncoder(w).Encode(doc))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestPostInbox_FollowSignedWithWrongKey(t *testing.T) {
	store := newFakeStore()
	store.addActor(testActorID, true)

	// The remote server advertises one key while the request is signed
	// with another, as a stolen or rotated key would be.
	advertisedPublic, _, err := activitypub.GenerateKeypair()
	require.NoError(t, err)
	_, signingPrivate, err := activitypub.GenerateKeypair()
	require.NoError(t, err)

	ts := remoteActorServer(t, advertisedPublic)
	keyID := ts.URL + "/actor#main-key"

	remote := activitypub.NewRemoteClient(0)
	h := NewActivityPubHandler(store, activitypub.NewVerifier(remote),
		activitypub.NewInbox(store, remote, nil, nil, testDomain), nil, testDomain, true, "test")

	body, err := json.Marshal(map[string]any{
		"type":   "Follow",
		"actor":  ts.URL + "/actor",
		"object": activitypub.ActorURL(testDomain, testActorID),
	})
	require.NoError(t, err)

	inboxURL := "https://" + testDomain + "/activitypub/inbox"
	headers, err := activitypub.SignRequest(signingPrivate, keyID, inboxURL, body, time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, inboxURL, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.PostInbox(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	followers, err := store.ListFollowers(t.Context(), testActorID)
	require.NoError(t, err)
	assert.Empty(t, followers)
}

func TestPostInbox_FederationDisabled(t *testing.T) {
	h := newHandler(newFakeStore(), false)

	req := httptest.NewRequest(http.MethodPost, "/activitypub/inbox", nil)
	w := httptest.NewRecorder()
	h.PostInbox(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
