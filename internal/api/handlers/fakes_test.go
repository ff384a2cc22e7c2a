package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/convene-events/server/internal/domain/activitypub"
)

const testDomain = "events.test"

// Valid lowercase ULID used as the actor id across handler tests.
const testActorID = "01hzx5m9gqv8w2k4t6y8a0b1c2"

type fakeStore struct {
	actors    map[string]*activitypub.Actor
	followers map[string][]activitypub.Follower
	messages  map[string]map[string]activitypub.Message
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		actors:    make(map[string]*activitypub.Actor),
		followers: make(map[string][]activitypub.Follower),
		messages:  make(map[string]map[string]activitypub.Message),
	}
}

func (s *fakeStore) addActor(id string, federated bool) *activitypub.Actor {
	doc := activitypub.NewActorDocument(activitypub.ActorParams{
		ID:           id,
		Domain:       testDomain,
		Name:         "Garden Party",
		PublicKeyPEM: "-----BEGIN PUBLIC KEY-----\nstub\n-----END PUBLIC KEY-----",
	})
	actorJSON, _ := json.Marshal(doc)
	eventObj := activitypub.NewEventObject(activitypub.ActorParams{
		ID:     id,
		Domain: testDomain,
		Name:   "Garden Party",
	})
	eventJSON, _ := json.Marshal(eventObj)
	actor := &activitypub.Actor{
		ID:            id,
		Kind:          activitypub.ActorKindEvent,
		ActorDocument: actorJSON,
		EventDocument: eventJSON,
		Federated:     federated,
	}
	s.actors[id] = actor
	return actor
}

func (s *fakeStore) CreateActor(ctx context.Context, actor *activitypub.Actor) error {
	s.actors[actor.ID] = actor
	return nil
}

func (s *fakeStore) GetActor(ctx context.Context, actorID string) (*activitypub.Actor, error) {
	actor, ok := s.actors[actorID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", actorID, activitypub.ErrUnknownLocalActor)
	}
	return actor, nil
}

func (s *fakeStore) UpdateActorDocuments(ctx context.Context, actorID string, actorDoc, eventDoc json.RawMessage) error {
	actor, ok := s.actors[actorID]
	if !ok {
		return activitypub.ErrUnknownLocalActor
	}
	actor.ActorDocument = actorDoc
	actor.EventDocument = eventDoc
	return nil
}

func (s *fakeStore) DeleteActor(ctx context.Context, actorID string) error {
	delete(s.actors, actorID)
	delete(s.followers, actorID)
	delete(s.messages, actorID)
	return nil
}

func (s *fakeStore) AddFollower(ctx context.Context, actorID string, follower activitypub.Follower) error {
	for _, f := range s.followers[actorID] {
		if f.ActorURL == follower.ActorURL {
			return nil
		}
	}
	s.followers[actorID] = append(s.followers[actorID], follower)
	return nil
}

func (s *fakeStore) RemoveFollower(ctx context.Context, actorID, followerURL string) error {
	kept := s.followers[actorID][:0]
	for _, f := range s.followers[actorID] {
		if f.ActorURL != followerURL {
			kept = append(kept, f)
		}
	}
	s.followers[actorID] = kept
	return nil
}

func (s *fakeStore) ListFollowers(ctx context.Context, actorID string) ([]activitypub.Follower, error) {
	return s.followers[actorID], nil
}

func (s *fakeStore) AppendMessage(ctx context.Context, actorID string, msg activitypub.Message) error {
	if s.messages[actorID] == nil {
		s.messages[actorID] = make(map[string]activitypub.Message)
	}
	if _, ok := s.messages[actorID][msg.ID]; ok {
		return activitypub.ErrDuplicateMessageID
	}
	s.messages[actorID][msg.ID] = msg
	return nil
}

func (s *fakeStore) GetMessage(ctx context.Context, actorID, messageID string) (*activitypub.Message, error) {
	msg, ok := s.messages[actorID][messageID]
	if !ok {
		return nil, nil
	}
	return &msg, nil
}

func (s *fakeStore) DeleteMessage(ctx context.Context, actorID, messageID string) error {
	delete(s.messages[actorID], messageID)
	return nil
}

var _ activitypub.Store = (*fakeStore)(nil)
