package activitypub

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// fakeStore is an in-memory Store with the same idempotence semantics as
// the postgres implementation.
type fakeStore struct {
	mu        sync.Mutex
	actors    map[string]*Actor
	followers map[string][]Follower
	messages  map[string][]Message
	appendErr error
}

func newFakeStore(actors ...*Actor) *fakeStore {
	s := &fakeStore{
		actors:    make(map[string]*Actor),
		followers: make(map[string][]Follower),
		messages:  make(map[string][]Message),
	}
	for _, a := range actors {
		s.actors[a.ID] = a
	}
	return s
}

func (s *fakeStore) CreateActor(_ context.Context, actor *Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actors[actor.ID] = actor
	return nil
}

func (s *fakeStore) UpdateActorDocuments(_ context.Context, actorID string, actorDoc, eventDoc json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	actor, ok := s.actors[actorID]
	if !ok {
		return ErrUnknownLocalActor
	}
	actor.ActorDocument = actorDoc
	actor.EventDocument = eventDoc
	return nil
}

func (s *fakeStore) DeleteActor(_ context.Context, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.actors, actorID)
	delete(s.followers, actorID)
	delete(s.messages, actorID)
	return nil
}

func (s *fakeStore) GetActor(_ context.Context, actorID string) (*Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	actor, ok := s.actors[actorID]
	if !ok {
		return nil, ErrUnknownLocalActor
	}
	return actor, nil
}

func (s *fakeStore) AddFollower(_ context.Context, actorID string, follower Follower) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.followers[actorID] {
		if f.ActorURL == follower.ActorURL {
			return nil
		}
	}
	follower.FollowedAt = time.Now()
	s.followers[actorID] = append(s.followers[actorID], follower)
	return nil
}

func (s *fakeStore) RemoveFollower(_ context.Context, actorID, followerURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.followers[actorID][:0]
	for _, f := range s.followers[actorID] {
		if f.ActorURL != followerURL {
			kept = append(kept, f)
		}
	}
	s.followers[actorID] = kept
	return nil
}

func (s *fakeStore) ListFollowers(_ context.Context, actorID string) ([]Follower, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Follower(nil), s.followers[actorID]...), nil
}

func (s *fakeStore) AppendMessage(_ context.Context, actorID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	for _, m := range s.messages[actorID] {
		if m.ID == msg.ID {
			return ErrDuplicateMessageID
		}
	}
	s.messages[actorID] = append(s.messages[actorID], msg)
	return nil
}

func (s *fakeStore) GetMessage(_ context.Context, actorID, messageID string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages[actorID] {
		if m.ID == messageID {
			return &m, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) DeleteMessage(_ context.Context, actorID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.messages[actorID][:0]
	for _, m := range s.messages[actorID] {
		if m.ID != messageID {
			kept = append(kept, m)
		}
	}
	s.messages[actorID] = kept
	return nil
}

func (s *fakeStore) followerCount(actorID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.followers[actorID])
}

func (s *fakeStore) messageCount(actorID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[actorID])
}
