package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/convene-events/server/internal/domain/activitypub"
)

// fakeRepo is an in-memory Repository.
type fakeRepo struct {
	mu        sync.Mutex
	events    map[string]*Event
	groups    map[string]*Group
	attendees map[string][]Attendee
	comments  map[string][]Comment
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		events:    make(map[string]*Event),
		groups:    make(map[string]*Group),
		attendees: make(map[string][]Attendee),
		comments:  make(map[string][]Comment),
	}
}

func (r *fakeRepo) CreateEvent(_ context.Context, event *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *event
	r.events[event.ID] = &clone
	return nil
}

func (r *fakeRepo) GetEvent(_ context.Context, id string) (*Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	clone := *event
	return &clone, nil
}

func (r *fakeRepo) UpdateEvent(_ context.Context, event *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[event.ID]; !ok {
		return ErrEventNotFound
	}
	clone := *event
	r.events[event.ID] = &clone
	return nil
}

func (r *fakeRepo) DeleteEvent(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.events, id)
	delete(r.attendees, id)
	delete(r.comments, id)
	return nil
}

func (r *fakeRepo) ListEndedBefore(_ context.Context, cutoff time.Time, limit int) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if !e.End.IsZero() && e.End.Before(cutoff) {
			out = append(out, *e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeRepo) CreateGroup(_ context.Context, group *Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *group
	r.groups[group.ID] = &clone
	return nil
}

func (r *fakeRepo) GetGroup(_ context.Context, id string) (*Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	group, ok := r.groups[id]
	if !ok {
		return nil, ErrGroupNotFound
	}
	clone := *group
	return &clone, nil
}

func (r *fakeRepo) UpdateGroup(_ context.Context, group *Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[group.ID]; !ok {
		return ErrGroupNotFound
	}
	clone := *group
	r.groups[group.ID] = &clone
	return nil
}

func (r *fakeRepo) DeleteGroup(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.groups, id)
	for _, e := range r.events {
		if e.GroupID == id {
			e.GroupID = ""
		}
	}
	return nil
}

func (r *fakeRepo) ListGroupEvents(_ context.Context, groupID string) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.GroupID == groupID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeRepo) AddAttendee(_ context.Context, eventID string, attendee *Attendee) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attendees[eventID] = append(r.attendees[eventID], *attendee)
	return nil
}

func (r *fakeRepo) RemoveAttendee(_ context.Context, eventID, attendeeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.attendees[eventID][:0]
	found := false
	for _, a := range r.attendees[eventID] {
		if a.ID == attendeeID {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		return ErrAttendeeNotFound
	}
	r.attendees[eventID] = kept
	return nil
}

func (r *fakeRepo) ListAttendees(_ context.Context, eventID string) ([]Attendee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Attendee(nil), r.attendees[eventID]...), nil
}

func (r *fakeRepo) CountAttendees(_ context.Context, eventID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, a := range r.attendees[eventID] {
		total += a.Number
	}
	return total, nil
}

func (r *fakeRepo) AddComment(_ context.Context, eventID string, comment *Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.comments[eventID] = append(r.comments[eventID], *comment)
	return nil
}

func (r *fakeRepo) AddReply(_ context.Context, eventID, commentID string, reply *Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.comments[eventID] {
		if r.comments[eventID][i].ID == commentID {
			r.comments[eventID][i].Replies = append(r.comments[eventID][i].Replies, *reply)
			return nil
		}
	}
	return ErrCommentNotFound
}

func (r *fakeRepo) RemoveComment(_ context.Context, eventID, commentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.comments[eventID][:0]
	for _, c := range r.comments[eventID] {
		if c.ID != commentID {
			kept = append(kept, c)
		}
	}
	r.comments[eventID] = kept
	return nil
}

func (r *fakeRepo) ListComments(_ context.Context, eventID string) ([]Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Comment(nil), r.comments[eventID]...), nil
}

// fakeActorStore is an in-memory activitypub.Store.
type fakeActorStore struct {
	mu        sync.Mutex
	actors    map[string]*activitypub.Actor
	followers map[string][]activitypub.Follower
	messages  map[string][]activitypub.Message
}

func newFakeActorStore() *fakeActorStore {
	return &fakeActorStore{
		actors:    make(map[string]*activitypub.Actor),
		followers: make(map[string][]activitypub.Follower),
		messages:  make(map[string][]activitypub.Message),
	}
}

func (s *fakeActorStore) CreateActor(_ context.Context, actor *activitypub.Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *actor
	s.actors[actor.ID] = &clone
	return nil
}

func (s *fakeActorStore) GetActor(_ context.Context, actorID string) (*activitypub.Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	actor, ok := s.actors[actorID]
	if !ok {
		return nil, activitypub.ErrUnknownLocalActor
	}
	clone := *actor
	return &clone, nil
}

func (s *fakeActorStore) UpdateActorDocuments(_ context.Context, actorID string, actorDoc, eventDoc json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	actor, ok := s.actors[actorID]
	if !ok {
		return activitypub.ErrUnknownLocalActor
	}
	actor.ActorDocument = actorDoc
	actor.EventDocument = eventDoc
	return nil
}

func (s *fakeActorStore) DeleteActor(_ context.Context, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.actors, actorID)
	delete(s.followers, actorID)
	delete(s.messages, actorID)
	return nil
}

func (s *fakeActorStore) AddFollower(_ context.Context, actorID string, follower activitypub.Follower) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.followers[actorID] {
		if f.ActorURL == follower.ActorURL {
			return nil
		}
	}
	s.followers[actorID] = append(s.followers[actorID], follower)
	return nil
}

func (s *fakeActorStore) RemoveFollower(_ context.Context, actorID, followerURL string) error {
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

func (s *fakeActorStore) ListFollowers(_ context.Context, actorID string) ([]activitypub.Follower, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]activitypub.Follower(nil), s.followers[actorID]...), nil
}

func (s *fakeActorStore) AppendMessage(_ context.Context, actorID string, msg activitypub.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages[actorID] {
		if m.ID == msg.ID {
			return activitypub.ErrDuplicateMessageID
		}
	}
	s.messages[actorID] = append(s.messages[actorID], msg)
	return nil
}

func (s *fakeActorStore) GetMessage(_ context.Context, actorID, messageID string) (*activitypub.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages[actorID] {
		if m.ID == messageID {
			clone := m
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *fakeActorStore) DeleteMessage(_ context.Context, actorID, messageID string) error {
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

func (s *fakeActorStore) hasActor(actorID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.actors[actorID]
	return ok
}

func (s *fakeActorStore) messageCount(actorID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[actorID])
}
