package activitypub

import (
	"context"
	"encoding/json"
	"time"
)

// ActorKind distinguishes the two kinds of local actors.
type ActorKind string

const (
	ActorKindEvent ActorKind = "event"
	ActorKindGroup ActorKind = "group"
)

// Actor is a locally hosted federated identity. The keypair and the two
// rendered documents are generated at creation time; ActorDocument and
// EventDocument are re-rendered on edit but keep their ids and key.
type Actor struct {
	ID            string
	Kind          ActorKind
	PublicKeyPEM  string
	PrivateKeyPEM string
	ActorDocument json.RawMessage
	EventDocument json.RawMessage
	Federated     bool
	CreatedAt     time.Time
}

// Follower is one remote actor following a local one. ActorJSON is the
// follower's profile as fetched at follow time, kept so direct messages can
// be addressed without refetching.
type Follower struct {
	ActorURL   string
	Inbox      string
	Name       string
	ActorJSON  json.RawMessage
	FollowedAt time.Time
}

// Message is one entry in an actor's append-only message log, addressable
// at https://{domain}/{actor}/m/{id}.
type Message struct {
	ID        string
	Content   json.RawMessage
	CreatedAt time.Time
}

// Store is the persistence surface the federation core needs. The postgres
// implementation lives in internal/storage/postgres.
type Store interface {
	// CreateActor persists a new actor with its keypair and documents.
	CreateActor(ctx context.Context, actor *Actor) error

	// GetActor returns ErrUnknownLocalActor when no actor has this id.
	GetActor(ctx context.Context, actorID string) (*Actor, error)

	// UpdateActorDocuments replaces the rendered documents after an edit.
	// Keys and id are immutable and have no update path.
	UpdateActorDocuments(ctx context.Context, actorID string, actorDoc, eventDoc json.RawMessage) error

	// DeleteActor purges the actor with its followers and message log.
	// Callers broadcast the Delete activity first.
	DeleteActor(ctx context.Context, actorID string) error

	// AddFollower records a follower. Re-follows are idempotent: adding an
	// existing follower succeeds without duplicating it.
	AddFollower(ctx context.Context, actorID string, follower Follower) error

	// RemoveFollower deletes a follower by its actor URL. Removing an
	// unknown follower is not an error.
	RemoveFollower(ctx context.Context, actorID, followerURL string) error

	// ListFollowers returns followers oldest first.
	ListFollowers(ctx context.Context, actorID string) ([]Follower, error)

	// AppendMessage adds to the message log. Returns ErrDuplicateMessageID
	// if the id is already present; existing entries are never overwritten.
	AppendMessage(ctx context.Context, actorID string, msg Message) error

	// GetMessage returns one log entry, or (nil, nil) when the id is not
	// in the log.
	GetMessage(ctx context.Context, actorID, messageID string) (*Message, error)

	// DeleteMessage removes a log entry after its Delete has federated.
	DeleteMessage(ctx context.Context, actorID, messageID string) error
}
