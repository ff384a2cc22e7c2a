package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/convene-events/server/internal/domain/activitypub"
)

var _ activitypub.Store = (*ActorRepository)(nil)

func (r *ActorRepository) CreateActor(ctx context.Context, actor *activitypub.Actor) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO actors (id, kind, public_key_pem, private_key_pem, actor_document, event_document, federated)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`,
		actor.ID,
		string(actor.Kind),
		actor.PublicKeyPEM,
		actor.PrivateKeyPEM,
		actor.ActorDocument,
		actor.EventDocument,
		actor.Federated,
	)
	if err != nil {
		return fmt.Errorf("create actor: %w", err)
	}
	return nil
}

func (r *ActorRepository) GetActor(ctx context.Context, actorID string) (*activitypub.Actor, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT id, kind, public_key_pem, private_key_pem, actor_document, event_document, federated, created_at
  FROM actors
 WHERE id = $1
`, actorID)

	var actor activitypub.Actor
	var kind string
	err := row.Scan(
		&actor.ID,
		&kind,
		&actor.PublicKeyPEM,
		&actor.PrivateKeyPEM,
		&actor.ActorDocument,
		&actor.EventDocument,
		&actor.Federated,
		&actor.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, activitypub.ErrUnknownLocalActor
	}
	if err != nil {
		return nil, fmt.Errorf("get actor: %w", err)
	}
	actor.Kind = activitypub.ActorKind(kind)
	return &actor, nil
}

func (r *ActorRepository) UpdateActorDocuments(ctx context.Context, actorID string, actorDoc, eventDoc json.RawMessage) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE actors SET actor_document = $2, event_document = $3 WHERE id = $1
`, actorID, actorDoc, eventDoc)
	if err != nil {
		return fmt.Errorf("update actor documents: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return activitypub.ErrUnknownLocalActor
	}
	return nil
}

func (r *ActorRepository) DeleteActor(ctx context.Context, actorID string) error {
	if _, err := r.queryer().Exec(ctx, `DELETE FROM actors WHERE id = $1`, actorID); err != nil {
		return fmt.Errorf("delete actor: %w", err)
	}
	return nil
}

// AddFollower is idempotent: re-follows hit the primary key and are
// silently absorbed by ON CONFLICT DO NOTHING.
func (r *ActorRepository) AddFollower(ctx context.Context, actorID string, follower activitypub.Follower) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO followers (actor_id, follower_url, inbox, name, follower_json)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (actor_id, follower_url) DO NOTHING
`,
		actorID,
		follower.ActorURL,
		follower.Inbox,
		follower.Name,
		follower.ActorJSON,
	)
	if err != nil {
		return fmt.Errorf("add follower: %w", err)
	}
	return nil
}

func (r *ActorRepository) RemoveFollower(ctx context.Context, actorID, followerURL string) error {
	_, err := r.queryer().Exec(ctx, `
DELETE FROM followers WHERE actor_id = $1 AND follower_url = $2
`, actorID, followerURL)
	if err != nil {
		return fmt.Errorf("remove follower: %w", err)
	}
	return nil
}

func (r *ActorRepository) ListFollowers(ctx context.Context, actorID string) ([]activitypub.Follower, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT follower_url, inbox, name, follower_json, followed_at
  FROM followers
 WHERE actor_id = $1
 ORDER BY followed_at ASC
`, actorID)
	if err != nil {
		return nil, fmt.Errorf("list followers: %w", err)
	}
	defer rows.Close()

	var followers []activitypub.Follower
	for rows.Next() {
		var f activitypub.Follower
		if err := rows.Scan(&f.ActorURL, &f.Inbox, &f.Name, &f.ActorJSON, &f.FollowedAt); err != nil {
			return nil, fmt.Errorf("scan follower: %w", err)
		}
		followers = append(followers, f)
	}
	return followers, rows.Err()
}

// AppendMessage refuses to overwrite: a primary key collision surfaces as
// ErrDuplicateMessageID.
func (r *ActorRepository) AppendMessage(ctx context.Context, actorID string, msg activitypub.Message) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO messages (actor_id, message_id, content, created_at)
VALUES ($1, $2, $3, $4)
`, actorID, msg.ID, msg.Content, msg.CreatedAt)
	if isUniqueViolation(err) {
		return activitypub.ErrDuplicateMessageID
	}
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (r *ActorRepository) GetMessage(ctx context.Context, actorID, messageID string) (*activitypub.Message, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT message_id, content, created_at
  FROM messages
 WHERE actor_id = $1 AND message_id = $2
`, actorID, messageID)

	var msg activitypub.Message
	err := row.Scan(&msg.ID, &msg.Content, &msg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &msg, nil
}

func (r *ActorRepository) DeleteMessage(ctx context.Context, actorID, messageID string) error {
	_, err := r.queryer().Exec(ctx, `
DELETE FROM messages WHERE actor_id = $1 AND message_id = $2
`, actorID, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}
