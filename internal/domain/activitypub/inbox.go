package activitypub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/convene-events/server/internal/domain/ids"
	"github.com/convene-events/server/internal/sanitize"
)

// Disposition is the outcome of processing one inbound activity.
type Disposition string

const (
	// DispositionAccepted means local state changed (or an Accept was
	// sent) in response to the activity.
	DispositionAccepted Disposition = "accepted"

	// DispositionIgnored means the activity was well-formed but is not
	// something this server acts on. Responded 202 so the sender does not
	// retry.
	DispositionIgnored Disposition = "ignored"
)

// ReplySink receives inbound public replies to an actor's messages, which
// become comments on the underlying event. May be nil when commenting is
// not wired up.
type ReplySink interface {
	HandleReply(ctx context.Context, actorID, authorURL, authorName, inReplyTo, contentHTML string) error
}

// inboundActivity is the envelope shape of anything arriving at the shared
// inbox. Object is kept raw because its shape depends on Type.
type inboundActivity struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Actor  string          `json:"actor"`
	Object json.RawMessage `json:"object"`
}

// Inbox applies verified inbound activities to the follower registry.
// Requests reach Receive only after signature verification; the remaining
// checks here are about routing and about the signer matching the activity
// it claims to perform.
type Inbox struct {
	store       Store
	remote      *RemoteClient
	broadcaster *Broadcaster
	replies     ReplySink
	domain      string
}

func NewInbox(store Store, remote *RemoteClient, broadcaster *Broadcaster, replies ReplySink, domain string) *Inbox {
	return &Inbox{
		store:       store,
		remote:      remote,
		broadcaster: broadcaster,
		replies:     replies,
		domain:      domain,
	}
}

// Receive processes one verified activity. verifiedActorURL is the actor
// whose key signed the request. An activity claiming a different actor is
// acknowledged but not acted on: relays legitimately forward activities
// signed by a key other than the origin actor's, and delivery must not
// break for them.
func (in *Inbox) Receive(ctx context.Context, verifiedActorURL string, body []byte) (Disposition, error) {
	var activity inboundActivity
	if err := json.Unmarshal(body, &activity); err != nil {
		return DispositionIgnored, fmt.Errorf("decode activity: %w", err)
	}

	if activity.Actor != verifiedActorURL {
		zerolog.Ctx(ctx).Debug().
			Str("signer", verifiedActorURL).
			Str("activity_actor", activity.Actor).
			Msg("signer does not match activity actor, ignoring")
		return DispositionIgnored, nil
	}

	log := zerolog.Ctx(ctx).With().Str("activity_type", activity.Type).Str("remote_actor", activity.Actor).Logger()

	switch activity.Type {
	case "Follow":
		return in.handleFollow(log.WithContext(ctx), activity, body)
	case "Undo":
		return in.handleUndo(log.WithContext(ctx), activity)
	case "Create":
		return in.handleCreate(log.WithContext(ctx), activity)
	default:
		log.Debug().Msg("ignoring inbound activity")
		return DispositionIgnored, nil
	}
}

// handleFollow registers the follower, sends the Accept, and welcomes the
// new follower with a direct message. Re-follows take the same path and
// settle idempotently in the store.
func (in *Inbox) handleFollow(ctx context.Context, activity inboundActivity, rawActivity []byte) (Disposition, error) {
	var objectURL string
	if err := json.Unmarshal(activity.Object, &objectURL); err != nil {
		return DispositionIgnored, fmt.Errorf("follow object is not an actor url: %w", err)
	}

	actorID, err := in.localActorID(objectURL)
	if err != nil {
		return DispositionIgnored, err
	}
	actor, err := in.store.GetActor(ctx, actorID)
	if err != nil {
		return DispositionIgnored, err
	}

	remote, err := in.remote.FetchActor(ctx, activity.Actor)
	if err != nil {
		return DispositionIgnored, err
	}
	if remote.Inbox == "" {
		return DispositionIgnored, fmt.Errorf("%w: follower %s has no inbox", ErrActorUnreachable, activity.Actor)
	}

	follower := Follower{
		ActorURL:  remote.ID,
		Inbox:     remote.Inbox,
		Name:      followerName(remote),
		ActorJSON: remote.Raw,
	}
	if err := in.store.AddFollower(ctx, actor.ID, follower); err != nil {
		return DispositionIgnored, err
	}

	if err := in.broadcaster.SendAccept(ctx, actor, rawActivity, remote.Inbox); err != nil {
		return DispositionIgnored, err
	}

	if welcome := in.welcomeMessage(actor); welcome != "" {
		if err := in.broadcaster.SendDirect(ctx, actor, follower, welcome, nil); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("welcome message not sent")
		}
	}

	zerolog.Ctx(ctx).Info().Str("actor_id", actor.ID).Msg("follower added")
	return DispositionAccepted, nil
}

// handleUndo removes the follower when the undone activity is a Follow of
// one of our actors. Undoing a follow that was never recorded succeeds and
// changes nothing.
func (in *Inbox) handleUndo(ctx context.Context, activity inboundActivity) (Disposition, error) {
	var undone inboundActivity
	if err := json.Unmarshal(activity.Object, &undone); err != nil {
		return DispositionIgnored, fmt.Errorf("decode undone activity: %w", err)
	}
	if undone.Type != "Follow" {
		return DispositionIgnored, nil
	}

	var objectURL string
	if err := json.Unmarshal(undone.Object, &objectURL); err != nil {
		return DispositionIgnored, fmt.Errorf("undone follow object is not an actor url: %w", err)
	}

	actorID, err := in.localActorID(objectURL)
	if err != nil {
		return DispositionIgnored, err
	}
	actor, err := in.store.GetActor(ctx, actorID)
	if err != nil {
		return DispositionIgnored, err
	}

	if err := in.store.RemoveFollower(ctx, actor.ID, activity.Actor); err != nil {
		return DispositionIgnored, err
	}

	zerolog.Ctx(ctx).Info().Str("actor_id", actor.ID).Msg("follower removed")
	return DispositionAccepted, nil
}

// handleCreate routes public replies to our messages into the reply sink.
// Anything else under Create is ignored.
func (in *Inbox) handleCreate(ctx context.Context, activity inboundActivity) (Disposition, error) {
	if in.replies == nil {
		return DispositionIgnored, nil
	}

	var note Note
	if err := json.Unmarshal(activity.Object, &note); err != nil {
		return DispositionIgnored, nil
	}
	if note.Type != "Note" || note.InReplyTo == "" {
		return DispositionIgnored, nil
	}

	actorID, ok := in.localActorIDFromMessageURL(note.InReplyTo)
	if !ok {
		return DispositionIgnored, nil
	}

	remote, err := in.remote.FetchActor(ctx, activity.Actor)
	if err != nil {
		return DispositionIgnored, err
	}

	err = in.replies.HandleReply(ctx, actorID, remote.ID, followerName(remote), note.InReplyTo, note.Content)
	if err != nil {
		return DispositionIgnored, err
	}
	return DispositionAccepted, nil
}

// localActorID maps an actor URL on our domain to its id. URLs on other
// hosts or with unexpected paths mean the activity is not for us.
func (in *Inbox) localActorID(actorURL string) (string, error) {
	u, err := url.Parse(actorURL)
	if err != nil || u.Host != in.domain {
		return "", fmt.Errorf("%w: %s", ErrUnknownLocalActor, actorURL)
	}
	id := strings.Trim(u.Path, "/")
	if err := ids.ValidateActorID(id); err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownLocalActor, actorURL)
	}
	return id, nil
}

// localActorIDFromMessageURL recognizes https://{domain}/{id}/m/{hash}.
func (in *Inbox) localActorIDFromMessageURL(messageURL string) (string, bool) {
	u, err := url.Parse(messageURL)
	if err != nil || u.Host != in.domain {
		return "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 3 || parts[1] != "m" {
		return "", false
	}
	if ids.ValidateActorID(parts[0]) != nil {
		return "", false
	}
	return parts[0], true
}

// welcomeMessage renders the RSVP confirmation DM from the actor's stored
// profile. An actor whose document cannot be parsed just skips the DM.
func (in *Inbox) welcomeMessage(actor *Actor) string {
	var doc ActorDocument
	if err := json.Unmarshal(actor.ActorDocument, &doc); err != nil || doc.Name == "" {
		return ""
	}
	return fmt.Sprintf(
		"<p>You are now attending %s. Updates will appear here; unfollow this account to cancel your RSVP.</p>",
		sanitize.Text(doc.Name),
	)
}

func followerName(remote *RemoteActor) string {
	if remote.PreferredUsername != "" {
		return "@" + remote.PreferredUsername
	}
	return remote.Name
}
