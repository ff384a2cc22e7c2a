package activitypub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/convene-events/server/internal/domain/ids"
	"github.com/convene-events/server/internal/sanitize"
)

// maxConcurrentDeliveries bounds the outbound fan-out so a popular actor
// cannot exhaust sockets delivering to thousands of inboxes at once.
const maxConcurrentDeliveries = 8

// Delivery is the outcome of one destination in a broadcast. A failed
// delivery carries its error here and nowhere else; one slow or dead
// server never affects the rest of the batch.
type Delivery struct {
	Inbox      string
	StatusCode int
	Err        error
}

// DeliveryRecorder receives per-destination outcomes for metrics. May be
// nil.
type DeliveryRecorder interface {
	RecordDelivery(activityType string, succeeded bool)
}

// Broadcaster signs and fans out activities to follower inboxes. Every
// outbound message is appended to the sending actor's message log before
// the first delivery attempt, so a crash mid-broadcast can never produce a
// dereferenceable id pointing at nothing.
//
// All Broadcast* methods return once the message is persisted; delivery
// happens in the background and onComplete fires exactly once after every
// destination has been attempted. There is no retry: followers who miss an
// update catch up the next time they dereference the actor.
type Broadcaster struct {
	store    Store
	remote   *RemoteClient
	domain   string
	enabled  bool
	recorder DeliveryRecorder
	now      func() time.Time
}

func NewBroadcaster(store Store, remote *RemoteClient, domain string, enabled bool, recorder DeliveryRecorder) *Broadcaster {
	return &Broadcaster{
		store:    store,
		remote:   remote,
		domain:   domain,
		enabled:  enabled,
		recorder: recorder,
		now:      time.Now,
	}
}

// BroadcastNote publishes a public Note from actor to all followers and
// returns the new message URL. The content is sanitized before it leaves
// the server.
func (b *Broadcaster) BroadcastNote(ctx context.Context, actor *Actor, content string, onComplete func([]Delivery)) (string, error) {
	if !b.deliverable(actor) {
		go complete(onComplete, nil)
		return "", nil
	}

	hash, err := ids.NewMessageHash()
	if err != nil {
		return "", err
	}

	actorURL := ActorURL(b.domain, actor.ID)
	note := Note{
		ID:           MessageURL(b.domain, actor.ID, hash),
		Type:         "Note",
		Content:      sanitize.HTML(content),
		AttributedTo: actorURL,
		To:           []string{PublicAudience},
		CC:           []string{actorURL + "/followers"},
		Published:    PublishedNow(b.now()),
	}
	activity := NewCreateActivity(b.domain, actor.ID, hash, note)

	if err := b.appendAndFanOut(ctx, actor, hash, activity, nil, onComplete); err != nil {
		return "", err
	}
	return note.ID, nil
}

// BroadcastUpdate announces a changed actor profile or event object to all
// followers.
func (b *Broadcaster) BroadcastUpdate(ctx context.Context, actor *Actor, object any, onComplete func([]Delivery)) error {
	if !b.deliverable(actor) {
		go complete(onComplete, nil)
		return nil
	}

	hash, err := ids.NewMessageHash()
	if err != nil {
		return err
	}
	activity := NewUpdateActivity(b.domain, actor.ID, hash, object)
	return b.appendAndFanOut(ctx, actor, hash, activity, nil, onComplete)
}

// BroadcastDelete announces that object is gone. Callers delete local state
// only from inside onComplete, after the fediverse has been told.
func (b *Broadcaster) BroadcastDelete(ctx context.Context, actor *Actor, object any, onComplete func([]Delivery)) error {
	if !b.deliverable(actor) {
		go complete(onComplete, nil)
		return nil
	}

	hash, err := ids.NewMessageHash()
	if err != nil {
		return err
	}
	activity := NewDeleteActivity(b.domain, actor.ID, hash, object)
	return b.appendAndFanOut(ctx, actor, hash, activity, nil, onComplete)
}

// SendDirect delivers a private Note to a single follower's inbox. The
// recipient is mentioned in the tag list so their server raises a
// notification.
func (b *Broadcaster) SendDirect(ctx context.Context, actor *Actor, follower Follower, content string, onComplete func([]Delivery)) error {
	if !b.deliverable(actor) {
		go complete(onComplete, nil)
		return nil
	}

	hash, err := ids.NewMessageHash()
	if err != nil {
		return err
	}

	note := Note{
		ID:           MessageURL(b.domain, actor.ID, hash),
		Type:         "Note",
		Content:      sanitize.HTML(content),
		AttributedTo: ActorURL(b.domain, actor.ID),
		To:           []string{follower.ActorURL},
		Tag: []Mention{{
			Type: "Mention",
			Href: follower.ActorURL,
			Name: follower.Name,
		}},
		Published: PublishedNow(b.now()),
	}
	activity := NewDirectCreateActivity(b.domain, actor.ID, hash, note, follower.ActorURL)
	return b.appendAndFanOut(ctx, actor, hash, activity, []string{follower.Inbox}, onComplete)
}

// SendAccept acknowledges a Follow directly to the new follower's inbox.
// The Accept is logged like any other outbound message.
func (b *Broadcaster) SendAccept(ctx context.Context, actor *Actor, followActivity json.RawMessage, inbox string) error {
	if !b.deliverable(actor) {
		return nil
	}

	hash, err := ids.NewMessageHash()
	if err != nil {
		return err
	}

	var follow any
	if err := json.Unmarshal(followActivity, &follow); err != nil {
		return fmt.Errorf("decode follow activity: %w", err)
	}
	activity := NewAcceptActivity(b.domain, actor.ID, hash, follow)
	return b.appendAndFanOut(ctx, actor, hash, activity, []string{inbox}, nil)
}

// deliverable reports whether outbound federation applies to this actor.
// Disabled deployments and unfederated actors skip delivery entirely, but
// callers still get their completion callback so teardown sequencing works
// the same either way.
func (b *Broadcaster) deliverable(actor *Actor) bool {
	return b.enabled && actor.Federated
}

// appendAndFanOut persists the activity under its message hash, then
// starts background delivery. When inboxes is nil the actor's follower
// inboxes are used, deduplicated since many followers share a server.
func (b *Broadcaster) appendAndFanOut(ctx context.Context, actor *Actor, hash string, activity Activity, inboxes []string, onComplete func([]Delivery)) error {
	body, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("encode activity: %w", err)
	}

	err = b.store.AppendMessage(ctx, actor.ID, Message{
		ID:        hash,
		Content:   body,
		CreatedAt: b.now(),
	})
	if err != nil {
		return err
	}

	if inboxes == nil {
		followers, err := b.store.ListFollowers(ctx, actor.ID)
		if err != nil {
			return err
		}
		seen := make(map[string]struct{}, len(followers))
		for _, f := range followers {
			if f.Inbox == "" {
				continue
			}
			if _, dup := seen[f.Inbox]; dup {
				continue
			}
			seen[f.Inbox] = struct{}{}
			inboxes = append(inboxes, f.Inbox)
		}
	}

	// The request context dies with the HTTP response; deliveries keep
	// its values (logger, correlation id) but not its cancellation.
	bg := context.WithoutCancel(ctx)
	go b.fanOut(bg, actor, activity.Type, body, inboxes, onComplete)
	return nil
}

func (b *Broadcaster) fanOut(ctx context.Context, actor *Actor, activityType string, body []byte, inboxes []string, onComplete func([]Delivery)) {
	log := zerolog.Ctx(ctx)
	keyID := ActorURL(b.domain, actor.ID) + "#main-key"
	deliveries := make([]Delivery, len(inboxes))

	var g errgroup.Group
	g.SetLimit(maxConcurrentDeliveries)
	for i, inbox := range inboxes {
		g.Go(func() error {
			deliveries[i] = b.deliver(ctx, actor, keyID, inbox, body)
			if b.recorder != nil {
				b.recorder.RecordDelivery(activityType, deliveries[i].Err == nil)
			}
			return nil
		})
	}
	g.Wait()

	failed := 0
	for _, d := range deliveries {
		if d.Err != nil {
			failed++
			log.Warn().Str("inbox", d.Inbox).Int("status", d.StatusCode).Err(d.Err).Msg("delivery failed")
		}
	}
	log.Info().
		Str("actor_id", actor.ID).
		Str("activity_type", activityType).
		Int("destinations", len(inboxes)).
		Int("failed", failed).
		Msg("broadcast complete")

	complete(onComplete, deliveries)
}

func (b *Broadcaster) deliver(ctx context.Context, actor *Actor, keyID, inbox string, body []byte) Delivery {
	headers, err := SignRequest(actor.PrivateKeyPEM, keyID, inbox, body, b.now())
	if err != nil {
		return Delivery{Inbox: inbox, Err: err}
	}
	status, err := b.remote.Post(ctx, inbox, body, headers)
	return Delivery{Inbox: inbox, StatusCode: status, Err: err}
}

func complete(onComplete func([]Delivery), deliveries []Delivery) {
	if onComplete != nil {
		onComplete(deliveries)
	}
}
