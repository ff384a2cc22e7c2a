package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/convene-events/server/internal/domain/activitypub"
	"github.com/convene-events/server/internal/domain/ids"
	"github.com/convene-events/server/internal/sanitize"
)

// EventParams is the collaborator-supplied half of an event. Everything
// derived (id, keys, edit token, documents) is minted by the service.
type EventParams struct {
	Name            string
	Description     string
	Location        string
	Start           time.Time
	End             time.Time
	Timezone        string
	ImageFilename   string
	HostName        string
	CreatorContact  string
	MaxAttendees    int
	UsersCanAttend  bool
	UsersCanComment bool
	Federated       bool
	GroupID         string
	GroupEditToken  string
}

// GroupParams is the collaborator-supplied half of a group.
type GroupParams struct {
	Name           string
	Description    string
	URL            string
	ImageFilename  string
	HostName       string
	CreatorContact string
	Federated      bool
}

// Service owns the event and group lifecycle. Every mutation keeps three
// things in step: the event row, the actor's rendered documents, and the
// followers who need to hear about the change.
type Service struct {
	repo        Repository
	store       activitypub.Store
	broadcaster *activitypub.Broadcaster
	domain      string
	now         func() time.Time
}

func NewService(repo Repository, store activitypub.Store, broadcaster *activitypub.Broadcaster, domain string) *Service {
	return &Service{
		repo:        repo,
		store:       store,
		broadcaster: broadcaster,
		domain:      domain,
		now:         time.Now,
	}
}

// CreateEvent mints the event's identity (id, edit token, keypair), renders
// its federation documents, and persists both halves. The keypair and id
// never change afterwards.
func (s *Service) CreateEvent(ctx context.Context, p EventParams) (*Event, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !p.End.IsZero() && p.End.Before(p.Start) {
		return nil, fmt.Errorf("%w: event ends before it starts", ErrInvalidInput)
	}
	if p.GroupID != "" {
		group, err := s.repo.GetGroup(ctx, p.GroupID)
		if err != nil {
			return nil, err
		}
		if group.EditToken != p.GroupEditToken {
			return nil, fmt.Errorf("linking event to group: %w", ErrEditTokenMismatch)
		}
	}

	id, err := ids.NewActorID()
	if err != nil {
		return nil, err
	}
	editToken, err := ids.NewEditToken()
	if err != nil {
		return nil, err
	}

	actor, err := s.mintActor(id, activitypub.ActorKindEvent, p.Federated, s.actorParams(id, p))
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateActor(ctx, actor); err != nil {
		return nil, err
	}

	now := s.now()
	event := &Event{
		ID:              id,
		Name:            sanitize.Text(p.Name),
		Description:     sanitize.HTML(p.Description),
		Location:        sanitize.Text(p.Location),
		Start:           p.Start,
		End:             p.End,
		Timezone:        p.Timezone,
		ImageFilename:   p.ImageFilename,
		HostName:        sanitize.Text(p.HostName),
		CreatorContact:  p.CreatorContact,
		EditToken:       editToken,
		MaxAttendees:    p.MaxAttendees,
		UsersCanAttend:  p.UsersCanAttend,
		UsersCanComment: p.UsersCanComment,
		Federated:       p.Federated,
		GroupID:         p.GroupID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.CreateEvent(ctx, event); err != nil {
		// Orphaned actors are unreachable but harmless; try to avoid one.
		if delErr := s.store.DeleteActor(ctx, id); delErr != nil {
			zerolog.Ctx(ctx).Warn().Err(delErr).Str("actor_id", id).Msg("orphaned actor cleanup failed")
		}
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Str("event_id", id).Bool("federated", p.Federated).Msg("event created")
	return event, nil
}

// UpdateEvent applies an edit and announces it: a Note describing what
// changed, Update activities for the refreshed actor profile and event
// object, and a direct message to each follower. The actor document keeps
// its id, endpoints, and public key across the re-render.
func (s *Service) UpdateEvent(ctx context.Context, id, editToken string, p EventParams) (*Event, error) {
	event, err := s.authorizedEvent(ctx, id, editToken)
	if err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	before := *event
	event.Name = sanitize.Text(p.Name)
	event.Description = sanitize.HTML(p.Description)
	event.Location = sanitize.Text(p.Location)
	event.Start = p.Start
	event.End = p.End
	event.Timezone = p.Timezone
	event.ImageFilename = p.ImageFilename
	event.HostName = sanitize.Text(p.HostName)
	event.MaxAttendees = p.MaxAttendees
	event.UsersCanAttend = p.UsersCanAttend
	event.UsersCanComment = p.UsersCanComment
	event.UpdatedAt = s.now()

	actor, err := s.store.GetActor(ctx, id)
	if err != nil {
		return nil, err
	}
	actorDoc, eventObj, err := s.renderDocuments(actor, s.actorParams(id, p))
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateEvent(ctx, event); err != nil {
		return nil, err
	}
	if err := s.store.UpdateActorDocuments(ctx, id, actorDoc, eventObj); err != nil {
		return nil, err
	}
	actor.ActorDocument = actorDoc
	actor.EventDocument = eventObj

	s.announceEdit(ctx, actor, &before, event)
	return event, nil
}

// DeleteEvent removes an event, telling the fediverse first: Delete for the
// event object, then Delete for the actor, and only once both broadcasts
// have finished every delivery attempt is local state purged. The call
// blocks until the purge is done.
func (s *Service) DeleteEvent(ctx context.Context, id, editToken string) error {
	event, err := s.authorizedEvent(ctx, id, editToken)
	if err != nil {
		return err
	}
	return s.removeEvent(ctx, event)
}

// AddAttendee records an RSVP, enforcing the attendance flag and the
// capacity limit including party size.
func (s *Service) AddAttendee(ctx context.Context, eventID, name string, number int) (*Attendee, error) {
	event, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.UsersCanAttend {
		return nil, ErrAttendanceDisabled
	}
	if name == "" {
		return nil, fmt.Errorf("%w: attendee name is required", ErrInvalidInput)
	}
	if number < 1 {
		number = 1
	}

	if event.MaxAttendees > 0 {
		current, err := s.repo.CountAttendees(ctx, eventID)
		if err != nil {
			return nil, err
		}
		if current+number > event.MaxAttendees {
			return nil, ErrEventFull
		}
	}

	id, err := ids.NewMessageHash()
	if err != nil {
		return nil, err
	}
	attendee := &Attendee{
		ID:        id,
		Name:      sanitize.Text(name),
		Number:    number,
		CreatedAt: s.now(),
	}
	if err := s.repo.AddAttendee(ctx, eventID, attendee); err != nil {
		return nil, err
	}
	return attendee, nil
}

// RemoveAttendee cancels an RSVP. The attendee id doubles as the secret
// returned at RSVP time.
func (s *Service) RemoveAttendee(ctx context.Context, eventID, attendeeID string) error {
	if _, err := s.repo.GetEvent(ctx, eventID); err != nil {
		return err
	}
	return s.repo.RemoveAttendee(ctx, eventID, attendeeID)
}

// AddComment records a comment and, for federated events, broadcasts it as
// a public Note from the event's actor.
func (s *Service) AddComment(ctx context.Context, eventID, author, content string) (*Comment, error) {
	event, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.UsersCanComment {
		return nil, ErrCommentsDisabled
	}
	if content == "" {
		return nil, fmt.Errorf("%w: comment content is required", ErrInvalidInput)
	}

	id, err := ids.NewMessageHash()
	if err != nil {
		return nil, err
	}
	comment := &Comment{
		ID:        id,
		Author:    sanitize.Text(author),
		Content:   sanitize.HTML(content),
		CreatedAt: s.now(),
	}
	if err := s.repo.AddComment(ctx, eventID, comment); err != nil {
		return nil, err
	}

	s.broadcastComment(ctx, eventID, comment.Author, comment.Content)
	return comment, nil
}

// AddReply nests a reply under an existing comment and broadcasts it the
// same way as a top-level comment.
func (s *Service) AddReply(ctx context.Context, eventID, commentID, author, content string) (*Reply, error) {
	event, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.UsersCanComment {
		return nil, ErrCommentsDisabled
	}
	if content == "" {
		return nil, fmt.Errorf("%w: reply content is required", ErrInvalidInput)
	}

	id, err := ids.NewMessageHash()
	if err != nil {
		return nil, err
	}
	reply := &Reply{
		ID:        id,
		Author:    sanitize.Text(author),
		Content:   sanitize.HTML(content),
		CreatedAt: s.now(),
	}
	if err := s.repo.AddReply(ctx, eventID, commentID, reply); err != nil {
		return nil, err
	}

	s.broadcastComment(ctx, eventID, reply.Author, reply.Content)
	return reply, nil
}

// RemoveComment lets the edit-token holder moderate discussion.
func (s *Service) RemoveComment(ctx context.Context, eventID, editToken, commentID string) error {
	if _, err := s.authorizedEvent(ctx, eventID, editToken); err != nil {
		return err
	}
	return s.repo.RemoveComment(ctx, eventID, commentID)
}

// HandleReply files an inbound fediverse reply as a comment. Replies to
// events with comments off, or to actors that are not events, are dropped
// without error so the remote server gets its 202 and moves on.
func (s *Service) HandleReply(ctx context.Context, actorID, authorURL, authorName, inReplyTo, contentHTML string) error {
	event, err := s.repo.GetEvent(ctx, actorID)
	if errors.Is(err, ErrEventNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !event.UsersCanComment {
		return nil
	}

	id, err := ids.NewMessageHash()
	if err != nil {
		return err
	}
	comment := &Comment{
		ID:        id,
		Author:    sanitize.Text(authorName),
		AuthorURL: authorURL,
		Content:   sanitize.HTML(contentHTML),
		CreatedAt: s.now(),
	}
	if err := s.repo.AddComment(ctx, actorID, comment); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("event_id", actorID).Str("author", authorURL).Msg("federated comment added")
	return nil
}

// GetEvent, ListAttendees, and ListComments are read-side passthroughs for
// the API handlers.
func (s *Service) GetEvent(ctx context.Context, id string) (*Event, error) {
	return s.repo.GetEvent(ctx, id)
}

func (s *Service) ListAttendees(ctx context.Context, eventID string) ([]Attendee, error) {
	return s.repo.ListAttendees(ctx, eventID)
}

func (s *Service) ListComments(ctx context.Context, eventID string) ([]Comment, error) {
	return s.repo.ListComments(ctx, eventID)
}

// CreateGroup mirrors CreateEvent: the group gets its own followable actor.
func (s *Service) CreateGroup(ctx context.Context, p GroupParams) (*Group, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	id, err := ids.NewActorID()
	if err != nil {
		return nil, err
	}
	editToken, err := ids.NewEditToken()
	if err != nil {
		return nil, err
	}

	actor, err := s.mintActor(id, activitypub.ActorKindGroup, p.Federated, s.groupActorParams(id, p))
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateActor(ctx, actor); err != nil {
		return nil, err
	}

	now := s.now()
	group := &Group{
		ID:             id,
		Name:           sanitize.Text(p.Name),
		Description:    sanitize.HTML(p.Description),
		URL:            p.URL,
		ImageFilename:  p.ImageFilename,
		HostName:       sanitize.Text(p.HostName),
		CreatorContact: p.CreatorContact,
		EditToken:      editToken,
		Federated:      p.Federated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreateGroup(ctx, group); err != nil {
		if delErr := s.store.DeleteActor(ctx, id); delErr != nil {
			zerolog.Ctx(ctx).Warn().Err(delErr).Str("actor_id", id).Msg("orphaned actor cleanup failed")
		}
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Str("group_id", id).Msg("group created")
	return group, nil
}

// UpdateGroup re-renders the group profile and broadcasts the Update.
func (s *Service) UpdateGroup(ctx context.Context, id, editToken string, p GroupParams) (*Group, error) {
	group, err := s.repo.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	if group.EditToken != editToken {
		return nil, ErrEditTokenMismatch
	}
	if p.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	group.Name = sanitize.Text(p.Name)
	group.Description = sanitize.HTML(p.Description)
	group.URL = p.URL
	group.ImageFilename = p.ImageFilename
	group.HostName = sanitize.Text(p.HostName)
	group.UpdatedAt = s.now()

	actor, err := s.store.GetActor(ctx, id)
	if err != nil {
		return nil, err
	}
	actorDoc, _, err := s.renderDocuments(actor, s.groupActorParams(id, p))
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateGroup(ctx, group); err != nil {
		return nil, err
	}
	if err := s.store.UpdateActorDocuments(ctx, id, actorDoc, nil); err != nil {
		return nil, err
	}
	actor.ActorDocument = actorDoc

	if err := s.broadcaster.BroadcastUpdate(ctx, actor, json.RawMessage(actorDoc), nil); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("group_id", id).Msg("group update broadcast failed")
	}
	return group, nil
}

// DeleteGroup unlinks its events, announces the Delete, and purges. Events
// survive their group.
func (s *Service) DeleteGroup(ctx context.Context, id, editToken string) error {
	group, err := s.repo.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	if group.EditToken != editToken {
		return ErrEditTokenMismatch
	}

	actor, err := s.store.GetActor(ctx, id)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	err = s.broadcaster.BroadcastDelete(ctx, actor, json.RawMessage(actor.ActorDocument), func([]activitypub.Delivery) {
		if err := s.repo.DeleteGroup(ctx, id); err != nil {
			done <- err
			return
		}
		done <- s.store.DeleteActor(ctx, id)
	})
	if err != nil {
		return err
	}
	return <-done
}

func (s *Service) GetGroup(ctx context.Context, id string) (*Group, error) {
	return s.repo.GetGroup(ctx, id)
}

func (s *Service) ListGroupEvents(ctx context.Context, groupID string) ([]Event, error) {
	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.repo.ListGroupEvents(ctx, groupID)
}

// ExpireEvents deletes events that ended more than retention ago, running
// the same broadcast-then-purge sequence as a manual delete. Returns how
// many events were removed.
func (s *Service) ExpireEvents(ctx context.Context, retention time.Duration, limit int) (int, error) {
	cutoff := s.now().Add(-retention)
	expired, err := s.repo.ListEndedBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	removed := 0
	for i := range expired {
		event := &expired[i]
		if err := s.removeEvent(ctx, event); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("event_id", event.ID).Msg("expiry failed")
			continue
		}
		zerolog.Ctx(ctx).Info().Str("event_id", event.ID).Time("ended", event.End).Msg("expired event removed")
		removed++
	}
	return removed, nil
}

// removeEvent is the shared deletion sequence: Delete for the event object,
// then Delete for the actor, then the local purge, each step gated on the
// previous one finishing every delivery attempt.
func (s *Service) removeEvent(ctx context.Context, event *Event) error {
	actor, err := s.store.GetActor(ctx, event.ID)
	if errors.Is(err, activitypub.ErrUnknownLocalActor) {
		return s.repo.DeleteEvent(ctx, event.ID)
	}
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	err = s.broadcaster.BroadcastDelete(ctx, actor, json.RawMessage(actor.EventDocument), func([]activitypub.Delivery) {
		err := s.broadcaster.BroadcastDelete(ctx, actor, json.RawMessage(actor.ActorDocument), func([]activitypub.Delivery) {
			if err := s.repo.DeleteEvent(ctx, event.ID); err != nil {
				done <- err
				return
			}
			done <- s.store.DeleteActor(ctx, event.ID)
		})
		if err != nil {
			done <- err
		}
	})
	if err != nil {
		return err
	}
	return <-done
}

// announceEdit pushes the three edit notifications plus a DM per follower.
// Broadcast failures are logged and do not fail the edit: the database is
// already the source of truth and followers can re-fetch.
func (s *Service) announceEdit(ctx context.Context, actor *activitypub.Actor, before, after *Event) {
	log := zerolog.Ctx(ctx)

	summary := ChangeSummary(before, after)
	if summary != "" {
		if _, err := s.broadcaster.BroadcastNote(ctx, actor, summary, nil); err != nil {
			log.Warn().Err(err).Str("event_id", after.ID).Msg("edit note broadcast failed")
		}
	}

	if err := s.broadcaster.BroadcastUpdate(ctx, actor, json.RawMessage(actor.ActorDocument), nil); err != nil {
		log.Warn().Err(err).Str("event_id", after.ID).Msg("actor update broadcast failed")
	}
	if err := s.broadcaster.BroadcastUpdate(ctx, actor, json.RawMessage(actor.EventDocument), nil); err != nil {
		log.Warn().Err(err).Str("event_id", after.ID).Msg("event update broadcast failed")
	}

	if summary == "" {
		return
	}
	followers, err := s.store.ListFollowers(ctx, actor.ID)
	if err != nil {
		log.Warn().Err(err).Str("event_id", after.ID).Msg("listing followers for edit notification failed")
		return
	}
	for _, follower := range followers {
		if err := s.broadcaster.SendDirect(ctx, actor, follower, summary, nil); err != nil {
			log.Warn().Err(err).Str("follower", follower.ActorURL).Msg("edit notification failed")
		}
	}
}

func (s *Service) broadcastComment(ctx context.Context, eventID, author, contentHTML string) {
	actor, err := s.store.GetActor(ctx, eventID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("event_id", eventID).Msg("comment broadcast skipped")
		return
	}
	note := fmt.Sprintf("<p>%s commented:</p>%s", author, contentHTML)
	if _, err := s.broadcaster.BroadcastNote(ctx, actor, note, nil); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("event_id", eventID).Msg("comment broadcast failed")
	}
}

func (s *Service) authorizedEvent(ctx context.Context, id, editToken string) (*Event, error) {
	event, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.EditToken != editToken {
		return nil, ErrEditTokenMismatch
	}
	return event, nil
}

// mintActor generates the keypair and initial documents for a new actor.
func (s *Service) mintActor(id string, kind activitypub.ActorKind, federated bool, params activitypub.ActorParams) (*activitypub.Actor, error) {
	publicPEM, privatePEM, err := activitypub.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	params.PublicKeyPEM = publicPEM

	actorDoc, err := json.Marshal(activitypub.NewActorDocument(params))
	if err != nil {
		return nil, err
	}

	var eventDoc json.RawMessage
	if kind == activitypub.ActorKindEvent {
		eventDoc, err = json.Marshal(activitypub.NewEventObject(params))
		if err != nil {
			return nil, err
		}
	}

	return &activitypub.Actor{
		ID:            id,
		Kind:          kind,
		PublicKeyPEM:  publicPEM,
		PrivateKeyPEM: privatePEM,
		ActorDocument: actorDoc,
		EventDocument: eventDoc,
		Federated:     federated,
		CreatedAt:     s.now(),
	}, nil
}

// renderDocuments re-renders an existing actor's documents, keeping the
// identity fields of the current actor document.
func (s *Service) renderDocuments(actor *activitypub.Actor, params activitypub.ActorParams) (actorDoc, eventDoc json.RawMessage, err error) {
	var existing activitypub.ActorDocument
	if err := json.Unmarshal(actor.ActorDocument, &existing); err != nil {
		return nil, nil, fmt.Errorf("decode stored actor document: %w", err)
	}
	params.PublicKeyPEM = actor.PublicKeyPEM

	actorDoc, err = json.Marshal(activitypub.UpdateActorDocument(existing, params))
	if err != nil {
		return nil, nil, err
	}

	if actor.Kind == activitypub.ActorKindEvent {
		eventDoc, err = json.Marshal(activitypub.NewEventObject(params))
		if err != nil {
			return nil, nil, err
		}
	}
	return actorDoc, eventDoc, nil
}

func (s *Service) actorParams(id string, p EventParams) activitypub.ActorParams {
	return activitypub.ActorParams{
		ID:              id,
		Domain:          s.domain,
		Name:            p.Name,
		DescriptionHTML: p.Description,
		Location:        p.Location,
		ImageFilename:   p.ImageFilename,
		Start:           p.Start,
		End:             p.End,
		Timezone:        p.Timezone,
	}
}

func (s *Service) groupActorParams(id string, p GroupParams) activitypub.ActorParams {
	return activitypub.ActorParams{
		ID:              id,
		Domain:          s.domain,
		Name:            p.Name,
		DescriptionHTML: p.Description,
		ImageFilename:   p.ImageFilename,
	}
}
