package activitypub

import (
	"fmt"
	"time"

	"github.com/convene-events/server/internal/sanitize"
)

// PublicAudience is the well-known collection that marks an activity as
// public. Remote servers treat anything addressed to it as world-readable.
const PublicAudience = "https://www.w3.org/ns/activitystreams#Public"

// ContentType is the media type for ActivityPub request and response bodies.
const ContentType = "application/activity+json"

var activityContext = []any{
	"https://www.w3.org/ns/activitystreams",
	"https://w3id.org/security/v1",
}

// PublicKey is the key block embedded in an actor document. Id is always
// the actor URL plus "#main-key"; Owner is the actor URL.
type PublicKey struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPEM string `json:"publicKeyPem"`
}

// Image is an icon or attachment reference.
type Image struct {
	Type      string `json:"type"`
	MediaType string `json:"mediaType,omitempty"`
	URL       string `json:"url"`
}

// ActorDocument is the public JSON-LD profile served at https://{domain}/{id}.
// Events and groups are published as Person actors so that general-purpose
// fediverse servers render them as followable profiles.
type ActorDocument struct {
	Context           any        `json:"@context"`
	ID                string     `json:"id"`
	Type              string     `json:"type"`
	PreferredUsername string     `json:"preferredUsername"`
	Name              string     `json:"name,omitempty"`
	Summary           string     `json:"summary,omitempty"`
	Inbox             string     `json:"inbox"`
	Outbox            string     `json:"outbox"`
	Followers         string     `json:"followers"`
	Featured          string     `json:"featured,omitempty"`
	Icon              *Image     `json:"icon,omitempty"`
	PublicKey         *PublicKey `json:"publicKey,omitempty"`
}

// EventObject is the AS2 Event served alongside the actor profile and
// broadcast in Update activities when the underlying event changes.
type EventObject struct {
	Context      any    `json:"@context"`
	ID           string `json:"id"`
	Type         string `json:"type"`
	Name         string `json:"name"`
	Summary      string `json:"summary,omitempty"`
	AttributedTo string `json:"attributedTo"`
	URL          string `json:"url"`
	Location     string `json:"location,omitempty"`
	StartTime    string `json:"startTime,omitempty"`
	EndTime      string `json:"endTime,omitempty"`
}

// Mention tags a recipient inside a Note so their server notifies them.
type Mention struct {
	Type string `json:"type"`
	Href string `json:"href"`
	Name string `json:"name,omitempty"`
}

// Note is a plain fediverse post: featured posts, broadcast announcements,
// direct messages to attendees, and stored copies of remote comments.
type Note struct {
	Context      any       `json:"@context,omitempty"`
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Name         string    `json:"name,omitempty"`
	Content      string    `json:"content"`
	AttributedTo string    `json:"attributedTo"`
	InReplyTo    string    `json:"inReplyTo,omitempty"`
	To           []string  `json:"to,omitempty"`
	CC           []string  `json:"cc,omitempty"`
	Tag          []Mention `json:"tag,omitempty"`
	Published    string    `json:"published,omitempty"`
}

// Activity is the outer envelope for Create, Update, Delete, Accept, and
// Follow payloads. Object stays loosely typed: inbound objects arrive as raw
// JSON and outbound ones are our own document structs.
type Activity struct {
	Context any      `json:"@context,omitempty"`
	ID      string   `json:"id,omitempty"`
	Type    string   `json:"type"`
	Actor   string   `json:"actor"`
	Object  any      `json:"object"`
	To      []string `json:"to,omitempty"`
	CC      []string `json:"cc,omitempty"`
}

// WebfingerLink is one entry in a Webfinger response.
type WebfingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type,omitempty"`
	Href string `json:"href"`
}

// Webfinger is the discovery document served at /.well-known/webfinger.
type Webfinger struct {
	Subject string          `json:"subject"`
	Links   []WebfingerLink `json:"links"`
}

// OrderedCollection is the one-page collection shape used for followers
// and featured posts.
type OrderedCollection struct {
	Context      any    `json:"@context"`
	ID           string `json:"id"`
	Type         string `json:"type"`
	TotalItems   int    `json:"totalItems"`
	OrderedItems []any  `json:"orderedItems"`
}

// ActorURL returns the canonical URL of a local actor.
func ActorURL(domain, actorID string) string {
	return fmt.Sprintf("https://%s/%s", domain, actorID)
}

// MessageURL returns the canonical URL of a message in an actor's log.
func MessageURL(domain, actorID, hash string) string {
	return fmt.Sprintf("https://%s/%s/m/%s", domain, actorID, hash)
}

// SharedInboxURL returns the single inbox URL every local actor advertises.
// All inbound activities land on one endpoint and are routed by object.
func SharedInboxURL(domain string) string {
	return fmt.Sprintf("https://%s/activitypub/inbox", domain)
}

// ActorParams carries everything needed to render an actor profile and its
// event object. DescriptionHTML is sanitized here before publication.
type ActorParams struct {
	ID              string
	Domain          string
	Name            string
	DescriptionHTML string
	Location        string
	ImageFilename   string
	Start           time.Time
	End             time.Time
	Timezone        string
	PublicKeyPEM    string
}

// NewActorDocument builds the profile for a freshly created actor. The id,
// endpoint URLs, and public key set here are permanent; edits go through
// UpdateActorDocument which preserves them.
func NewActorDocument(p ActorParams) ActorDocument {
	actorURL := ActorURL(p.Domain, p.ID)
	doc := ActorDocument{
		Context:           activityContext,
		ID:                actorURL,
		Type:              "Person",
		PreferredUsername: p.ID,
		Name:              sanitize.Text(p.Name),
		Summary:           actorSummary(p),
		Inbox:             SharedInboxURL(p.Domain),
		Outbox:            actorURL + "/outbox",
		Followers:         actorURL + "/followers",
		Featured:          actorURL + "/featured",
		Icon:              actorIcon(p),
		PublicKey: &PublicKey{
			ID:           actorURL + "#main-key",
			Owner:        actorURL,
			PublicKeyPEM: p.PublicKeyPEM,
		},
	}
	return doc
}

// UpdateActorDocument re-renders the mutable profile fields after an edit.
// The id, preferredUsername, endpoints, and publicKey of the existing
// document survive untouched so that follower relationships and signature
// verification keep working.
func UpdateActorDocument(existing ActorDocument, p ActorParams) ActorDocument {
	existing.Name = sanitize.Text(p.Name)
	existing.Summary = actorSummary(p)
	existing.Icon = actorIcon(p)
	return existing
}

// NewEventObject renders the AS2 Event for an actor. Its id is derived from
// the actor URL and is stable across edits.
func NewEventObject(p ActorParams) EventObject {
	actorURL := ActorURL(p.Domain, p.ID)
	obj := EventObject{
		Context:      activityContext,
		ID:           actorURL + "/event",
		Type:         "Event",
		Name:         sanitize.Text(p.Name),
		Summary:      sanitize.HTML(p.DescriptionHTML),
		AttributedTo: actorURL,
		URL:          actorURL,
		Location:     sanitize.Text(p.Location),
	}
	if !p.Start.IsZero() {
		obj.StartTime = p.Start.Format(time.RFC3339)
	}
	if !p.End.IsZero() {
		obj.EndTime = p.End.Format(time.RFC3339)
	}
	return obj
}

func actorSummary(p ActorParams) string {
	summary := sanitize.HTML(p.DescriptionHTML)
	if loc := sanitize.Text(p.Location); loc != "" {
		summary += fmt.Sprintf("<p>Location: %s</p>", loc)
	}
	if !p.Start.IsZero() {
		summary += fmt.Sprintf("<p>Starting %s</p>", formatStart(p.Start, p.Timezone))
	}
	return summary
}

// formatStart renders the start time in the event's own timezone, falling
// back to UTC for unknown zone names. Without this the summary would show
// whatever offset the collaborator happened to submit in.
func formatStart(t time.Time, timezone string) string {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format("Monday, January 2 2006 at 3:04 PM (MST)")
}

func actorIcon(p ActorParams) *Image {
	if p.ImageFilename == "" {
		return nil
	}
	return &Image{
		Type:      "Image",
		MediaType: "image/jpeg",
		URL:       fmt.Sprintf("https://%s/events/%s", p.Domain, p.ImageFilename),
	}
}

// NewFeaturedNote is the pinned post shown on an actor profile explaining
// what following it does.
func NewFeaturedNote(domain, actorID string) Note {
	actorURL := ActorURL(domain, actorID)
	return Note{
		ID:           actorURL + "/m/featuredPost",
		Type:         "Note",
		Name:         "RSVP to attend",
		Content:      fmt.Sprintf(`<p>Follow this account to RSVP and receive updates. Unfollow to cancel your RSVP. Details at <a href="%s">%s</a>.</p>`, actorURL, actorURL),
		AttributedTo: actorURL,
		To:           []string{PublicAudience},
	}
}

// NewWebfinger builds the discovery document for acct:{actorID}@{domain}.
func NewWebfinger(domain, actorID string) Webfinger {
	actorURL := ActorURL(domain, actorID)
	return Webfinger{
		Subject: fmt.Sprintf("acct:%s@%s", actorID, domain),
		Links: []WebfingerLink{
			{
				Rel:  "self",
				Type: ContentType,
				Href: actorURL,
			},
			{
				Rel:  "http://webfinger.net/rel/profile-page",
				Type: "text/html",
				Href: actorURL,
			},
		},
	}
}

// NewFollowersCollection lists follower actor URLs. The count and items are
// served from local state only; no remote calls.
func NewFollowersCollection(domain, actorID string, followerURLs []string) OrderedCollection {
	items := make([]any, len(followerURLs))
	for i, u := range followerURLs {
		items[i] = u
	}
	return OrderedCollection{
		Context:      activityContext,
		ID:           ActorURL(domain, actorID) + "/followers",
		Type:         "OrderedCollection",
		TotalItems:   len(followerURLs),
		OrderedItems: items,
	}
}

// NewFeaturedCollection wraps the pinned featured post for the actor.
func NewFeaturedCollection(domain, actorID string, notes []Note) OrderedCollection {
	items := make([]any, len(notes))
	for i, n := range notes {
		items[i] = n
	}
	return OrderedCollection{
		Context:      activityContext,
		ID:           ActorURL(domain, actorID) + "/featured",
		Type:         "OrderedCollection",
		TotalItems:   len(notes),
		OrderedItems: items,
	}
}

// NewAcceptActivity acknowledges a Follow. The original follow activity is
// echoed back verbatim as the object so the remote server can match it.
func NewAcceptActivity(domain, actorID, messageHash string, followActivity any) Activity {
	return Activity{
		Context: activityContext,
		ID:      MessageURL(domain, actorID, messageHash),
		Type:    "Accept",
		Actor:   ActorURL(domain, actorID),
		Object:  followActivity,
	}
}

// NewCreateActivity wraps a public Note for broadcast to followers.
func NewCreateActivity(domain, actorID, messageHash string, note Note) Activity {
	actorURL := ActorURL(domain, actorID)
	return Activity{
		Context: activityContext,
		ID:      MessageURL(domain, actorID, messageHash) + "/activity",
		Type:    "Create",
		Actor:   actorURL,
		Object:  note,
		To:      []string{PublicAudience},
		CC:      []string{actorURL + "/followers"},
	}
}

// NewDirectCreateActivity wraps a Note addressed to a single recipient.
// Nothing is cc'd, so remote servers treat it as a direct message.
func NewDirectCreateActivity(domain, actorID, messageHash string, note Note, recipient string) Activity {
	return Activity{
		Context: activityContext,
		ID:      MessageURL(domain, actorID, messageHash) + "/activity",
		Type:    "Create",
		Actor:   ActorURL(domain, actorID),
		Object:  note,
		To:      []string{recipient},
	}
}

// NewUpdateActivity announces a changed actor profile or event object.
func NewUpdateActivity(domain, actorID, messageHash string, object any) Activity {
	actorURL := ActorURL(domain, actorID)
	return Activity{
		Context: activityContext,
		ID:      MessageURL(domain, actorID, messageHash),
		Type:    "Update",
		Actor:   actorURL,
		Object:  object,
		To:      []string{PublicAudience},
		CC:      []string{actorURL + "/followers"},
	}
}

// NewDeleteActivity announces that an object is gone. Sent once for the
// event object and once for the actor itself before local state is purged.
func NewDeleteActivity(domain, actorID, messageHash string, object any) Activity {
	actorURL := ActorURL(domain, actorID)
	return Activity{
		Context: activityContext,
		ID:      MessageURL(domain, actorID, messageHash),
		Type:    "Delete",
		Actor:   actorURL,
		Object:  object,
		To:      []string{PublicAudience},
		CC:      []string{actorURL + "/followers"},
	}
}

// NewTombstone replaces a deleted message at its original URL.
func NewTombstone(id string) map[string]any {
	return map[string]any{
		"@context": activityContext,
		"id":       id,
		"type":     "Tombstone",
	}
}

// PublishedNow formats a publication timestamp the way remote servers
// expect on Note.published.
func PublishedNow(now time.Time) string {
	return now.UTC().Format(time.RFC3339)
}
