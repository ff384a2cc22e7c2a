// Package events holds the event and group lifecycle: creation with a
// federated identity, edits that announce themselves to followers, and
// deletion that tells the fediverse before anything is purged locally.
package events

import "time"

// Event is one hosted event. EditToken is the only authorization: whoever
// holds it can edit or delete the event.
type Event struct {
	ID              string
	Name            string
	Description     string
	Location        string
	Start           time.Time
	End             time.Time
	Timezone        string
	ImageFilename   string
	HostName        string
	CreatorContact  string
	EditToken       string
	MaxAttendees    int
	UsersCanAttend  bool
	UsersCanComment bool
	Federated       bool
	GroupID         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Group collects events under a shared, followable identity.
type Group struct {
	ID             string
	Name           string
	Description    string
	URL            string
	ImageFilename  string
	HostName       string
	CreatorContact string
	EditToken      string
	Federated      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Attendee is an RSVP recorded directly on the event (as opposed to a
// fediverse follow, which lives in the follower registry).
type Attendee struct {
	ID        string
	Name      string
	Number    int
	CreatedAt time.Time
}

// Comment is a discussion entry on an event. AuthorURL is set when the
// comment arrived over federation as a reply to one of our messages.
type Comment struct {
	ID        string
	Author    string
	AuthorURL string
	Content   string
	CreatedAt time.Time
	Replies   []Reply
}

// Reply is a nested response under a comment. One level only.
type Reply struct {
	ID        string
	Author    string
	Content   string
	CreatedAt time.Time
}
