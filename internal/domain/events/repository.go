package events

import (
	"context"
	"time"
)

// Repository is the persistence surface for events, groups, and their
// owned attendees and comments. Implemented by internal/storage/postgres.
type Repository interface {
	CreateEvent(ctx context.Context, event *Event) error
	GetEvent(ctx context.Context, id string) (*Event, error)
	UpdateEvent(ctx context.Context, event *Event) error
	DeleteEvent(ctx context.Context, id string) error

	// ListEndedBefore returns events whose end time is before cutoff,
	// oldest first. Feeds the expiry job.
	ListEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Event, error)

	CreateGroup(ctx context.Context, group *Group) error
	GetGroup(ctx context.Context, id string) (*Group, error)
	UpdateGroup(ctx context.Context, group *Group) error
	DeleteGroup(ctx context.Context, id string) error
	ListGroupEvents(ctx context.Context, groupID string) ([]Event, error)

	AddAttendee(ctx context.Context, eventID string, attendee *Attendee) error
	RemoveAttendee(ctx context.Context, eventID, attendeeID string) error
	ListAttendees(ctx context.Context, eventID string) ([]Attendee, error)
	CountAttendees(ctx context.Context, eventID string) (int, error)

	AddComment(ctx context.Context, eventID string, comment *Comment) error
	AddReply(ctx context.Context, eventID, commentID string, reply *Reply) error
	RemoveComment(ctx context.Context, eventID, commentID string) error
	ListComments(ctx context.Context, eventID string) ([]Comment, error)
}
