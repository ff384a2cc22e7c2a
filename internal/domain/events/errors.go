package events

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrEventNotFound      = errors.New("event not found")
	ErrGroupNotFound      = errors.New("group not found")
	ErrEditTokenMismatch  = errors.New("edit token mismatch")
	ErrEventFull          = errors.New("event is at capacity")
	ErrAttendanceDisabled = errors.New("attendance is disabled for this event")
	ErrCommentsDisabled   = errors.New("comments are disabled for this event")
	ErrCommentNotFound    = errors.New("comment not found")
	ErrAttendeeNotFound   = errors.New("attendee not found")
)
