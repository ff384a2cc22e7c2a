package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/convene-events/server/internal/domain/events"
)

var _ events.Repository = (*EventRepository)(nil)

const eventColumns = `
id, name, description, location, start_time, end_time, timezone,
image_filename, host_name, creator_contact, edit_token, max_attendees,
users_can_attend, users_can_comment, federated, group_id, created_at, updated_at`

func scanEvent(row pgx.Row) (*events.Event, error) {
	var e events.Event
	var start, end *time.Time
	var groupID *string
	err := row.Scan(
		&e.ID,
		&e.Name,
		&e.Description,
		&e.Location,
		&start,
		&end,
		&e.Timezone,
		&e.ImageFilename,
		&e.HostName,
		&e.CreatorContact,
		&e.EditToken,
		&e.MaxAttendees,
		&e.UsersCanAttend,
		&e.UsersCanComment,
		&e.Federated,
		&groupID,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if start != nil {
		e.Start = *start
	}
	if end != nil {
		e.End = *end
	}
	if groupID != nil {
		e.GroupID = *groupID
	}
	return &e, nil
}

func (r *EventRepository) CreateEvent(ctx context.Context, event *events.Event) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO events (id, name, description, location, start_time, end_time, timezone,
                    image_filename, host_name, creator_contact, edit_token, max_attendees,
                    users_can_attend, users_can_comment, federated, group_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NULLIF($16, ''), $17, $18)
`,
		event.ID,
		event.Name,
		event.Description,
		event.Location,
		nullableTime(event.Start),
		nullableTime(event.End),
		event.Timezone,
		event.ImageFilename,
		event.HostName,
		event.CreatorContact,
		event.EditToken,
		event.MaxAttendees,
		event.UsersCanAttend,
		event.UsersCanComment,
		event.Federated,
		event.GroupID,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (r *EventRepository) GetEvent(ctx context.Context, id string) (*events.Event, error) {
	row := r.queryer().QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	event, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, events.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

func (r *EventRepository) UpdateEvent(ctx context.Context, event *events.Event) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE events
   SET name = $2, description = $3, location = $4, start_time = $5, end_time = $6,
       timezone = $7, image_filename = $8, host_name = $9, max_attendees = $10,
       users_can_attend = $11, users_can_comment = $12, updated_at = $13
 WHERE id = $1
`,
		event.ID,
		event.Name,
		event.Description,
		event.Location,
		nullableTime(event.Start),
		nullableTime(event.End),
		event.Timezone,
		event.ImageFilename,
		event.HostName,
		event.MaxAttendees,
		event.UsersCanAttend,
		event.UsersCanComment,
		event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrEventNotFound
	}
	return nil
}

func (r *EventRepository) DeleteEvent(ctx context.Context, id string) error {
	if _, err := r.queryer().Exec(ctx, `DELETE FROM events WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

func (r *EventRepository) ListEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]events.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.queryer().Query(ctx, `
SELECT `+eventColumns+`
  FROM events
 WHERE end_time IS NOT NULL AND end_time < $1
 ORDER BY end_time ASC
 LIMIT $2
`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list ended events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, *event)
	}
	return out, rows.Err()
}

func (r *EventRepository) CreateGroup(ctx context.Context, group *events.Group) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO event_groups (id, name, description, url, image_filename, host_name,
                          creator_contact, edit_token, federated, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`,
		group.ID,
		group.Name,
		group.Description,
		group.URL,
		group.ImageFilename,
		group.HostName,
		group.CreatorContact,
		group.EditToken,
		group.Federated,
		group.CreatedAt,
		group.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

func (r *EventRepository) GetGroup(ctx context.Context, id string) (*events.Group, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT id, name, description, url, image_filename, host_name, creator_contact,
       edit_token, federated, created_at, updated_at
  FROM event_groups
 WHERE id = $1
`, id)

	var g events.Group
	err := row.Scan(
		&g.ID,
		&g.Name,
		&g.Description,
		&g.URL,
		&g.ImageFilename,
		&g.HostName,
		&g.CreatorContact,
		&g.EditToken,
		&g.Federated,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, events.ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return &g, nil
}

func (r *EventRepository) UpdateGroup(ctx context.Context, group *events.Group) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE event_groups
   SET name = $2, description = $3, url = $4, image_filename = $5, host_name = $6,
       updated_at = $7
 WHERE id = $1
`,
		group.ID,
		group.Name,
		group.Description,
		group.URL,
		group.ImageFilename,
		group.HostName,
		group.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrGroupNotFound
	}
	return nil
}

// DeleteGroup relies on the ON DELETE SET NULL constraint to unlink the
// group's events.
func (r *EventRepository) DeleteGroup(ctx context.Context, id string) error {
	if _, err := r.queryer().Exec(ctx, `DELETE FROM event_groups WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	return nil
}

func (r *EventRepository) ListGroupEvents(ctx context.Context, groupID string) ([]events.Event, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT `+eventColumns+` FROM events WHERE group_id = $1 ORDER BY start_time ASC
`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, *event)
	}
	return out, rows.Err()
}

func (r *EventRepository) AddAttendee(ctx context.Context, eventID string, attendee *events.Attendee) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO attendees (id, event_id, name, number, created_at)
VALUES ($1, $2, $3, $4, $5)
`, attendee.ID, eventID, attendee.Name, attendee.Number, attendee.CreatedAt)
	if err != nil {
		return fmt.Errorf("add attendee: %w", err)
	}
	return nil
}

func (r *EventRepository) RemoveAttendee(ctx context.Context, eventID, attendeeID string) error {
	tag, err := r.queryer().Exec(ctx, `
DELETE FROM attendees WHERE event_id = $1 AND id = $2
`, eventID, attendeeID)
	if err != nil {
		return fmt.Errorf("remove attendee: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrAttendeeNotFound
	}
	return nil
}

func (r *EventRepository) ListAttendees(ctx context.Context, eventID string) ([]events.Attendee, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT id, name, number, created_at FROM attendees WHERE event_id = $1 ORDER BY created_at ASC
`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	defer rows.Close()

	var out []events.Attendee
	for rows.Next() {
		var a events.Attendee
		if err := rows.Scan(&a.ID, &a.Name, &a.Number, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *EventRepository) CountAttendees(ctx context.Context, eventID string) (int, error) {
	var total int
	err := r.queryer().QueryRow(ctx, `
SELECT COALESCE(SUM(number), 0) FROM attendees WHERE event_id = $1
`, eventID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count attendees: %w", err)
	}
	return total, nil
}

func (r *EventRepository) AddComment(ctx context.Context, eventID string, comment *events.Comment) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO comments (id, event_id, author, author_url, content, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, comment.ID, eventID, comment.Author, comment.AuthorURL, comment.Content, comment.CreatedAt)
	if err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	return nil
}

func (r *EventRepository) AddReply(ctx context.Context, eventID, commentID string, reply *events.Reply) error {
	tag, err := r.queryer().Exec(ctx, `
INSERT INTO comment_replies (id, event_id, comment_id, author, content, created_at)
SELECT $1, $2, $3, $4, $5, $6
 WHERE EXISTS (SELECT 1 FROM comments WHERE event_id = $2 AND id = $3)
`, reply.ID, eventID, commentID, reply.Author, reply.Content, reply.CreatedAt)
	if err != nil {
		return fmt.Errorf("add reply: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrCommentNotFound
	}
	return nil
}

func (r *EventRepository) RemoveComment(ctx context.Context, eventID, commentID string) error {
	if _, err := r.queryer().Exec(ctx, `
DELETE FROM comments WHERE event_id = $1 AND id = $2
`, eventID, commentID); err != nil {
		return fmt.Errorf("remove comment: %w", err)
	}
	return nil
}

func (r *EventRepository) ListComments(ctx context.Context, eventID string) ([]events.Comment, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT id, author, author_url, content, created_at
  FROM comments
 WHERE event_id = $1
 ORDER BY created_at ASC
`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var comments []events.Comment
	index := make(map[string]int)
	for rows.Next() {
		var c events.Comment
		if err := rows.Scan(&c.ID, &c.Author, &c.AuthorURL, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		index[c.ID] = len(comments)
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	replyRows, err := r.queryer().Query(ctx, `
SELECT comment_id, id, author, content, created_at
  FROM comment_replies
 WHERE event_id = $1
 ORDER BY created_at ASC
`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	defer replyRows.Close()

	for replyRows.Next() {
		var commentID string
		var reply events.Reply
		if err := replyRows.Scan(&commentID, &reply.ID, &reply.Author, &reply.Content, &reply.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		if i, ok := index[commentID]; ok {
			comments[i].Replies = append(comments[i].Replies, reply)
		}
	}
	return comments, replyRows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
