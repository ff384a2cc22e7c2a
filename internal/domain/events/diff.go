package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/convene-events/server/internal/sanitize"
)

// ChangeSummary renders a human-readable list of what an edit changed,
// used as the body of the Note broadcast to followers. Returns "" when
// nothing a follower would care about changed, in which case no Note is
// sent.
func ChangeSummary(before, after *Event) string {
	var changes []string

	if before.Name != after.Name {
		changes = append(changes, fmt.Sprintf("the name is now %s", sanitize.Text(after.Name)))
	}
	if before.Location != after.Location {
		changes = append(changes, fmt.Sprintf("the location is now %s", sanitize.Text(after.Location)))
	}
	if !before.Start.Equal(after.Start) {
		changes = append(changes, fmt.Sprintf("it now starts %s", formatInZone(after.Start, after.Timezone)))
	}
	if !before.End.Equal(after.End) {
		changes = append(changes, fmt.Sprintf("it now ends %s", formatInZone(after.End, after.Timezone)))
	}
	if before.Description != after.Description {
		changes = append(changes, "the description was updated")
	}

	if len(changes) == 0 {
		return ""
	}
	return fmt.Sprintf("<p>%s was just edited: %s.</p>",
		sanitize.Text(after.Name), strings.Join(changes, "; "))
}

// formatInZone renders a timestamp in the event's own timezone when it
// loads, falling back to UTC for unknown zone names.
func formatInZone(t time.Time, timezone string) string {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format("Monday, January 2 2006 at 3:04 PM (MST)")
}
