package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChangeSummary(t *testing.T) {
	base := Event{
		Name:     "Garden Party",
		Location: "The park",
		Start:    time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC),
		Timezone: "UTC",
	}

	t.Run("no changes", func(t *testing.T) {
		after := base
		assert.Empty(t, ChangeSummary(&base, &after))
	})

	t.Run("location change", func(t *testing.T) {
		after := base
		after.Location = "The beach"
		summary := ChangeSummary(&base, &after)
		assert.Contains(t, summary, "the location is now The beach")
		assert.NotContains(t, summary, "starts")
	})

	t.Run("multiple changes", func(t *testing.T) {
		after := base
		after.Name = "Beach Party"
		after.Start = base.Start.Add(2 * time.Hour)
		summary := ChangeSummary(&base, &after)
		assert.Contains(t, summary, "the name is now Beach Party")
		assert.Contains(t, summary, "it now starts")
	})

	t.Run("description change is not echoed verbatim", func(t *testing.T) {
		after := base
		after.Description = "<p>Totally new plan</p>"
		summary := ChangeSummary(&base, &after)
		assert.Contains(t, summary, "the description was updated")
		assert.NotContains(t, summary, "Totally new plan")
	})

	t.Run("unknown timezone falls back to UTC", func(t *testing.T) {
		after := base
		after.Timezone = "Not/AZone"
		after.Start = base.Start.Add(time.Hour)
		assert.Contains(t, ChangeSummary(&base, &after), "UTC")
	})
}
