package activitypub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testActorParams() ActorParams {
	return ActorParams{
		ID:              "01hzx5m9gqv8w2k4t6y8a0b1c2",
		Domain:          "events.test",
		Name:            "Garden Party",
		DescriptionHTML: "<p>Bring a dish.</p>",
		Location:        "The park",
		Start:           time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC),
		PublicKeyPEM:    "-----BEGIN PUBLIC KEY-----\nabc\n-----END PUBLIC KEY-----\n",
	}
}

func TestNewActorDocument(t *testing.T) {
	doc := NewActorDocument(testActorParams())

	assert.Equal(t, "https://events.test/01hzx5m9gqv8w2k4t6y8a0b1c2", doc.ID)
	assert.Equal(t, "Person", doc.Type)
	assert.Equal(t, "01hzx5m9gqv8w2k4t6y8a0b1c2", doc.PreferredUsername)
	assert.Equal(t, "https://events.test/activitypub/inbox", doc.Inbox)
	assert.Equal(t, doc.ID+"/followers", doc.Followers)
	require.NotNil(t, doc.PublicKey)
	assert.Equal(t, doc.ID+"#main-key", doc.PublicKey.ID)
	assert.Equal(t, doc.ID, doc.PublicKey.Owner)
	assert.Contains(t, doc.Summary, "Bring a dish.")
	assert.Contains(t, doc.Summary, "The park")
	assert.Nil(t, doc.Icon)
}

func TestNewActorDocument_SummaryUsesEventTimezone(t *testing.T) {
	params := testActorParams()
	params.Start = time.Date(2026, 7, 4, 22, 0, 0, 0, time.UTC)
	params.Timezone = "America/New_York"

	doc := NewActorDocument(params)
	assert.Contains(t, doc.Summary, "Saturday, July 4 2026 at 6:00 PM (EDT)")
}

func TestNewActorDocument_SummaryFallsBackToUTC(t *testing.T) {
	params := testActorParams()
	params.Start = time.Date(2026, 7, 4, 22, 0, 0, 0, time.UTC)
	params.Timezone = "Not/AZone"

	doc := NewActorDocument(params)
	assert.Contains(t, doc.Summary, "Saturday, July 4 2026 at 10:00 PM (UTC)")
}

func TestUpdateActorDocument_PreservesIdentity(t *testing.T) {
	params := testActorParams()
	original := NewActorDocument(params)

	params.Name = "Garden Party (rescheduled)"
	params.DescriptionHTML = "<p>Now on Sunday.</p>"
	params.ImageFilename = "garden.jpg"
	updated := UpdateActorDocument(original, params)

	assert.Equal(t, original.ID, updated.ID)
	assert.Equal(t, original.PreferredUsername, updated.PreferredUsername)
	assert.Equal(t, original.Inbox, updated.Inbox)
	assert.Equal(t, original.Followers, updated.Followers)
	assert.Equal(t, original.PublicKey, updated.PublicKey)

	assert.Equal(t, "Garden Party (rescheduled)", updated.Name)
	assert.Contains(t, updated.Summary, "Now on Sunday.")
	require.NotNil(t, updated.Icon)
	assert.Equal(t, "https://events.test/events/garden.jpg", updated.Icon.URL)
}

func TestNewEventObject(t *testing.T) {
	obj := NewEventObject(testActorParams())

	assert.Equal(t, "https://events.test/01hzx5m9gqv8w2k4t6y8a0b1c2/event", obj.ID)
	assert.Equal(t, "Event", obj.Type)
	assert.Equal(t, "Garden Party", obj.Name)
	assert.Equal(t, "2026-06-01T18:00:00Z", obj.StartTime)
	assert.Empty(t, obj.EndTime)
}

func TestDocumentsSanitizeInput(t *testing.T) {
	params := testActorParams()
	params.Name = "Party <script>alert(1)</script>"
	params.DescriptionHTML = `<p>Hi</p><script>alert(2)</script>`

	doc := NewActorDocument(params)
	assert.NotContains(t, doc.Name, "script")
	assert.NotContains(t, doc.Summary, "script")
}

func TestNewWebfinger(t *testing.T) {
	wf := NewWebfinger("events.test", "01hzx5m9gqv8w2k4t6y8a0b1c2")

	assert.Equal(t, "acct:01hzx5m9gqv8w2k4t6y8a0b1c2@events.test", wf.Subject)
	require.NotEmpty(t, wf.Links)
	assert.Equal(t, "self", wf.Links[0].Rel)
	assert.Equal(t, ContentType, wf.Links[0].Type)
	assert.Equal(t, "https://events.test/01hzx5m9gqv8w2k4t6y8a0b1c2", wf.Links[0].Href)
}

func TestNewFollowersCollection(t *testing.T) {
	col := NewFollowersCollection("events.test", "01hzx5m9gqv8w2k4t6y8a0b1c2", []string{
		"https://a.example/users/alice",
		"https://b.example/users/bob",
	})

	assert.Equal(t, "OrderedCollection", col.Type)
	assert.Equal(t, 2, col.TotalItems)
	assert.Len(t, col.OrderedItems, 2)
	assert.Equal(t, "https://events.test/01hzx5m9gqv8w2k4t6y8a0b1c2/followers", col.ID)
}
