package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/planora/event-scheduler/internal/model"
)

func publishableEvent() *model.Event {
	now := time.Now().UTC()
	return &model.Event{
		ID:         1,
		Title:      "Workshop",
		Format:     model.FormatInPerson,
		Location:   "Room 5",
		StartsAt:   now.Add(time.Hour),
		EndsAt:     now.Add(2 * time.Hour),
		Timezone:   "Europe/Berlin",
		Published:  true,
		PublicSlug: "workshop-abc123",
		Roles:      []model.Role{{ID: 1, Name: "Attendee", Capacity: 30}},
	}
}

func TestCheckAndApplyKeepsValidEventPublished(t *testing.T) {
	ev := publishableEvent()
	res := CheckAndApply(ev)
	assert.False(t, res.AutoUnpublished)
	assert.Empty(t, res.MissingFields)
	assert.True(t, ev.Published)
}

func TestCheckAndApplyUnpublishesAndKeepsSlug(t *testing.T) {
	ev := publishableEvent()
	ev.Location = "" // required for in-person events

	res := CheckAndApply(ev)
	assert.True(t, res.AutoUnpublished)
	assert.Equal(t, []string{"location"}, res.MissingFields)
	assert.False(t, ev.Published)
	assert.Equal(t, "workshop-abc123", ev.PublicSlug, "slug must survive auto-unpublish")
}

func TestCheckAndApplyOnDraftReportsFieldsOnly(t *testing.T) {
	ev := publishableEvent()
	ev.Published = false
	ev.Location = ""

	res := CheckAndApply(ev)
	assert.False(t, res.AutoUnpublished)
	assert.Equal(t, []string{"location"}, res.MissingFields)
}

func TestMissingPublishFieldsPerFormat(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*model.Event)
		missing []string
	}{
		{"online needs link", func(ev *model.Event) {
			ev.Format = model.FormatOnline
			ev.Location = ""
		}, []string{"meeting_link"}},
		{"hybrid needs both", func(ev *model.Event) {
			ev.Format = model.FormatHybrid
			ev.Location = ""
			ev.MeetingLink = ""
		}, []string{"location", "meeting_link"}},
		{"unknown format", func(ev *model.Event) { ev.Format = "" }, []string{"format"}},
		{"inverted window", func(ev *model.Event) { ev.EndsAt = ev.StartsAt.Add(-time.Hour) }, []string{"ends_at"}},
		{"bad timezone", func(ev *model.Event) { ev.Timezone = "Nowhere/Z" }, []string{"timezone"}},
		{"no roles", func(ev *model.Event) { ev.Roles = nil }, []string{"roles"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := publishableEvent()
			tc.mutate(ev)
			assert.Equal(t, tc.missing, MissingPublishFields(ev))
		})
	}
}

func TestRepublishRoundTrip(t *testing.T) {
	// Publish -> break a required field -> auto-unpublish -> fix the
	// field -> re-publish reuses the original slug.
	ev := publishableEvent()
	slug := ev.PublicSlug

	ev.Location = ""
	res := CheckAndApply(ev)
	assert.True(t, res.AutoUnpublished)
	assert.NotEmpty(t, res.MissingFields)

	ev.Location = "Room 5"
	assert.Empty(t, MissingPublishFields(ev))
	ev.Published = true
	res = CheckAndApply(ev)
	assert.False(t, res.AutoUnpublished)
	assert.Equal(t, slug, ev.PublicSlug)
}
