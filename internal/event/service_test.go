package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planora/event-scheduler/internal/conflict"
	"github.com/planora/event-scheduler/internal/lock"
	"github.com/planora/event-scheduler/internal/model"
	"github.com/planora/event-scheduler/internal/notify"
)

// memEventStore keeps events in memory and doubles as the conflict
// detector's source.
type memEventStore struct {
	mu         sync.Mutex
	events     map[uint64]*model.Event
	audit      []model.AuditEntry
	nextID     uint64
	nextRoleID uint64
	failCreate bool
}

func newMemEventStore() *memEventStore {
	return &memEventStore{events: map[uint64]*model.Event{}, nextID: 1, nextRoleID: 1}
}

func (m *memEventStore) Create(_ context.Context, ev *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate {
		return errors.New("insert failed")
	}
	ev.ID = m.nextID
	m.nextID++
	for i := range ev.Roles {
		ev.Roles[i].ID = m.nextRoleID
		ev.Roles[i].EventID = ev.ID
		m.nextRoleID++
	}
	m.events[ev.ID] = cloneEvent(ev)
	return nil
}

func (m *memEventStore) Update(_ context.Context, ev *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[ev.ID]; !ok {
		return ErrNotFound
	}
	for i := range ev.Roles {
		if ev.Roles[i].ID == 0 {
			ev.Roles[i].ID = m.nextRoleID
			ev.Roles[i].EventID = ev.ID
			m.nextRoleID++
		}
	}
	m.events[ev.ID] = cloneEvent(ev)
	return nil
}

func (m *memEventStore) GetByID(_ context.Context, id uint64) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEvent(ev), nil
}

func (m *memEventStore) UpdateStatus(_ context.Context, id uint64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return ErrNotFound
	}
	ev.Status = status
	return nil
}

func (m *memEventStore) CreateAuditEntry(_ context.Context, entry *model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = uint64(len(m.audit) + 1)
	m.audit = append(m.audit, *entry)
	return nil
}

func (m *memEventStore) ListOverlapping(_ context.Context, start, end time.Time, excludeEventID uint64) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Event
	for _, ev := range m.events {
		if ev.ID == excludeEventID || ev.Status == model.StatusCancelled {
			continue
		}
		if ev.StartsAt.Before(end) && start.Before(ev.EndsAt) {
			out = append(out, *cloneEvent(ev))
		}
	}
	return out, nil
}

func (m *memEventStore) ListUpcoming(_ context.Context, from, to time.Time) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Event
	for _, ev := range m.events {
		if !ev.Published || ev.Status == model.StatusCancelled {
			continue
		}
		if !ev.StartsAt.Before(from) && ev.StartsAt.Before(to) {
			out = append(out, *cloneEvent(ev))
		}
	}
	return out, nil
}

type fakePrograms struct {
	mu       sync.Mutex
	existing map[uint64]bool
	refs     map[uint64][]uint64 // programID -> eventIDs
}

func newFakePrograms(ids ...uint64) *fakePrograms {
	p := &fakePrograms{existing: map[uint64]bool{}, refs: map[uint64][]uint64{}}
	for _, id := range ids {
		p.existing[id] = true
	}
	return p
}

func (p *fakePrograms) Exists(_ context.Context, id uint64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.existing[id], nil
}

func (p *fakePrograms) AddEventRef(_ context.Context, programID, eventID uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs[programID] = append(p.refs[programID], eventID)
	return nil
}

func (p *fakePrograms) RemoveEventRef(_ context.Context, programID, eventID uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.refs[programID][:0]
	for _, id := range p.refs[programID] {
		if id != eventID {
			kept = append(kept, id)
		}
	}
	p.refs[programID] = kept
	return nil
}

type fakeUsers struct{ active map[uint64]bool }

func (f *fakeUsers) IsActive(_ context.Context, id uint64) (bool, error) {
	return f.active[id], nil
}

type fakeRecipients struct{}

func (fakeRecipients) EventRecipients(_ context.Context, ev *model.Event) ([]notify.Recipient, error) {
	rcpts := []notify.Recipient{{SubjectID: fmt.Sprintf("user:%d", ev.OrganizerID)}}
	for _, id := range ev.CoOrganizerIDs {
		rcpts = append(rcpts, notify.Recipient{SubjectID: fmt.Sprintf("user:%d", id)})
	}
	return rcpts, nil
}

func (fakeRecipients) UserRecipients(_ context.Context, ids []uint64) ([]notify.Recipient, error) {
	rcpts := make([]notify.Recipient, 0, len(ids))
	for _, id := range ids {
		rcpts = append(rcpts, notify.Recipient{SubjectID: fmt.Sprintf("user:%d", id)})
	}
	return rcpts, nil
}

type dispatchCall struct {
	kind       notify.ChangeKind
	eventID    uint64
	recipients int
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []dispatchCall
}

func (f *fakeNotifier) Dispatch(_ context.Context, ev *model.Event, payload notify.Payload, recipients []notify.Recipient, _ uint64) notify.Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, dispatchCall{kind: payload.Kind(), eventID: ev.ID, recipients: len(recipients)})
	return notify.Summary{Success: true, MessagesCreated: len(recipients)}
}

func (f *fakeNotifier) kinds() []notify.ChangeKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notify.ChangeKind, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.kind
	}
	return out
}

type fakeCache struct {
	mu               sync.Mutex
	listingBumps     int
	analyticsBumps   int
	eventInvalidated []uint64
}

func (f *fakeCache) BumpListingVersion(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listingBumps++
}

func (f *fakeCache) InvalidateAnalytics(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyticsBumps++
}

func (f *fakeCache) InvalidateEvent(_ context.Context, id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventInvalidated = append(f.eventInvalidated, id)
}

type fixture struct {
	svc      *Service
	store    *memEventStore
	programs *fakePrograms
	users    *fakeUsers
	notifier *fakeNotifier
	cache    *fakeCache
}

func newFixture() *fixture {
	store := newMemEventStore()
	programs := newFakePrograms(10, 11)
	users := &fakeUsers{active: map[uint64]bool{1: true, 2: true, 3: true}}
	notifier := &fakeNotifier{}
	cacheInv := &fakeCache{}
	locks := lock.NewLocalLocker(lock.Config{TTL: 5 * time.Second, Attempts: 3, RetryDelay: 5 * time.Millisecond})
	svc := NewService(store, programs, users, fakeRecipients{}, conflict.NewDetector(store), locks, cacheInv, notifier)
	return &fixture{svc: svc, store: store, programs: programs, users: users, notifier: notifier, cache: cacheInv}
}

func organizer() Actor { return Actor{ID: 1, Role: model.RoleOrganizer} }

func baseCreate() CreateInput {
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	return CreateInput{
		Title:    "Go Meetup",
		Format:   model.FormatInPerson,
		Location: "Main Hall",
		StartsAt: start.Format(time.RFC3339),
		EndsAt:   start.Add(2 * time.Hour).Format(time.RFC3339),
		Timezone: "UTC",
		Publish:  true,
		Roles:    []RoleInput{{Name: "Attendee", Capacity: 50}},
	}
}

func TestCreatePublishedEvent(t *testing.T) {
	fx := newFixture()
	in := baseCreate()
	in.ProgramIDs = []uint64{10}
	in.CoOrganizerIDs = []uint64{2, 2, 1} // dupes and the organizer are dropped

	res, err := fx.svc.Create(context.Background(), in, organizer())
	require.NoError(t, err)
	ev := res.Event
	assert.NotZero(t, ev.ID)
	assert.True(t, ev.Published)
	assert.NotEmpty(t, ev.PublicSlug)
	assert.Equal(t, model.StatusUpcoming, ev.Status)
	assert.Equal(t, []uint64{2}, ev.CoOrganizerIDs)
	require.Len(t, ev.Roles, 1)
	assert.NotZero(t, ev.Roles[0].ID)

	assert.Equal(t, []uint64{ev.ID}, fx.programs.refs[10])
	assert.Equal(t, []notify.ChangeKind{notify.KindEventCreated}, fx.notifier.kinds())
	assert.Equal(t, 1, fx.cache.listingBumps)
	assert.Equal(t, 1, fx.cache.analyticsBumps)
}

func TestCreateDraftReportsMissingPublishFields(t *testing.T) {
	fx := newFixture()
	in := baseCreate()
	in.Publish = false
	in.Location = ""

	res, err := fx.svc.Create(context.Background(), in, organizer())
	require.NoError(t, err)
	assert.False(t, res.Event.Published)
	assert.Equal(t, model.StatusDraft, res.Event.Status)
	assert.Empty(t, res.Event.PublicSlug)
	assert.Contains(t, res.Missing, "location")
}

func TestCreatePublishRejectedWhenFieldsMissing(t *testing.T) {
	fx := newFixture()
	in := baseCreate()
	in.Location = ""

	_, err := fx.svc.Create(context.Background(), in, organizer())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "location")
}

func TestCreateConflictRejected(t *testing.T) {
	fx := newFixture()
	first, err := fx.svc.Create(context.Background(), baseCreate(), organizer())
	require.NoError(t, err)

	in := baseCreate()
	in.Title = "Clashing Meetup"
	_, err = fx.svc.Create(context.Background(), in, organizer())
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
	require.Len(t, cerr.Conflicts, 1)
	assert.Equal(t, first.Event.ID, cerr.Conflicts[0].ID)

	in.SkipConflictCheck = true
	_, err = fx.svc.Create(context.Background(), in, organizer())
	assert.NoError(t, err, "explicit suppression bypasses the check")
}

func TestCreateUnknownProgramRejected(t *testing.T) {
	fx := newFixture()
	in := baseCreate()
	in.ProgramIDs = []uint64{99}

	_, err := fx.svc.Create(context.Background(), in, organizer())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"program_ids"}, verr.Fields)
}

func TestCreateInactiveCoOrganizerRejected(t *testing.T) {
	fx := newFixture()
	fx.users.active[4] = false
	in := baseCreate()
	in.CoOrganizerIDs = []uint64{4}

	_, err := fx.svc.Create(context.Background(), in, organizer())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"co_organizer_ids"}, verr.Fields)
}

func TestCreateInputValidation(t *testing.T) {
	fx := newFixture()
	cases := []struct {
		name   string
		mutate func(*CreateInput)
		field  string
	}{
		{"empty title", func(in *CreateInput) { in.Title = "  " }, "title"},
		{"bad format", func(in *CreateInput) { in.Format = "VIRTUAL" }, "format"},
		{"zero capacity role", func(in *CreateInput) { in.Roles[0].Capacity = 0 }, "roles"},
		{"duplicate role names", func(in *CreateInput) {
			in.Roles = append(in.Roles, RoleInput{Name: "Attendee", Capacity: 5})
		}, "roles"},
		{"price out of range", func(in *CreateInput) { in.Roles[0].PriceCents = maxPriceCents + 1 }, "roles"},
		{"bad recurrence frequency", func(in *CreateInput) {
			in.Recurrence = &model.Recurrence{Frequency: "YEARLY", Count: 2}
		}, "recurrence"},
		{"recurrence count too high", func(in *CreateInput) {
			in.Recurrence = &model.Recurrence{Frequency: model.FreqDaily, Count: maxRecurrenceCount + 1}
		}, "recurrence"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := baseCreate()
			tc.mutate(&in)
			_, err := fx.svc.Create(context.Background(), in, organizer())
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tc.field)
		})
	}
}

func TestCreateWeeklyRecurrenceFanOut(t *testing.T) {
	fx := newFixture()
	in := baseCreate()
	in.Recurrence = &model.Recurrence{Frequency: model.FreqWeekly, Count: 3}

	res, err := fx.svc.Create(context.Background(), in, organizer())
	require.NoError(t, err)
	require.Len(t, res.Siblings, 2)

	first := res.Event
	for i, sib := range res.Siblings {
		wantStart := first.StartsAt.AddDate(0, 0, 7*(i+1))
		assert.True(t, sib.StartsAt.Equal(wantStart), "sibling %d start", i)
		assert.Equal(t, first.EndsAt.Sub(first.StartsAt), sib.EndsAt.Sub(sib.StartsAt))
		assert.NotEqual(t, first.PublicSlug, sib.PublicSlug, "siblings get their own slug")
		assert.Zero(t, sib.Roles[0].CurrentCount)
	}
}

func TestRecurrencePreservesWallClockAcrossDST(t *testing.T) {
	fx := newFixture()
	in := baseCreate()
	in.Timezone = "Europe/Berlin"
	// The week after this Friday, Berlin switches to summer time.
	in.StartsAt = "2027-03-26 10:00"
	in.EndsAt = "2027-03-26 12:00"
	in.Recurrence = &model.Recurrence{Frequency: model.FreqWeekly, Count: 2}

	res, err := fx.svc.Create(context.Background(), in, organizer())
	require.NoError(t, err)
	require.Len(t, res.Siblings, 1)

	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	sib := res.Siblings[0]
	assert.Equal(t, 10, sib.StartsAt.In(berlin).Hour(), "local start time survives the DST switch")
	assert.Equal(t, 9, res.Event.StartsAt.In(time.UTC).Hour())
	assert.Equal(t, 8, sib.StartsAt.In(time.UTC).Hour(), "the UTC instant shifts with the offset")
}

func TestRecurrenceSkipsConflictingSibling(t *testing.T) {
	fx := newFixture()

	// Occupy the second weekly slot before the recurring creation.
	blocker := baseCreate()
	blockStart, _ := time.Parse(time.RFC3339, blocker.StartsAt)
	blocker.StartsAt = blockStart.AddDate(0, 0, 7).Format(time.RFC3339)
	blocker.EndsAt = blockStart.AddDate(0, 0, 7).Add(2 * time.Hour).Format(time.RFC3339)
	_, err := fx.svc.Create(context.Background(), blocker, organizer())
	require.NoError(t, err)

	in := baseCreate()
	in.Title = "Weekly Series"
	in.Recurrence = &model.Recurrence{Frequency: model.FreqWeekly, Count: 3}
	res, err := fx.svc.Create(context.Background(), in, organizer())
	require.NoError(t, err)
	require.Len(t, res.Siblings, 1, "the blocked occurrence is skipped, the rest continue")
	wantStart := res.Event.StartsAt.AddDate(0, 0, 14)
	assert.True(t, res.Siblings[0].StartsAt.Equal(wantStart))
}

func TestUpdateAuthorization(t *testing.T) {
	fx := newFixture()
	in := baseCreate()
	in.CoOrganizerIDs = []uint64{2}
	created, err := fx.svc.Create(context.Background(), in, organizer())
	require.NoError(t, err)
	id := created.Event.ID
	title := "Renamed"

	_, err = fx.svc.Update(context.Background(), id, UpdateInput{Title: &title}, Actor{ID: 7, Role: model.RoleAttendee})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = fx.svc.Update(context.Background(), id, UpdateInput{Title: &title}, Actor{ID: 2, Role: model.RoleOrganizer})
	assert.NoError(t, err, "co-organizers may edit")

	title2 := "Renamed Again"
	_, err = fx.svc.Update(context.Background(), id, UpdateInput{Title: &title2}, Actor{ID: 9, Role: model.RoleAdmin})
	assert.NoError(t, err, "admins override ownership")
}

func TestUpdateUnknownEvent(t *testing.T) {
	fx := newFixture()
	title := "x"
	_, err := fx.svc.Update(context.Background(), 404, UpdateInput{Title: &title}, organizer())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateTimeTriggersConflictRecheck(t *testing.T) {
	fx := newFixture()
	first, err := fx.svc.Create(context.Background(), baseCreate(), organizer())
	require.NoError(t, err)

	other := baseCreate()
	otherStart, _ := time.Parse(time.RFC3339, other.StartsAt)
	other.StartsAt = otherStart.Add(6 * time.Hour).Format(time.RFC3339)
	other.EndsAt = otherStart.Add(8 * time.Hour).Format(time.RFC3339)
	second, err := fx.svc.Create(context.Background(), other, organizer())
	require.NoError(t, err)

	// Moving the second event onto the first one's window is rejected.
	clash := first.Event.StartsAt.Add(30 * time.Minute).Format(time.RFC3339)
	_, err = fx.svc.Update(context.Background(), second.Event.ID, UpdateInput{StartsAt: &clash}, organizer())
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)

	// Shifting the second event within free space is fine, and editing
	// an event against its own window never conflicts with itself.
	shifted := second.Event.StartsAt.Add(30 * time.Minute).Format(time.RFC3339)
	res, err := fx.svc.Update(context.Background(), second.Event.ID, UpdateInput{StartsAt: &shifted}, organizer())
	require.NoError(t, err)
	assert.Contains(t, res.ChangedFields, "time")
}

func TestUpdateAutoUnpublish(t *testing.T) {
	fx := newFixture()
	created, err := fx.svc.Create(context.Background(), baseCreate(), organizer())
	require.NoError(t, err)
	slug := created.Event.PublicSlug
	empty := ""

	res, err := fx.svc.Update(context.Background(), created.Event.ID, UpdateInput{Location: &empty}, organizer())
	require.NoError(t, err)
	assert.True(t, res.AutoUnpublished)
	assert.Equal(t, []string{"location"}, res.MissingFields)
	assert.False(t, res.Event.Published)
	assert.Equal(t, slug, res.Event.PublicSlug, "slug survives auto-unpublish")
	assert.Equal(t, model.StatusDraft, res.Event.Status)
	assert.Contains(t, res.ChangedFields, "published")

	// Both the general update notice and the organizer unpublish notice
	// went out.
	assert.Contains(t, fx.notifier.kinds(), notify.KindEventUpdated)
	assert.Contains(t, fx.notifier.kinds(), notify.KindEventUnpublished)
}

func TestUpdateRoleCapacityBelowCurrentCount(t *testing.T) {
	fx := newFixture()
	created, err := fx.svc.Create(context.Background(), baseCreate(), organizer())
	require.NoError(t, err)

	// Simulate active registrations on the stored role.
	fx.store.mu.Lock()
	fx.store.events[created.Event.ID].Roles[0].CurrentCount = 10
	fx.store.mu.Unlock()
	roleID := created.Event.Roles[0].ID

	shrunk := []RoleUpdate{{ID: roleID, Name: "Attendee", Capacity: 5}}
	_, err = fx.svc.Update(context.Background(), created.Event.ID, UpdateInput{Roles: &shrunk}, organizer())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"roles"}, verr.Fields)

	removed := []RoleUpdate{{Name: "Speaker", Capacity: 2}}
	_, err = fx.svc.Update(context.Background(), created.Event.ID, UpdateInput{Roles: &removed}, organizer())
	require.ErrorAs(t, err, &verr, "occupied roles cannot be removed")

	grown := []RoleUpdate{{ID: roleID, Name: "Attendee", Capacity: 80}, {Name: "Speaker", Capacity: 2}}
	res, err := fx.svc.Update(context.Background(), created.Event.ID, UpdateInput{Roles: &grown}, organizer())
	require.NoError(t, err)
	require.Len(t, res.Event.Roles, 2)
	assert.Equal(t, uint32(80), res.Event.Roles[0].Capacity)
	assert.Equal(t, uint32(10), res.Event.Roles[0].CurrentCount, "counter is never touched by edits")
	assert.NotZero(t, res.Event.Roles[1].ID, "new role got an ID")
}

func TestUpdateProgramDiffSyncsRefs(t *testing.T) {
	fx := newFixture()
	in := baseCreate()
	in.ProgramIDs = []uint64{10}
	created, err := fx.svc.Create(context.Background(), in, organizer())
	require.NoError(t, err)
	id := created.Event.ID

	next := []uint64{11}
	res, err := fx.svc.Update(context.Background(), id, UpdateInput{ProgramIDs: &next}, organizer())
	require.NoError(t, err)
	assert.Contains(t, res.ChangedFields, "programs")
	assert.Empty(t, fx.programs.refs[10], "removed program loses the back reference")
	assert.Equal(t, []uint64{id}, fx.programs.refs[11])
}

func TestUpdateNoChangesIsANoOp(t *testing.T) {
	fx := newFixture()
	created, err := fx.svc.Create(context.Background(), baseCreate(), organizer())
	require.NoError(t, err)
	dispatchesBefore := len(fx.notifier.kinds())
	sameTitle := created.Event.Title

	res, err := fx.svc.Update(context.Background(), created.Event.ID, UpdateInput{Title: &sameTitle}, organizer())
	require.NoError(t, err)
	assert.Empty(t, res.ChangedFields)
	assert.Len(t, fx.notifier.kinds(), dispatchesBefore, "no-op updates do not notify")
}

func TestCancelIsStickyAndAudited(t *testing.T) {
	fx := newFixture()
	created, err := fx.svc.Create(context.Background(), baseCreate(), organizer())
	require.NoError(t, err)
	id := created.Event.ID

	ev, err := fx.svc.Cancel(context.Background(), id, organizer(), "venue flooded")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, ev.Status)
	require.Len(t, fx.store.audit, 1)
	assert.Equal(t, "cancel", fx.store.audit[0].Action)
	assert.Equal(t, "venue flooded", fx.store.audit[0].Detail)
	assert.Contains(t, fx.notifier.kinds(), notify.KindEventCancelled)

	// Idempotent, and no second audit row.
	_, err = fx.svc.Cancel(context.Background(), id, organizer(), "again")
	require.NoError(t, err)
	assert.Len(t, fx.store.audit, 1)

	// Sticky: the lazy recompute must not resurrect it.
	got, err := fx.svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)

	title := "Rename attempt"
	_, err = fx.svc.Update(context.Background(), id, UpdateInput{Title: &title}, organizer())
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCancelCompletedEventRejected(t *testing.T) {
	fx := newFixture()
	in := baseCreate()
	past := time.Now().UTC().Add(-48 * time.Hour)
	in.StartsAt = past.Format(time.RFC3339)
	in.EndsAt = past.Add(time.Hour).Format(time.RFC3339)
	created, err := fx.svc.Create(context.Background(), in, organizer())
	require.NoError(t, err)

	_, err = fx.svc.Cancel(context.Background(), created.Event.ID, organizer(), "")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestPublishUnpublishRoundTripKeepsSlug(t *testing.T) {
	fx := newFixture()
	in := baseCreate()
	in.Publish = false
	created, err := fx.svc.Create(context.Background(), in, organizer())
	require.NoError(t, err)
	id := created.Event.ID

	ev, err := fx.svc.Publish(context.Background(), id, organizer())
	require.NoError(t, err)
	assert.True(t, ev.Published)
	slug := ev.PublicSlug
	require.NotEmpty(t, slug)

	ev, err = fx.svc.Unpublish(context.Background(), id, organizer())
	require.NoError(t, err)
	assert.False(t, ev.Published)
	assert.Equal(t, slug, ev.PublicSlug)
	assert.Equal(t, model.StatusDraft, ev.Status)

	ev, err = fx.svc.Publish(context.Background(), id, organizer())
	require.NoError(t, err)
	assert.Equal(t, slug, ev.PublicSlug, "re-publishing reuses the original slug")
}

func TestPublishIncompleteEventRejected(t *testing.T) {
	fx := newFixture()
	in := baseCreate()
	in.Publish = false
	in.Location = ""
	created, err := fx.svc.Create(context.Background(), in, organizer())
	require.NoError(t, err)

	_, err = fx.svc.Publish(context.Background(), created.Event.ID, organizer())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "location")
}

func TestGetRefreshesDriftedStatus(t *testing.T) {
	fx := newFixture()
	created, err := fx.svc.Create(context.Background(), baseCreate(), organizer())
	require.NoError(t, err)
	id := created.Event.ID
	assert.Equal(t, model.StatusUpcoming, created.Event.Status)

	// Move the clock past the end of the event.
	fx.svc.now = func() time.Time { return created.Event.EndsAt.Add(time.Hour) }

	got, err := fx.svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)

	stored, err := fx.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stored.Status, "drift is rewritten in storage")
}

func TestRefreshStatusReportsOngoing(t *testing.T) {
	fx := newFixture()
	created, err := fx.svc.Create(context.Background(), baseCreate(), organizer())
	require.NoError(t, err)

	fx.svc.now = func() time.Time { return created.Event.StartsAt.Add(time.Minute) }
	status, err := fx.svc.RefreshStatus(context.Background(), created.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOngoing, status)
}

func TestCheckConflictsProbe(t *testing.T) {
	fx := newFixture()
	created, err := fx.svc.Create(context.Background(), baseCreate(), organizer())
	require.NoError(t, err)
	ev := created.Event

	probe := ev.StartsAt.Add(30 * time.Minute).Format(time.RFC3339)
	found, err := fx.svc.CheckConflicts(context.Background(), probe, "", "UTC", 0)
	require.NoError(t, err)
	require.Len(t, found, 1, "point probe inside the window conflicts")

	found, err = fx.svc.CheckConflicts(context.Background(), probe, "", "UTC", ev.ID)
	require.NoError(t, err)
	assert.Empty(t, found, "excluding the event itself clears the probe")
}

func TestSendRemindersCoversOnlyTheHorizon(t *testing.T) {
	fx := newFixture()

	soon, err := fx.svc.Create(context.Background(), baseCreate(), organizer())
	require.NoError(t, err)

	far := baseCreate()
	farStart := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Hour)
	far.StartsAt = farStart.Format(time.RFC3339)
	far.EndsAt = farStart.Add(time.Hour).Format(time.RFC3339)
	_, err = fx.svc.Create(context.Background(), far, organizer())
	require.NoError(t, err)

	before := len(fx.notifier.kinds())
	n, err := fx.svc.SendReminders(context.Background(), 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the event inside the horizon is swept")

	calls := fx.notifier.calls[before:]
	require.Len(t, calls, 1)
	assert.Equal(t, notify.KindReminder, calls[0].kind)
	assert.Equal(t, soon.Event.ID, calls[0].eventID)
}
