// Package event orchestrates the event lifecycle: creation, updates,
// publish state, cancellation and the lazy status recomputation.  The
// service sequences the validation stages, the conflict detector, the
// publish guard, cache invalidation and the notification dispatch; the
// persistence details live behind narrow store interfaces.
package event

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/planora/event-scheduler/internal/conflict"
	"github.com/planora/event-scheduler/internal/guard"
	"github.com/planora/event-scheduler/internal/lock"
	"github.com/planora/event-scheduler/internal/model"
	"github.com/planora/event-scheduler/internal/notify"
	"github.com/planora/event-scheduler/internal/timewindow"
)

// Bounds enforced during input validation.
const (
	maxRecurrenceCount = 52
	maxPriceCents      = 1_000_000_00
)

// Store persists events, their status and the cancellation audit trail.
// GetByID must return ErrNotFound for unknown IDs and load roles,
// program references and co-organizers alongside the event row.  Create
// and Update persist those side tables in the same transaction as the
// event itself and fill in generated IDs.
type Store interface {
	Create(ctx context.Context, ev *model.Event) error
	Update(ctx context.Context, ev *model.Event) error
	GetByID(ctx context.Context, id uint64) (*model.Event, error)
	UpdateStatus(ctx context.Context, id uint64, status string) error
	CreateAuditEntry(ctx context.Context, entry *model.AuditEntry) error
	ListUpcoming(ctx context.Context, from, to time.Time) ([]model.Event, error)
}

// ProgramRegistry validates program labels and keeps the bidirectional
// program<->event references in sync.
type ProgramRegistry interface {
	Exists(ctx context.Context, programID uint64) (bool, error)
	AddEventRef(ctx context.Context, programID, eventID uint64) error
	RemoveEventRef(ctx context.Context, programID, eventID uint64) error
}

// UserDirectory answers whether a user account is active, used to vet
// co-organizer grants.
type UserDirectory interface {
	IsActive(ctx context.Context, userID uint64) (bool, error)
}

// RecipientSource resolves notification recipients.  EventRecipients
// returns the organizers plus every active registrant of the event;
// UserRecipients resolves a plain user ID list (used for
// organizer-only notices).
type RecipientSource interface {
	EventRecipients(ctx context.Context, ev *model.Event) ([]notify.Recipient, error)
	UserRecipients(ctx context.Context, userIDs []uint64) ([]notify.Recipient, error)
}

// CacheInvalidator is the slice of the cache coordinator the
// orchestrator needs.
type CacheInvalidator interface {
	BumpListingVersion(ctx context.Context)
	InvalidateAnalytics(ctx context.Context)
	InvalidateEvent(ctx context.Context, eventID uint64)
}

// Notifier fans a change out to the notification channels.  Dispatch is
// best-effort; the orchestrator logs the summary and never fails the
// mutation over it.
type Notifier interface {
	Dispatch(ctx context.Context, ev *model.Event, payload notify.Payload, recipients []notify.Recipient, actorID uint64) notify.Summary
}

// Actor identifies who is performing a mutation.
type Actor struct {
	ID   uint64
	Role string
}

func (a Actor) canManage(ev *model.Event) bool {
	return a.Role == model.RoleAdmin || ev.IsOrganizer(a.ID)
}

// RoleInput describes one role at creation time.
type RoleInput struct {
	Name        string
	Description string
	Capacity    uint32
	PriceCents  uint32
}

// RoleUpdate describes one role in an update.  ID zero creates a new
// role; roles of the event missing from the update list are removed,
// which is only allowed while they have no active registrations.
type RoleUpdate struct {
	ID          uint64
	Name        string
	Description string
	Capacity    uint32
	PriceCents  uint32
}

// CreateInput carries the creation request.  StartsAt and EndsAt are
// wall-clock strings interpreted in Timezone (RFC3339 strings keep
// their own offset).
type CreateInput struct {
	Title             string
	Description       string
	Format            string
	Location          string
	MeetingLink       string
	StartsAt          string
	EndsAt            string
	Timezone          string
	Publish           bool
	ProgramIDs        []uint64
	CoOrganizerIDs    []uint64
	Roles             []RoleInput
	Recurrence        *model.Recurrence
	SkipConflictCheck bool
}

// CreateResult reports a successful creation.  Siblings holds the
// recurrence fan-out events that were actually persisted; fan-out is
// best-effort, so it may be shorter than the requested count.
type CreateResult struct {
	Event    *model.Event
	Siblings []*model.Event
	Missing  []string
	Dispatch notify.Summary
}

// UpdateInput carries a partial update; nil pointers leave the field
// untouched.
type UpdateInput struct {
	Title             *string
	Description       *string
	Format            *string
	Location          *string
	MeetingLink       *string
	StartsAt          *string
	EndsAt            *string
	Timezone          *string
	ProgramIDs        *[]uint64
	CoOrganizerIDs    *[]uint64
	Roles             *[]RoleUpdate
	SkipConflictCheck bool
}

// UpdateResult reports an applied update, including whether the publish
// guard demoted the event.
type UpdateResult struct {
	Event           *model.Event
	ChangedFields   []string
	AutoUnpublished bool
	MissingFields   []string
	Dispatch        notify.Summary
}

// Service is the lifecycle orchestrator.
type Service struct {
	store      Store
	programs   ProgramRegistry
	users      UserDirectory
	recipients RecipientSource
	conflicts  *conflict.Detector
	locks      lock.Locker
	cache      CacheInvalidator
	notifier   Notifier
	now        func() time.Time
}

// NewService wires a Service.  cache, notifier and recipients may be
// nil; the corresponding stages are then skipped.
func NewService(store Store, programs ProgramRegistry, users UserDirectory, recipients RecipientSource, conflicts *conflict.Detector, locks lock.Locker, cache CacheInvalidator, notifier Notifier) *Service {
	return &Service{
		store:      store,
		programs:   programs,
		users:      users,
		recipients: recipients,
		conflicts:  conflicts,
		locks:      locks,
		cache:      cache,
		notifier:   notifier,
		now:        time.Now,
	}
}

// Create runs the creation workflow: normalize and validate input,
// check conflicts unless suppressed, validate roles, pricing, program
// labels and co-organizers, persist, fan out recurrence siblings
// best-effort, invalidate caches and notify the organizers.
func (s *Service) Create(ctx context.Context, in CreateInput, actor Actor) (*CreateResult, error) {
	if err := validateCreateInput(in); err != nil {
		return nil, err
	}
	w, err := parseWindow(in.StartsAt, in.EndsAt, in.Timezone)
	if err != nil {
		return nil, err
	}
	if !in.SkipConflictCheck {
		found, err := s.conflicts.FindConflicts(ctx, w, 0)
		if err != nil {
			return nil, fmt.Errorf("conflict check: %w", err)
		}
		if len(found) > 0 {
			return nil, &ConflictError{Conflicts: found}
		}
	}
	if err := s.validatePrograms(ctx, in.ProgramIDs); err != nil {
		return nil, err
	}
	coOrgs, err := s.validateCoOrganizers(ctx, in.CoOrganizerIDs, actor.ID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	ev := &model.Event{
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Format:         in.Format,
		Location:       strings.TrimSpace(in.Location),
		MeetingLink:    strings.TrimSpace(in.MeetingLink),
		StartsAt:       w.Start,
		EndsAt:         w.End,
		Timezone:       in.Timezone,
		OrganizerID:    actor.ID,
		CoOrganizerIDs: coOrgs,
		ProgramIDs:     append([]uint64(nil), in.ProgramIDs...),
		Roles:          rolesFromInput(in.Roles),
		Recurrence:     in.Recurrence,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	missing := guard.MissingPublishFields(ev)
	if in.Publish {
		if len(missing) > 0 {
			return nil, &ValidationError{Message: "event cannot be published", Fields: missing}
		}
		ev.Published = true
		ev.PublicSlug = newSlug(ev.Title)
	}
	ev.Status = ev.StatusAt(now)

	if err := s.store.Create(ctx, ev); err != nil {
		return nil, fmt.Errorf("persist event: %w", err)
	}
	s.syncProgramRefs(ctx, ev.ID, nil, ev.ProgramIDs)

	res := &CreateResult{Event: ev, Missing: missing}
	if in.Recurrence != nil && in.Recurrence.Count > 1 {
		res.Siblings = s.fanOutRecurrence(ctx, ev, in)
	}

	s.invalidateAfterWrite(ctx, 0)
	res.Dispatch = s.dispatchToEvent(ctx, ev, notify.EventCreatedPayload{
		EventTitle: ev.Title,
		StartsAt:   ev.StartsAt,
	}, actor.ID)
	return res, nil
}

// Update runs the update workflow under the event lock: authorize,
// apply and validate the changed fields, re-check conflicts if the
// window moved, diff program labels, re-vet co-organizers, run the
// publish guard, persist, invalidate and notify.
func (s *Service) Update(ctx context.Context, eventID uint64, in UpdateInput, actor Actor) (*UpdateResult, error) {
	release, err := s.locks.Acquire(ctx, lock.EventKey(eventID))
	if err != nil {
		return nil, fmt.Errorf("acquire event lock: %w", err)
	}
	defer release()

	ev, err := s.store.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !actor.canManage(ev) {
		return nil, ErrForbidden
	}
	if ev.Status == model.StatusCancelled {
		return nil, &ValidationError{Message: "cancelled events cannot be modified"}
	}

	cp := cloneEvent(ev)
	var changed []string
	apply := func(field string, dst *string, src *string) {
		if src != nil && *src != *dst {
			*dst = *src
			changed = append(changed, field)
		}
	}
	apply("title", &cp.Title, in.Title)
	apply("description", &cp.Description, in.Description)
	apply("format", &cp.Format, in.Format)
	apply("location", &cp.Location, in.Location)
	apply("meeting_link", &cp.MeetingLink, in.MeetingLink)
	if in.Format != nil && !validFormat(*in.Format) {
		return nil, &ValidationError{Message: "unknown event format", Fields: []string{"format"}}
	}

	if in.StartsAt != nil || in.EndsAt != nil || in.Timezone != nil {
		tz := cp.Timezone
		if in.Timezone != nil {
			tz = *in.Timezone
		}
		startStr := cp.StartsAt.Format(time.RFC3339)
		if in.StartsAt != nil {
			startStr = *in.StartsAt
		}
		endStr := cp.EndsAt.Format(time.RFC3339)
		if in.EndsAt != nil {
			endStr = *in.EndsAt
		}
		w, err := parseWindow(startStr, endStr, tz)
		if err != nil {
			return nil, err
		}
		if !w.Start.Equal(cp.StartsAt) || !w.End.Equal(cp.EndsAt) || tz != cp.Timezone {
			cp.StartsAt, cp.EndsAt, cp.Timezone = w.Start, w.End, tz
			changed = append(changed, "time")
			if !in.SkipConflictCheck {
				found, err := s.conflicts.FindConflicts(ctx, w, cp.ID)
				if err != nil {
					return nil, fmt.Errorf("conflict check: %w", err)
				}
				if len(found) > 0 {
					return nil, &ConflictError{Conflicts: found}
				}
			}
		}
	}

	if in.Roles != nil {
		if err := applyRoleUpdates(cp, *in.Roles); err != nil {
			return nil, err
		}
		changed = append(changed, "roles")
	}

	var addedPrograms, removedPrograms []uint64
	if in.ProgramIDs != nil {
		addedPrograms, removedPrograms = diffIDs(cp.ProgramIDs, *in.ProgramIDs)
		if len(addedPrograms) > 0 || len(removedPrograms) > 0 {
			if err := s.validatePrograms(ctx, addedPrograms); err != nil {
				return nil, err
			}
			cp.ProgramIDs = append([]uint64(nil), *in.ProgramIDs...)
			changed = append(changed, "programs")
		}
	}

	if in.CoOrganizerIDs != nil {
		coOrgs, err := s.validateCoOrganizers(ctx, *in.CoOrganizerIDs, cp.OrganizerID)
		if err != nil {
			return nil, err
		}
		if !sameIDs(cp.CoOrganizerIDs, coOrgs) {
			cp.CoOrganizerIDs = coOrgs
			changed = append(changed, "co_organizers")
		}
	}

	if len(changed) == 0 {
		return &UpdateResult{Event: ev}, nil
	}

	guardRes := guard.CheckAndApply(cp)
	if guardRes.AutoUnpublished {
		changed = append(changed, "published")
	}
	now := s.now().UTC()
	cp.Status = cp.StatusAt(now)
	cp.UpdatedAt = now

	if err := s.store.Update(ctx, cp); err != nil {
		return nil, fmt.Errorf("persist event: %w", err)
	}
	s.syncProgramRefs(ctx, cp.ID, removedPrograms, addedPrograms)
	s.invalidateAfterWrite(ctx, cp.ID)

	res := &UpdateResult{
		Event:           cp,
		ChangedFields:   changed,
		AutoUnpublished: guardRes.AutoUnpublished,
		MissingFields:   guardRes.MissingFields,
	}
	res.Dispatch = s.dispatchToEvent(ctx, cp, notify.EventUpdatedPayload{
		EventTitle:    cp.Title,
		ChangedFields: changed,
	}, actor.ID)
	if guardRes.AutoUnpublished {
		s.dispatchToOrganizers(ctx, cp, notify.EventUnpublishedPayload{
			EventTitle:    cp.Title,
			MissingFields: guardRes.MissingFields,
		}, actor.ID)
	}
	return res, nil
}

// Publish makes the event publicly listed.  The slug is assigned on the
// first publish and reused forever after.  Publishing an event that
// fails the required-field set is rejected with the field list.
func (s *Service) Publish(ctx context.Context, eventID uint64, actor Actor) (*model.Event, error) {
	return s.setPublished(ctx, eventID, actor, true)
}

// Unpublish removes the event from the public listing.  The slug is
// kept so a later re-publish serves the same URL.
func (s *Service) Unpublish(ctx context.Context, eventID uint64, actor Actor) (*model.Event, error) {
	return s.setPublished(ctx, eventID, actor, false)
}

func (s *Service) setPublished(ctx context.Context, eventID uint64, actor Actor, publish bool) (*model.Event, error) {
	release, err := s.locks.Acquire(ctx, lock.EventKey(eventID))
	if err != nil {
		return nil, fmt.Errorf("acquire event lock: %w", err)
	}
	defer release()

	ev, err := s.store.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !actor.canManage(ev) {
		return nil, ErrForbidden
	}
	if ev.Status == model.StatusCancelled {
		return nil, &ValidationError{Message: "cancelled events cannot be modified"}
	}
	if ev.Published == publish {
		return ev, nil
	}
	if publish {
		if missing := guard.MissingPublishFields(ev); len(missing) > 0 {
			return nil, &ValidationError{Message: "event cannot be published", Fields: missing}
		}
		if ev.PublicSlug == "" {
			ev.PublicSlug = newSlug(ev.Title)
		}
	}
	ev.Published = publish
	now := s.now().UTC()
	ev.Status = ev.StatusAt(now)
	ev.UpdatedAt = now
	if err := s.store.Update(ctx, ev); err != nil {
		return nil, fmt.Errorf("persist event: %w", err)
	}
	s.invalidateAfterWrite(ctx, ev.ID)
	s.dispatchToEvent(ctx, ev, notify.EventUpdatedPayload{
		EventTitle:    ev.Title,
		ChangedFields: []string{"published"},
	}, actor.ID)
	return ev, nil
}

// Cancel sets the terminal CANCELLED status, writes the audit entry and
// notifies everyone involved.  Cancelling an already cancelled event is
// a no-op; completed events cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, eventID uint64, actor Actor, reason string) (*model.Event, error) {
	release, err := s.locks.Acquire(ctx, lock.EventKey(eventID))
	if err != nil {
		return nil, fmt.Errorf("acquire event lock: %w", err)
	}
	defer release()

	ev, err := s.store.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !actor.canManage(ev) {
		return nil, ErrForbidden
	}
	now := s.now().UTC()
	switch ev.StatusAt(now) {
	case model.StatusCancelled:
		return ev, nil
	case model.StatusCompleted:
		return nil, &ValidationError{Message: "completed events cannot be cancelled"}
	}

	ev.Status = model.StatusCancelled
	ev.UpdatedAt = now
	if err := s.store.UpdateStatus(ctx, ev.ID, model.StatusCancelled); err != nil {
		return nil, fmt.Errorf("persist cancellation: %w", err)
	}
	entry := &model.AuditEntry{
		EventID:   ev.ID,
		ActorID:   actor.ID,
		Action:    "cancel",
		Detail:    reason,
		CreatedAt: now,
	}
	if err := s.store.CreateAuditEntry(ctx, entry); err != nil {
		// The cancellation itself is already durable.
		log.Printf("event: audit entry for cancel of %d failed: %v", ev.ID, err)
	}

	s.invalidateAfterWrite(ctx, ev.ID)
	s.dispatchToEvent(ctx, ev, notify.EventCancelledPayload{
		EventTitle: ev.Title,
		Reason:     reason,
	}, actor.ID)
	return ev, nil
}

// Get loads an event and lazily recomputes its derived status.  A drift
// (e.g. UPCOMING past its start) is rewritten in storage on the way
// out; a failed rewrite only delays the correction to the next read.
func (s *Service) Get(ctx context.Context, eventID uint64) (*model.Event, error) {
	ev, err := s.store.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	s.refreshStatus(ctx, ev)
	return ev, nil
}

// RefreshStatus recomputes and persists the derived status of one
// event, reporting the status now in effect.
func (s *Service) RefreshStatus(ctx context.Context, eventID uint64) (string, error) {
	ev, err := s.store.GetByID(ctx, eventID)
	if err != nil {
		return "", err
	}
	s.refreshStatus(ctx, ev)
	return ev.Status, nil
}

func (s *Service) refreshStatus(ctx context.Context, ev *model.Event) {
	derived := ev.StatusAt(s.now().UTC())
	if derived == ev.Status {
		return
	}
	if err := s.store.UpdateStatus(ctx, ev.ID, derived); err != nil {
		log.Printf("event: status refresh for %d failed: %v", ev.ID, err)
	}
	ev.Status = derived
}

// CheckConflicts answers an explicit availability probe without
// mutating anything.  An empty end string selects point mode.
func (s *Service) CheckConflicts(ctx context.Context, startStr, endStr, tz string, excludeEventID uint64) ([]model.Event, error) {
	return s.conflicts.FindConflictsRaw(ctx, startStr, endStr, tz, excludeEventID)
}

// SendReminders dispatches a start reminder to the recipients of every
// published event starting within horizon.  The message layer dedupes
// on (event, kind, recipient), so repeated sweeps over the same window
// do not produce duplicate notices.  Returns the number of events
// processed.
func (s *Service) SendReminders(ctx context.Context, horizon time.Duration) (int, error) {
	now := s.now().UTC()
	events, err := s.store.ListUpcoming(ctx, now, now.Add(horizon))
	if err != nil {
		return 0, fmt.Errorf("list upcoming events: %w", err)
	}
	for i := range events {
		ev := &events[i]
		s.dispatchToEvent(ctx, ev, notify.ReminderPayload{EventTitle: ev.Title, StartsAt: ev.StartsAt}, 0)
	}
	return len(events), nil
}

// fanOutRecurrence persists the sibling events of a recurring creation.
// Each sibling gets its own conflict check; conflicting or failing
// siblings are logged and skipped, never aborting the whole creation.
func (s *Service) fanOutRecurrence(ctx context.Context, first *model.Event, in CreateInput) []*model.Event {
	loc, err := time.LoadLocation(first.Timezone)
	if err != nil {
		log.Printf("event: recurrence fan-out for %d skipped: %v", first.ID, err)
		return nil
	}
	var siblings []*model.Event
	for i := 1; i < in.Recurrence.Count; i++ {
		start, end := shiftWindow(first.StartsAt, first.EndsAt, loc, in.Recurrence.Frequency, i)
		if !in.SkipConflictCheck {
			w, werr := timewindow.New(start, end)
			if werr != nil {
				log.Printf("event: recurrence occurrence %d of %d invalid: %v", i+1, first.ID, werr)
				continue
			}
			found, cerr := s.conflicts.FindConflicts(ctx, w, 0)
			if cerr != nil {
				log.Printf("event: recurrence occurrence %d of %d conflict check failed: %v", i+1, first.ID, cerr)
				continue
			}
			if len(found) > 0 {
				log.Printf("event: recurrence occurrence %d of %d skipped, window conflicts with %d event(s)", i+1, first.ID, len(found))
				continue
			}
		}
		sib := cloneEvent(first)
		sib.ID = 0
		sib.StartsAt, sib.EndsAt = start, end
		sib.Recurrence = nil
		for r := range sib.Roles {
			sib.Roles[r].ID = 0
			sib.Roles[r].EventID = 0
			sib.Roles[r].CurrentCount = 0
		}
		if sib.Published {
			sib.PublicSlug = newSlug(sib.Title)
		}
		sib.Status = sib.StatusAt(s.now().UTC())
		if err := s.store.Create(ctx, sib); err != nil {
			log.Printf("event: recurrence occurrence %d of %d failed to persist: %v", i+1, first.ID, err)
			continue
		}
		s.syncProgramRefs(ctx, sib.ID, nil, sib.ProgramIDs)
		siblings = append(siblings, sib)
	}
	return siblings
}

func (s *Service) validatePrograms(ctx context.Context, programIDs []uint64) error {
	if s.programs == nil {
		return nil
	}
	for _, id := range programIDs {
		ok, err := s.programs.Exists(ctx, id)
		if err != nil {
			return fmt.Errorf("check program %d: %w", id, err)
		}
		if !ok {
			return &ValidationError{Message: fmt.Sprintf("unknown program %d", id), Fields: []string{"program_ids"}}
		}
	}
	return nil
}

// validateCoOrganizers dedupes the list, drops the primary organizer
// and verifies each remaining user is active.
func (s *Service) validateCoOrganizers(ctx context.Context, ids []uint64, organizerID uint64) ([]uint64, error) {
	seen := make(map[uint64]bool, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == organizerID || seen[id] {
			continue
		}
		seen[id] = true
		if s.users != nil {
			active, err := s.users.IsActive(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("check co-organizer %d: %w", id, err)
			}
			if !active {
				return nil, &ValidationError{Message: fmt.Sprintf("co-organizer %d is not an active user", id), Fields: []string{"co_organizer_ids"}}
			}
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *Service) syncProgramRefs(ctx context.Context, eventID uint64, removed, added []uint64) {
	if s.programs == nil {
		return
	}
	for _, id := range removed {
		if err := s.programs.RemoveEventRef(ctx, id, eventID); err != nil {
			log.Printf("event: remove program ref %d->%d failed: %v", id, eventID, err)
		}
	}
	for _, id := range added {
		if err := s.programs.AddEventRef(ctx, id, eventID); err != nil {
			log.Printf("event: add program ref %d->%d failed: %v", id, eventID, err)
		}
	}
}

func (s *Service) invalidateAfterWrite(ctx context.Context, eventID uint64) {
	if s.cache == nil {
		return
	}
	if eventID != 0 {
		s.cache.InvalidateEvent(ctx, eventID)
	}
	s.cache.BumpListingVersion(ctx)
	s.cache.InvalidateAnalytics(ctx)
}

func (s *Service) dispatchToEvent(ctx context.Context, ev *model.Event, payload notify.Payload, actorID uint64) notify.Summary {
	if s.notifier == nil || s.recipients == nil {
		return notify.Summary{Success: true}
	}
	rcpts, err := s.recipients.EventRecipients(ctx, ev)
	if err != nil {
		log.Printf("event: resolve recipients for %d failed: %v", ev.ID, err)
		return notify.Summary{}
	}
	sum := s.notifier.Dispatch(ctx, ev, payload, rcpts, actorID)
	if !sum.Success {
		log.Printf("event: notification dispatch for %d incomplete: %d message(s) created", ev.ID, sum.MessagesCreated)
	}
	return sum
}

func (s *Service) dispatchToOrganizers(ctx context.Context, ev *model.Event, payload notify.Payload, actorID uint64) {
	if s.notifier == nil || s.recipients == nil {
		return
	}
	ids := append([]uint64{ev.OrganizerID}, ev.CoOrganizerIDs...)
	rcpts, err := s.recipients.UserRecipients(ctx, ids)
	if err != nil {
		log.Printf("event: resolve organizers for %d failed: %v", ev.ID, err)
		return
	}
	s.notifier.Dispatch(ctx, ev, payload, rcpts, actorID)
}

func validateCreateInput(in CreateInput) error {
	var fields []string
	if strings.TrimSpace(in.Title) == "" {
		fields = append(fields, "title")
	}
	if !validFormat(in.Format) {
		fields = append(fields, "format")
	}
	if in.StartsAt == "" {
		fields = append(fields, "starts_at")
	}
	if in.Timezone == "" {
		fields = append(fields, "timezone")
	}
	if len(fields) > 0 {
		return &ValidationError{Message: "missing or invalid fields", Fields: fields}
	}
	names := make(map[string]bool, len(in.Roles))
	for _, r := range in.Roles {
		if strings.TrimSpace(r.Name) == "" {
			return &ValidationError{Message: "role name is required", Fields: []string{"roles"}}
		}
		if names[r.Name] {
			return &ValidationError{Message: fmt.Sprintf("duplicate role name %q", r.Name), Fields: []string{"roles"}}
		}
		names[r.Name] = true
		if r.Capacity == 0 {
			return &ValidationError{Message: fmt.Sprintf("role %q needs a capacity of at least 1", r.Name), Fields: []string{"roles"}}
		}
		if r.PriceCents > maxPriceCents {
			return &ValidationError{Message: fmt.Sprintf("role %q price is out of range", r.Name), Fields: []string{"roles"}}
		}
	}
	if rec := in.Recurrence; rec != nil {
		switch rec.Frequency {
		case model.FreqDaily, model.FreqWeekly, model.FreqMonthly:
		default:
			return &ValidationError{Message: "unknown recurrence frequency", Fields: []string{"recurrence"}}
		}
		if rec.Count < 1 || rec.Count > maxRecurrenceCount {
			return &ValidationError{Message: fmt.Sprintf("recurrence count must be between 1 and %d", maxRecurrenceCount), Fields: []string{"recurrence"}}
		}
	}
	return nil
}

// parseWindow maps parse failures to the client-facing error types:
// timezone problems keep their sentinel, everything else becomes a
// validation error on the time fields.
func parseWindow(startStr, endStr, tz string) (timewindow.Window, error) {
	w, err := timewindow.Parse(startStr, endStr, tz)
	if err == nil {
		return w, nil
	}
	if errors.Is(err, timewindow.ErrInvalidTimezone) {
		return timewindow.Window{}, err
	}
	return timewindow.Window{}, &ValidationError{Message: err.Error(), Fields: []string{"starts_at", "ends_at"}}
}

// applyRoleUpdates rewrites the event's role list in place.  Existing
// roles keep their IDs and counters; capacity may not drop below the
// current registration count, and a role can only be removed while
// empty.
func applyRoleUpdates(ev *model.Event, updates []RoleUpdate) error {
	kept := make(map[uint64]bool, len(updates))
	next := make([]model.Role, 0, len(updates))
	for _, u := range updates {
		if strings.TrimSpace(u.Name) == "" {
			return &ValidationError{Message: "role name is required", Fields: []string{"roles"}}
		}
		if u.Capacity == 0 {
			return &ValidationError{Message: fmt.Sprintf("role %q needs a capacity of at least 1", u.Name), Fields: []string{"roles"}}
		}
		if u.PriceCents > maxPriceCents {
			return &ValidationError{Message: fmt.Sprintf("role %q price is out of range", u.Name), Fields: []string{"roles"}}
		}
		if u.ID == 0 {
			next = append(next, model.Role{
				EventID:     ev.ID,
				Name:        u.Name,
				Description: u.Description,
				Capacity:    u.Capacity,
				PriceCents:  u.PriceCents,
			})
			continue
		}
		existing := ev.RoleByID(u.ID)
		if existing == nil {
			return &ValidationError{Message: fmt.Sprintf("unknown role %d", u.ID), Fields: []string{"roles"}}
		}
		if u.Capacity < existing.CurrentCount {
			return &ValidationError{
				Message: fmt.Sprintf("role %q capacity %d is below its %d active registrations", u.Name, u.Capacity, existing.CurrentCount),
				Fields:  []string{"roles"},
			}
		}
		kept[u.ID] = true
		role := *existing
		role.Name = u.Name
		role.Description = u.Description
		role.Capacity = u.Capacity
		role.PriceCents = u.PriceCents
		next = append(next, role)
	}
	for i := range ev.Roles {
		r := &ev.Roles[i]
		if !kept[r.ID] && r.CurrentCount > 0 {
			return &ValidationError{
				Message: fmt.Sprintf("role %q still has %d active registrations and cannot be removed", r.Name, r.CurrentCount),
				Fields:  []string{"roles"},
			}
		}
	}
	ev.Roles = next
	return nil
}

// shiftWindow advances the window by n recurrence steps, preserving the
// wall-clock time in the event's zone across DST changes.
func shiftWindow(start, end time.Time, loc *time.Location, freq string, n int) (time.Time, time.Time) {
	s, e := start.In(loc), end.In(loc)
	switch freq {
	case model.FreqDaily:
		s, e = s.AddDate(0, 0, n), e.AddDate(0, 0, n)
	case model.FreqWeekly:
		s, e = s.AddDate(0, 0, 7*n), e.AddDate(0, 0, 7*n)
	case model.FreqMonthly:
		s, e = s.AddDate(0, n, 0), e.AddDate(0, n, 0)
	}
	return s.UTC(), e.UTC()
}

func cloneEvent(ev *model.Event) *model.Event {
	cp := *ev
	cp.CoOrganizerIDs = append([]uint64(nil), ev.CoOrganizerIDs...)
	cp.ProgramIDs = append([]uint64(nil), ev.ProgramIDs...)
	cp.Roles = append([]model.Role(nil), ev.Roles...)
	return &cp
}

func rolesFromInput(in []RoleInput) []model.Role {
	out := make([]model.Role, 0, len(in))
	for _, r := range in {
		out = append(out, model.Role{
			Name:        strings.TrimSpace(r.Name),
			Description: r.Description,
			Capacity:    r.Capacity,
			PriceCents:  r.PriceCents,
		})
	}
	return out
}

func validFormat(f string) bool {
	switch f {
	case model.FormatInPerson, model.FormatOnline, model.FormatHybrid:
		return true
	}
	return false
}

func diffIDs(oldIDs, newIDs []uint64) (added, removed []uint64) {
	oldSet := make(map[uint64]bool, len(oldIDs))
	for _, id := range oldIDs {
		oldSet[id] = true
	}
	newSet := make(map[uint64]bool, len(newIDs))
	for _, id := range newIDs {
		if newSet[id] {
			continue
		}
		newSet[id] = true
		if !oldSet[id] {
			added = append(added, id)
		}
	}
	for _, id := range oldIDs {
		if !newSet[id] {
			removed = append(removed, id)
		}
	}
	return added, removed
}

func sameIDs(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// newSlug derives a public slug from the title plus a short random
// suffix so two events with the same title get distinct URLs.
func newSlug(title string) string {
	var b strings.Builder
	prevDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	base := strings.Trim(b.String(), "-")
	if base == "" {
		base = "event"
	}
	return base + "-" + uuid.NewString()[:8]
}
