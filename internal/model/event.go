package model

import "time"

// Event status values.  UPCOMING, ONGOING and COMPLETED are derived from
// the event's window and the current time; they are rewritten lazily on
// read when they have drifted.  CANCELLED is a terminal override set only
// by an explicit cancel action and never recomputed from time.  DRAFT is
// reported for events that have not been published yet.
const (
	StatusDraft     = "DRAFT"
	StatusUpcoming  = "UPCOMING"
	StatusOngoing   = "ONGOING"
	StatusCompleted = "COMPLETED"
	StatusCancelled = "CANCELLED"
)

// Event format values.  The format decides which publish-required field
// applies: IN_PERSON needs a location, ONLINE needs a meeting link and
// HYBRID needs both.
const (
	FormatInPerson = "IN_PERSON"
	FormatOnline   = "ONLINE"
	FormatHybrid   = "HYBRID"
)

// Recurrence frequency values, used only at creation to fan out sibling
// events.
const (
	FreqDaily   = "DAILY"
	FreqWeekly  = "WEEKLY"
	FreqMonthly = "MONTHLY"
)

// Event represents a scheduled event as stored in the `events` table,
// together with its roles, program references and co-organizers which
// live in side tables.  StartsAt and EndsAt are absolute UTC instants;
// Timezone records the IANA zone the organizer scheduled the event in so
// wall-clock times can be rendered back and status can be derived in the
// event's own zone.
//
// PublicSlug is assigned the first time the event is published and is
// never regenerated afterwards, so unpublishing and re-publishing keeps
// the same public URL.
type Event struct {
	ID             uint64      // events.id
	Title          string      // events.title
	Description    string      // events.description
	Format         string      // events.format (IN_PERSON, ONLINE, HYBRID)
	Location       string      // events.location (required to publish in-person/hybrid events)
	MeetingLink    string      // events.meeting_link (required to publish online/hybrid events)
	StartsAt       time.Time   // events.starts_at (UTC)
	EndsAt         time.Time   // events.ends_at (UTC)
	Timezone       string      // events.timezone (IANA name)
	Status         string      // events.status
	Published      bool        // events.published
	PublicSlug     string      // events.public_slug (immutable once set)
	OrganizerID    uint64      // events.organizer_id (primary organizer)
	CoOrganizerIDs []uint64    // event_organizers rows
	ProgramIDs     []uint64    // program_events rows
	Roles          []Role      // event_roles rows
	Recurrence     *Recurrence // creation-time fan-out descriptor, not persisted per sibling
	CreatedAt      time.Time   // events.created_at
	UpdatedAt      time.Time   // events.updated_at
}

// Role is a named capacity bucket within an event (e.g. "Speaker").
// CurrentCount tracks active registrations and must satisfy
// 0 <= CurrentCount <= Capacity at all times; it is only ever mutated
// inside the registration service's locked critical section.
type Role struct {
	ID           uint64 // event_roles.id
	EventID      uint64 // event_roles.event_id
	Name         string // event_roles.name
	Description  string // event_roles.description
	Capacity     uint32 // event_roles.capacity
	CurrentCount uint32 // event_roles.current_count
	PriceCents   uint32 // event_roles.price_cents (0 for free roles)
}

// Recurrence describes how many sibling events to create at creation
// time and how far apart their windows are.  Count is the number of
// occurrences including the first one.
type Recurrence struct {
	Frequency string // DAILY, WEEKLY or MONTHLY
	Count     int    // total occurrences, >= 1
}

// RoleByID returns the role with the given ID or nil when the event has
// no such role.
func (e *Event) RoleByID(roleID uint64) *Role {
	for i := range e.Roles {
		if e.Roles[i].ID == roleID {
			return &e.Roles[i]
		}
	}
	return nil
}

// IsOrganizer reports whether userID is the primary organizer or one of
// the co-organizers of the event.
func (e *Event) IsOrganizer(userID uint64) bool {
	if e.OrganizerID == userID {
		return true
	}
	for _, id := range e.CoOrganizerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// StatusAt derives the event status from its window and the given
// instant.  CANCELLED is sticky and never recomputed; unpublished
// events report DRAFT.  The comparison happens on absolute instants,
// so the stored UTC window already accounts for the event's zone.
func (e *Event) StatusAt(now time.Time) string {
	if e.Status == StatusCancelled {
		return StatusCancelled
	}
	if !e.Published {
		return StatusDraft
	}
	switch {
	case now.Before(e.StartsAt):
		return StatusUpcoming
	case now.Before(e.EndsAt):
		return StatusOngoing
	default:
		return StatusCompleted
	}
}

// AuditEntry records a terminal state change (currently cancellations)
// in the `event_audit_log` table.
type AuditEntry struct {
	ID        uint64    // event_audit_log.id
	EventID   uint64    // event_audit_log.event_id
	ActorID   uint64    // event_audit_log.actor_id
	Action    string    // event_audit_log.action
	Detail    string    // event_audit_log.detail
	CreatedAt time.Time // event_audit_log.created_at
}
