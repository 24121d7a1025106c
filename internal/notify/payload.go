package notify

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ChangeKind tags the logical change a dispatch announces.  It is part
// of the dedupe key, so two dispatches for the same kind of change on
// the same event collapse into one durable message per recipient.
type ChangeKind string

const (
	KindEventCreated     ChangeKind = "event.created"
	KindEventUpdated     ChangeKind = "event.updated"
	KindEventCancelled   ChangeKind = "event.cancelled"
	KindEventUnpublished ChangeKind = "event.unpublished"
	KindRoleChanged      ChangeKind = "role.changed"
	KindReminder         ChangeKind = "event.reminder"
)

// Payload is the content of one dispatch.  Each change kind has its own
// concrete type with its own required fields, checked by Validate, so a
// malformed payload fails construction rather than rendering an empty
// notice at send time.
type Payload interface {
	Kind() ChangeKind
	Subject() string
	Body() string
	Validate() error
}

// EventCreatedPayload announces a brand new event.
type EventCreatedPayload struct {
	EventTitle string
	StartsAt   time.Time
}

func (p EventCreatedPayload) Kind() ChangeKind { return KindEventCreated }
func (p EventCreatedPayload) Subject() string  { return fmt.Sprintf("New event: %s", p.EventTitle) }
func (p EventCreatedPayload) Body() string {
	return fmt.Sprintf("%s has been scheduled for %s.", p.EventTitle, p.StartsAt.UTC().Format(time.RFC3339))
}
func (p EventCreatedPayload) Validate() error {
	if p.EventTitle == "" {
		return errors.New("event created payload: missing event title")
	}
	if p.StartsAt.IsZero() {
		return errors.New("event created payload: missing start time")
	}
	return nil
}

// EventUpdatedPayload announces changed fields of an existing event.
type EventUpdatedPayload struct {
	EventTitle    string
	ChangedFields []string
}

func (p EventUpdatedPayload) Kind() ChangeKind { return KindEventUpdated }
func (p EventUpdatedPayload) Subject() string  { return fmt.Sprintf("Event updated: %s", p.EventTitle) }
func (p EventUpdatedPayload) Body() string {
	return fmt.Sprintf("%s has been updated (changed: %s).", p.EventTitle, strings.Join(p.ChangedFields, ", "))
}
func (p EventUpdatedPayload) Validate() error {
	if p.EventTitle == "" {
		return errors.New("event updated payload: missing event title")
	}
	if len(p.ChangedFields) == 0 {
		return errors.New("event updated payload: no changed fields")
	}
	return nil
}

// EventCancelledPayload announces a cancellation.
type EventCancelledPayload struct {
	EventTitle string
	Reason     string
}

func (p EventCancelledPayload) Kind() ChangeKind { return KindEventCancelled }
func (p EventCancelledPayload) Subject() string {
	return fmt.Sprintf("Event cancelled: %s", p.EventTitle)
}
func (p EventCancelledPayload) Body() string {
	if p.Reason == "" {
		return fmt.Sprintf("%s has been cancelled.", p.EventTitle)
	}
	return fmt.Sprintf("%s has been cancelled: %s", p.EventTitle, p.Reason)
}
func (p EventCancelledPayload) Validate() error {
	if p.EventTitle == "" {
		return errors.New("event cancelled payload: missing event title")
	}
	return nil
}

// EventUnpublishedPayload tells organizers their event dropped off the
// public listing and which fields need fixing.
type EventUnpublishedPayload struct {
	EventTitle    string
	MissingFields []string
}

func (p EventUnpublishedPayload) Kind() ChangeKind { return KindEventUnpublished }
func (p EventUnpublishedPayload) Subject() string {
	return fmt.Sprintf("Event unpublished: %s", p.EventTitle)
}
func (p EventUnpublishedPayload) Body() string {
	return fmt.Sprintf("%s was automatically unpublished; missing fields: %s.", p.EventTitle, strings.Join(p.MissingFields, ", "))
}
func (p EventUnpublishedPayload) Validate() error {
	if p.EventTitle == "" {
		return errors.New("event unpublished payload: missing event title")
	}
	if len(p.MissingFields) == 0 {
		return errors.New("event unpublished payload: no missing fields")
	}
	return nil
}

// RoleChangedPayload announces an assignment, move or removal on a
// role.
type RoleChangedPayload struct {
	EventTitle string
	RoleName   string
	Action     string // "assigned", "moved", "removed"
}

func (p RoleChangedPayload) Kind() ChangeKind { return KindRoleChanged }
func (p RoleChangedPayload) Subject() string {
	return fmt.Sprintf("Role update for %s", p.EventTitle)
}
func (p RoleChangedPayload) Body() string {
	return fmt.Sprintf("Your role %q on %s has been %s.", p.RoleName, p.EventTitle, p.Action)
}
func (p RoleChangedPayload) Validate() error {
	if p.EventTitle == "" || p.RoleName == "" || p.Action == "" {
		return errors.New("role changed payload: event title, role name and action are required")
	}
	return nil
}

// ReminderPayload announces an upcoming start.
type ReminderPayload struct {
	EventTitle string
	StartsAt   time.Time
}

func (p ReminderPayload) Kind() ChangeKind { return KindReminder }
func (p ReminderPayload) Subject() string  { return fmt.Sprintf("Reminder: %s", p.EventTitle) }
func (p ReminderPayload) Body() string {
	return fmt.Sprintf("%s starts at %s.", p.EventTitle, p.StartsAt.UTC().Format(time.RFC3339))
}
func (p ReminderPayload) Validate() error {
	if p.EventTitle == "" {
		return errors.New("reminder payload: missing event title")
	}
	if p.StartsAt.IsZero() {
		return errors.New("reminder payload: missing start time")
	}
	return nil
}
