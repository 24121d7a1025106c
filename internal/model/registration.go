package model

import "time"

// Registration status values.  Registrations are never hard-deleted;
// cancelling flips the status and decrements the role counter so the
// audit trail survives.
const (
	RegistrationActive    = "ACTIVE"
	RegistrationCancelled = "CANCELLED"
)

// Registration records a subject's claim on one role slot of one event.
// SubjectID identifies either an authenticated user (decimal user ID) or
// a guest (opaque guest token); the registration service treats both
// uniformly.  RoleName and RoleDescription are denormalized snapshots
// taken at registration time and serve as a read-time fallback if the
// role is later renamed or removed.
//
// At most one ACTIVE registration may exist per
// (EventID, RoleID, SubjectID).
type Registration struct {
	ID              uint64    // registrations.id
	EventID         uint64    // registrations.event_id
	RoleID          uint64    // registrations.role_id
	SubjectID       string    // registrations.subject_id
	Status          string    // registrations.status
	RoleName        string    // registrations.role_name (snapshot)
	RoleDescription string    // registrations.role_description (snapshot)
	AssignedBy      uint64    // registrations.assigned_by (0 for self-service signups)
	CreatedAt       time.Time // registrations.created_at
	UpdatedAt       time.Time // registrations.updated_at
}
