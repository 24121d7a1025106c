// Package registration implements the capacity ledger: every mutation
// of a role's occupancy happens here, inside a keyed lock, so two
// concurrent signups can never both observe a free slot and both take
// it.
package registration

import "errors"

// Sentinel errors returned by the service.  Handlers translate them
// into machine-checkable codes; none of them are retried automatically.
var (
	ErrEventNotFound     = errors.New("event not found")
	ErrRoleNotFound      = errors.New("role not found")
	ErrRoleFull          = errors.New("role is at capacity")
	ErrEventNotOpen      = errors.New("event is not open for signup")
	ErrAlreadyRegistered = errors.New("subject already registered for this role")
	ErrNotRegistered     = errors.New("subject has no active registration for this role")
	ErrMaxRolesPerEvent  = errors.New("subject reached the per-event role limit")
	ErrSubjectInactive   = errors.New("target user is not active")
)
