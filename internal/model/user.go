package model

import "time"

// User role values stored in the JWT "role" claim.  ADMIN carries the
// elevated override permission used to edit events the caller does not
// organize.
const (
	RoleAttendee  = "ATTENDEE"
	RoleOrganizer = "ORGANIZER"
	RoleAdmin     = "ADMIN"
)

// User represents an application user record as stored in the `users`
// table.  The json tags are omitted because these structs are used by
// the repository layer; handlers define separate response types.
// Inactive users cannot be placed into event roles by the privileged
// assignment path.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	DisplayName  string    // users.display_name
	PasswordHash string    // users.password_hash
	Role         string    // users.role (ATTENDEE, ORGANIZER, ADMIN)
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}
