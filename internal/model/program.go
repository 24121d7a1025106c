package model

import "time"

// Program is a label grouping related events (a lecture series, a
// mentorship track and so on).  The link between programs and events is
// bidirectional: events carry a program-label set and each program keeps
// the list of its event IDs in the `program_events` join table.
type Program struct {
	ID        uint64    // programs.id
	Name      string    // programs.name
	IsActive  bool      // programs.is_active
	CreatedAt time.Time // programs.created_at
}
