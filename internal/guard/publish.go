// Package guard re-validates publish-required fields after event
// updates and demotes the publish flag when the invariants broke.
package guard

import (
	"time"

	"github.com/planora/event-scheduler/internal/model"
)

// Result reports what CheckAndApply decided.  MissingFields is
// non-empty whenever the event currently fails the publish
// requirements, even if it was not published (callers use it to reject
// an explicit publish attempt with a useful field list).
type Result struct {
	AutoUnpublished bool
	MissingFields   []string
}

// MissingPublishFields returns the publish-required fields the event
// lacks.  The required set depends on the format: in-person events need
// a location, online events a meeting link, hybrid events both.
func MissingPublishFields(ev *model.Event) []string {
	var missing []string
	if ev.Title == "" {
		missing = append(missing, "title")
	}
	if ev.StartsAt.IsZero() {
		missing = append(missing, "starts_at")
	}
	if ev.EndsAt.IsZero() || !ev.EndsAt.After(ev.StartsAt) {
		missing = append(missing, "ends_at")
	}
	if ev.Timezone == "" {
		missing = append(missing, "timezone")
	} else if _, err := time.LoadLocation(ev.Timezone); err != nil {
		missing = append(missing, "timezone")
	}
	switch ev.Format {
	case model.FormatInPerson:
		if ev.Location == "" {
			missing = append(missing, "location")
		}
	case model.FormatOnline:
		if ev.MeetingLink == "" {
			missing = append(missing, "meeting_link")
		}
	case model.FormatHybrid:
		if ev.Location == "" {
			missing = append(missing, "location")
		}
		if ev.MeetingLink == "" {
			missing = append(missing, "meeting_link")
		}
	default:
		missing = append(missing, "format")
	}
	if len(ev.Roles) == 0 {
		missing = append(missing, "roles")
	}
	return missing
}

// CheckAndApply runs the post-update publish check.  When the event is
// published but no longer satisfies the required set, the publish flag
// is flipped off in place; the public slug is deliberately retained so
// re-publishing later reuses the same public URL.  The caller persists
// the change inside the same commit window as the update itself.
func CheckAndApply(ev *model.Event) Result {
	missing := MissingPublishFields(ev)
	if len(missing) == 0 {
		return Result{}
	}
	res := Result{MissingFields: missing}
	if ev.Published {
		ev.Published = false
		res.AutoUnpublished = true
	}
	return res
}
