// Package conflict applies interval-overlap logic to candidate event
// windows against the shared calendar.
package conflict

import (
	"context"
	"fmt"
	"time"

	"github.com/planora/event-scheduler/internal/model"
	"github.com/planora/event-scheduler/internal/timewindow"
)

// EventSource lists stored events whose windows may overlap the probe
// interval.  Implementations may prefilter (the MySQL repository pushes
// the coarse predicate into SQL); the detector always re-applies the
// strict overlap test in Go, so returning a superset is fine.
// Cancelled events must not be returned: a cancelled event blocks
// nothing.
type EventSource interface {
	ListOverlapping(ctx context.Context, start, end time.Time, excludeEventID uint64) ([]model.Event, error)
}

// Detector finds scheduling conflicts for candidate windows.
type Detector struct {
	events EventSource
}

// NewDetector returns a Detector reading from the given source.
func NewDetector(events EventSource) *Detector {
	return &Detector{events: events}
}

// FindConflicts returns every stored event whose window strictly
// overlaps w, excluding excludeEventID (pass 0 to exclude nothing; used
// when editing an event against itself).
func (d *Detector) FindConflicts(ctx context.Context, w timewindow.Window, excludeEventID uint64) ([]model.Event, error) {
	stored, err := d.events.ListOverlapping(ctx, w.Start, w.End, excludeEventID)
	if err != nil {
		return nil, fmt.Errorf("list overlapping events: %w", err)
	}
	conflicts := make([]model.Event, 0, len(stored))
	for _, ev := range stored {
		if ev.ID != 0 && ev.ID == excludeEventID {
			continue
		}
		if ev.Status == model.StatusCancelled {
			continue
		}
		other, err := timewindow.New(ev.StartsAt, ev.EndsAt)
		if err != nil {
			// A stored zero-length window would otherwise never match
			// anything; treat it as a point the same way candidates are.
			other = timewindow.At(ev.StartsAt)
		}
		if w.Overlaps(other) {
			conflicts = append(conflicts, ev)
		}
	}
	return conflicts, nil
}

// FindConflictsRaw parses the candidate window from wall-clock strings
// in the named IANA zone and delegates to FindConflicts.  An empty end
// string selects point mode.  Timezone errors are surfaced as
// timewindow.ErrInvalidTimezone.
func (d *Detector) FindConflictsRaw(ctx context.Context, startStr, endStr, tz string, excludeEventID uint64) ([]model.Event, error) {
	w, err := timewindow.Parse(startStr, endStr, tz)
	if err != nil {
		return nil, err
	}
	return d.FindConflicts(ctx, w, excludeEventID)
}
