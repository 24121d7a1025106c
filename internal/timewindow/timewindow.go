// Package timewindow provides the timezone-aware start/end value type
// used by conflict detection.  All windows are normalized to absolute
// UTC instants so that events scheduled in different zones compare
// correctly, including multi-day events.
package timewindow

import (
	"errors"
	"fmt"
	"time"
)

// PointDuration is the synthetic duration given to a point-mode window.
// A candidate supplied without an explicit end is treated as the
// interval [start, start+PointDuration) so a same-instant booking still
// overlaps events that contain it.
const PointDuration = time.Minute

// ErrInvalidTimezone is returned when an IANA zone name cannot be
// loaded.  It is always surfaced to the caller, never defaulted away.
var ErrInvalidTimezone = errors.New("invalid timezone")

// ErrInvalidWindow is returned when an explicit end does not lie after
// the start.
var ErrInvalidWindow = errors.New("window end must be after start")

// Layouts accepted for wall-clock input.  RFC3339 strings carry their
// own offset and are used as-is; the others are interpreted in the
// supplied zone.
var wallLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// Window is a half-open interval [Start, End) of absolute UTC instants.
type Window struct {
	Start time.Time
	End   time.Time
}

// New builds a window from two absolute instants, normalizing to UTC.
func New(start, end time.Time) (Window, error) {
	if !end.After(start) {
		return Window{}, ErrInvalidWindow
	}
	return Window{Start: start.UTC(), End: end.UTC()}, nil
}

// At builds a point-mode window at the given instant.
func At(start time.Time) Window {
	s := start.UTC()
	return Window{Start: s, End: s.Add(PointDuration)}
}

// Parse interprets start and end strings in the named IANA zone and
// returns the corresponding window.  An empty end string selects point
// mode.  Strings in RFC3339 form keep their embedded offset; plain
// wall-clock strings ("2006-01-02 15:04[:05]") are placed in the zone.
func Parse(startStr, endStr, tz string) (Window, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
	}
	start, err := parseInstant(startStr, loc)
	if err != nil {
		return Window{}, fmt.Errorf("invalid start time %q: %w", startStr, err)
	}
	if endStr == "" {
		return At(start), nil
	}
	end, err := parseInstant(endStr, loc)
	if err != nil {
		return Window{}, fmt.Errorf("invalid end time %q: %w", endStr, err)
	}
	return New(start, end)
}

func parseInstant(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	var lastErr error
	for _, layout := range wallLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// Overlaps reports whether two windows strictly overlap:
// max(startA, startB) < min(endA, endB).  Touching boundaries do not
// overlap, identical windows always do.
func (w Window) Overlaps(o Window) bool {
	start := w.Start
	if o.Start.After(start) {
		start = o.Start
	}
	end := w.End
	if o.End.Before(end) {
		end = o.End
	}
	return start.Before(end)
}

// Contains reports whether the instant t lies inside the window.
func (w Window) Contains(t time.Time) bool {
	u := t.UTC()
	return !u.Before(w.Start) && u.Before(w.End)
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }
