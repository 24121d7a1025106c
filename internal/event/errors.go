package event

import (
	"errors"
	"fmt"
	"strings"

	"github.com/planora/event-scheduler/internal/model"
)

// Sentinel errors returned by the lifecycle service.
var (
	ErrNotFound  = errors.New("event not found")
	ErrForbidden = errors.New("not allowed to modify this event")
)

// ValidationError reports malformed or missing input.  Fields lists the
// offending field names when known; it is surfaced to clients alongside
// the message.
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(e.Fields, ", "))
}

// ConflictError reports that the candidate window overlaps existing
// events.  The conflicting events ride along so the client can show
// them.
type ConflictError struct {
	Conflicts []model.Event
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("time window overlaps %d existing event(s)", len(e.Conflicts))
}
