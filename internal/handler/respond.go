package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/planora/event-scheduler/internal/event"
	"github.com/planora/event-scheduler/internal/lock"
	"github.com/planora/event-scheduler/internal/model"
	"github.com/planora/event-scheduler/internal/registration"
	"github.com/planora/event-scheduler/internal/repository"
	"github.com/planora/event-scheduler/internal/timewindow"
)

// envelope is the uniform response shape.  Success responses carry the
// payload under data; failures carry a human message plus a stable
// machine-checkable code so clients never have to parse message text.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func ok(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, envelope{Success: true, Data: data})
}

func okMsg(c echo.Context, status int, msg string, data interface{}) error {
	return c.JSON(status, envelope{Success: true, Message: msg, Data: data})
}

func failWith(c echo.Context, status int, code, msg string, data interface{}) error {
	return c.JSON(status, envelope{Success: false, Message: msg, Code: code, Data: data})
}

// fail translates service errors into envelope responses.  Unknown
// errors become opaque 500s so internals never leak to clients.
func fail(c echo.Context, err error) error {
	var vErr *event.ValidationError
	if errors.As(err, &vErr) {
		var data interface{}
		if len(vErr.Fields) > 0 {
			data = echo.Map{"fields": vErr.Fields}
		}
		return failWith(c, http.StatusBadRequest, "ValidationError", vErr.Message, data)
	}
	var cErr *event.ConflictError
	if errors.As(err, &cErr) {
		return failWith(c, http.StatusConflict, "ConflictError", "event window overlaps existing events",
			echo.Map{"conflicts": eventViews(cErr.Conflicts)})
	}
	if errors.Is(err, timewindow.ErrInvalidTimezone) {
		return failWith(c, http.StatusBadRequest, "InvalidTimezone", "unknown IANA timezone", nil)
	}

	switch {
	case errors.Is(err, event.ErrForbidden):
		return failWith(c, http.StatusForbidden, "Forbidden", "not allowed to manage this event", nil)
	case errors.Is(err, event.ErrNotFound),
		errors.Is(err, registration.ErrEventNotFound),
		errors.Is(err, registration.ErrRoleNotFound),
		errors.Is(err, repository.ErrProgramNotFound):
		return failWith(c, http.StatusNotFound, "NotFound", err.Error(), nil)
	case errors.Is(err, registration.ErrRoleFull):
		return failWith(c, http.StatusConflict, "RoleFull", err.Error(), nil)
	case errors.Is(err, registration.ErrAlreadyRegistered):
		return failWith(c, http.StatusConflict, "AlreadyRegistered", err.Error(), nil)
	case errors.Is(err, registration.ErrMaxRolesPerEvent):
		return failWith(c, http.StatusConflict, "MaxRolesReached", err.Error(), nil)
	case errors.Is(err, registration.ErrEventNotOpen):
		return failWith(c, http.StatusConflict, "EventNotOpen", err.Error(), nil)
	case errors.Is(err, registration.ErrNotRegistered):
		return failWith(c, http.StatusConflict, "NotRegistered", err.Error(), nil)
	case errors.Is(err, registration.ErrSubjectInactive):
		return failWith(c, http.StatusBadRequest, "SubjectInactive", err.Error(), nil)
	case errors.Is(err, lock.ErrBusy):
		c.Response().Header().Set("Retry-After", "1")
		return failWith(c, http.StatusServiceUnavailable, "Busy", "resource is busy, retry shortly", nil)
	case errors.Is(err, sql.ErrNoRows):
		return failWith(c, http.StatusNotFound, "NotFound", "not found", nil)
	}

	c.Logger().Errorf("unhandled error: %v", err)
	return failWith(c, http.StatusInternalServerError, "Internal", "internal error", nil)
}

// actorFrom reads the identity JWTAuth stored on the context.
func actorFrom(c echo.Context) event.Actor {
	uid, _ := c.Get("user_id").(uint64)
	role, _ := c.Get("role").(string)
	return event.Actor{ID: uid, Role: role}
}

// ----- view types -----
//
// Model structs carry no json tags; views decide the wire shape.

type roleView struct {
	ID           uint64 `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Capacity     uint32 `json:"capacity"`
	CurrentCount uint32 `json:"current_count"`
	PriceCents   uint32 `json:"price_cents"`
}

type eventView struct {
	ID             uint64     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Format         string     `json:"format"`
	Location       string     `json:"location,omitempty"`
	MeetingLink    string     `json:"meeting_link,omitempty"`
	StartsAt       time.Time  `json:"starts_at"`
	EndsAt         time.Time  `json:"ends_at"`
	Timezone       string     `json:"timezone"`
	Status         string     `json:"status"`
	Published      bool       `json:"published"`
	PublicSlug     string     `json:"public_slug,omitempty"`
	OrganizerID    uint64     `json:"organizer_id"`
	CoOrganizerIDs []uint64   `json:"co_organizer_ids,omitempty"`
	ProgramIDs     []uint64   `json:"program_ids,omitempty"`
	Roles          []roleView `json:"roles,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func newEventView(ev *model.Event) eventView {
	roles := make([]roleView, 0, len(ev.Roles))
	for _, r := range ev.Roles {
		roles = append(roles, roleView{
			ID:           r.ID,
			Name:         r.Name,
			Description:  r.Description,
			Capacity:     r.Capacity,
			CurrentCount: r.CurrentCount,
			PriceCents:   r.PriceCents,
		})
	}
	return eventView{
		ID:             ev.ID,
		Title:          ev.Title,
		Description:    ev.Description,
		Format:         ev.Format,
		Location:       ev.Location,
		MeetingLink:    ev.MeetingLink,
		StartsAt:       ev.StartsAt,
		EndsAt:         ev.EndsAt,
		Timezone:       ev.Timezone,
		Status:         ev.Status,
		Published:      ev.Published,
		PublicSlug:     ev.PublicSlug,
		OrganizerID:    ev.OrganizerID,
		CoOrganizerIDs: ev.CoOrganizerIDs,
		ProgramIDs:     ev.ProgramIDs,
		Roles:          roles,
		CreatedAt:      ev.CreatedAt,
		UpdatedAt:      ev.UpdatedAt,
	}
}

func eventViews(evs []model.Event) []eventView {
	out := make([]eventView, 0, len(evs))
	for i := range evs {
		out = append(out, newEventView(&evs[i]))
	}
	return out
}

type registrationView struct {
	ID              uint64    `json:"id"`
	EventID         uint64    `json:"event_id"`
	RoleID          uint64    `json:"role_id"`
	SubjectID       string    `json:"subject_id"`
	Status          string    `json:"status"`
	RoleName        string    `json:"role_name"`
	RoleDescription string    `json:"role_description,omitempty"`
	AssignedBy      uint64    `json:"assigned_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func newRegistrationView(reg *model.Registration) registrationView {
	return registrationView{
		ID:              reg.ID,
		EventID:         reg.EventID,
		RoleID:          reg.RoleID,
		SubjectID:       reg.SubjectID,
		Status:          reg.Status,
		RoleName:        reg.RoleName,
		RoleDescription: reg.RoleDescription,
		AssignedBy:      reg.AssignedBy,
		CreatedAt:       reg.CreatedAt,
	}
}

func registrationViews(regs []model.Registration) []registrationView {
	out := make([]registrationView, 0, len(regs))
	for i := range regs {
		out = append(out, newRegistrationView(&regs[i]))
	}
	return out
}
