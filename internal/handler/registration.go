package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/planora/event-scheduler/internal/event"
	"github.com/planora/event-scheduler/internal/model"
	"github.com/planora/event-scheduler/internal/registration"
	"github.com/planora/event-scheduler/internal/repository"
)

// RegistrationHandler exposes role signup, cancellation, moves and the
// privileged assignment path.  All occupancy mutations go through the
// service so they run under the role lock.
type RegistrationHandler struct {
	Svc    *registration.Service
	Regs   *repository.RegistrationRepo
	Events *repository.EventRepo
}

func NewRegistrationHandler(svc *registration.Service, regs *repository.RegistrationRepo, events *repository.EventRepo) *RegistrationHandler {
	return &RegistrationHandler{Svc: svc, Regs: regs, Events: events}
}

// SignUp handles POST /v1/events/:id/roles/:role_id/signup for
// authenticated users.
func (h *RegistrationHandler) SignUp(c echo.Context) error {
	eventID, roleID, err := eventRoleIDs(c)
	if err != nil {
		return failWith(c, http.StatusBadRequest, "ValidationError", "invalid event or role id", nil)
	}
	actor := actorFrom(c)
	reg, err := h.Svc.SignUp(c.Request().Context(), eventID, roleID, registration.SubjectForUser(actor.ID))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, newRegistrationView(reg))
}

type guestSignupReq struct {
	GuestToken string `json:"guest_token"`
}

// GuestSignUp handles POST /v1/public/events/:id/roles/:role_id/signup.
// Guests present an opaque token of their own; the same token cancels
// or moves the registration later.
func (h *RegistrationHandler) GuestSignUp(c echo.Context) error {
	eventID, roleID, err := eventRoleIDs(c)
	if err != nil {
		return failWith(c, http.StatusBadRequest, "ValidationError", "invalid event or role id", nil)
	}
	var req guestSignupReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.GuestToken) == "" {
		return failWith(c, http.StatusBadRequest, "ValidationError", "guest_token is required", nil)
	}
	reg, err := h.Svc.SignUp(c.Request().Context(), eventID, roleID, registration.SubjectForGuest(strings.TrimSpace(req.GuestToken)))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, newRegistrationView(reg))
}

// Cancel handles DELETE /v1/events/:id/roles/:role_id/signup.
func (h *RegistrationHandler) Cancel(c echo.Context) error {
	eventID, roleID, err := eventRoleIDs(c)
	if err != nil {
		return failWith(c, http.StatusBadRequest, "ValidationError", "invalid event or role id", nil)
	}
	actor := actorFrom(c)
	if err := h.Svc.Cancel(c.Request().Context(), eventID, roleID, registration.SubjectForUser(actor.ID)); err != nil {
		return fail(c, err)
	}
	return okMsg(c, http.StatusOK, "registration cancelled", nil)
}

type assignReq struct {
	UserID uint64 `json:"user_id"`
}

// Assign handles POST /v1/events/:id/roles/:role_id/assign: an
// organizer or admin places a specific user into the role.  The event's
// open/closed status and the per-event role cap do not apply, capacity
// and uniqueness still do.
func (h *RegistrationHandler) Assign(c echo.Context) error {
	eventID, roleID, err := eventRoleIDs(c)
	if err != nil {
		return failWith(c, http.StatusBadRequest, "ValidationError", "invalid event or role id", nil)
	}
	var req assignReq
	if err := c.Bind(&req); err != nil || req.UserID == 0 {
		return failWith(c, http.StatusBadRequest, "ValidationError", "user_id is required", nil)
	}
	actor := actorFrom(c)
	if err := h.authorizeManage(c, eventID, actor); err != nil {
		return fail(c, err)
	}
	reg, err := h.Svc.AssignUser(c.Request().Context(), eventID, roleID, req.UserID, actor.ID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, newRegistrationView(reg))
}

type moveReq struct {
	FromRoleID uint64 `json:"from_role_id"`
	ToRoleID   uint64 `json:"to_role_id"`
}

// Move handles POST /v1/events/:id/move: the caller moves their own
// registration between two roles of the same event.
func (h *RegistrationHandler) Move(c echo.Context) error {
	eventID, err := pathID(c, "id")
	if err != nil {
		return failWith(c, http.StatusBadRequest, "ValidationError", "invalid event id", nil)
	}
	var req moveReq
	if err := c.Bind(&req); err != nil || req.FromRoleID == 0 || req.ToRoleID == 0 {
		return failWith(c, http.StatusBadRequest, "ValidationError", "from_role_id and to_role_id are required", nil)
	}
	actor := actorFrom(c)
	reg, err := h.Svc.MoveBetweenRoles(c.Request().Context(), eventID, registration.SubjectForUser(actor.ID), req.FromRoleID, req.ToRoleID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, newRegistrationView(reg))
}

// ListMine handles GET /v1/registrations/mine.
func (h *RegistrationHandler) ListMine(c echo.Context) error {
	actor := actorFrom(c)
	regs, err := h.Regs.ListBySubject(c.Request().Context(), registration.SubjectForUser(actor.ID))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"registrations": registrationViews(regs)})
}

// ListByEvent handles GET /v1/events/:id/registrations: the active
// roster, visible to the event's organizers and admins only.
func (h *RegistrationHandler) ListByEvent(c echo.Context) error {
	eventID, err := pathID(c, "id")
	if err != nil {
		return failWith(c, http.StatusBadRequest, "ValidationError", "invalid event id", nil)
	}
	actor := actorFrom(c)
	if err := h.authorizeManage(c, eventID, actor); err != nil {
		return fail(c, err)
	}
	regs, err := h.Regs.ListActiveByEvent(c.Request().Context(), eventID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"registrations": registrationViews(regs)})
}

// authorizeManage verifies the actor may manage the event's roster.
func (h *RegistrationHandler) authorizeManage(c echo.Context, eventID uint64, actor event.Actor) error {
	ev, err := h.Events.GetByID(c.Request().Context(), eventID)
	if err != nil {
		return err
	}
	if actor.Role != model.RoleAdmin && !ev.IsOrganizer(actor.ID) {
		return event.ErrForbidden
	}
	return nil
}

func eventRoleIDs(c echo.Context) (uint64, uint64, error) {
	eventID, err := pathID(c, "id")
	if err != nil {
		return 0, 0, err
	}
	roleID, err := pathID(c, "role_id")
	if err != nil {
		return 0, 0, err
	}
	return eventID, roleID, nil
}
