package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/planora/event-scheduler/internal/model"
	"github.com/planora/event-scheduler/internal/repository"
)

// ProgramHandler manages program labels and their event references.
type ProgramHandler struct {
	Programs  *repository.ProgramRepo
	EventRepo *repository.EventRepo
}

func NewProgramHandler(programs *repository.ProgramRepo, events *repository.EventRepo) *ProgramHandler {
	return &ProgramHandler{Programs: programs, EventRepo: events}
}

type createProgramReq struct {
	Name string `json:"name"`
}

type programView struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func newProgramView(p *model.Program) programView {
	return programView{ID: p.ID, Name: p.Name, IsActive: p.IsActive, CreatedAt: p.CreatedAt}
}

// Create handles POST /v1/programs.
func (h *ProgramHandler) Create(c echo.Context) error {
	var req createProgramReq
	if err := c.Bind(&req); err != nil {
		return failWith(c, http.StatusBadRequest, "ValidationError", "invalid body", nil)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return failWith(c, http.StatusBadRequest, "ValidationError", "name is required", nil)
	}

	p := &model.Program{Name: name, IsActive: true}
	if err := h.Programs.Create(c.Request().Context(), p); err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, newProgramView(p))
}

// List handles GET /v1/programs (active programs only).
func (h *ProgramHandler) List(c echo.Context) error {
	programs, err := h.Programs.List(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	views := make([]programView, 0, len(programs))
	for i := range programs {
		views = append(views, newProgramView(&programs[i]))
	}
	return ok(c, http.StatusOK, echo.Map{"programs": views})
}

// Events handles GET /v1/programs/:id/events: the program's event list
// resolved through the bidirectional reference table.
func (h *ProgramHandler) Events(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return failWith(c, http.StatusBadRequest, "ValidationError", "invalid program id", nil)
	}
	if _, err := h.Programs.GetByID(c.Request().Context(), id); err != nil {
		return fail(c, err)
	}
	eventIDs, err := h.Programs.EventIDs(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}

	// The reference table may momentarily reference events whose label
	// sync has not caught up; unknown IDs are skipped rather than failing
	// the whole listing.
	views := make([]eventView, 0, len(eventIDs))
	for _, eid := range eventIDs {
		ev, err := h.EventRepo.GetByID(c.Request().Context(), eid)
		if err != nil {
			continue
		}
		views = append(views, newEventView(ev))
	}
	return ok(c, http.StatusOK, echo.Map{"events": views})
}
