package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/planora/event-scheduler/internal/event"
	"github.com/planora/event-scheduler/internal/model"
	"github.com/planora/event-scheduler/internal/repository"
)

// detailCache holds rendered event detail payloads under per-id keys;
// mutations drop them through the same invalidator.
type detailCache interface {
	CachedEvent(ctx context.Context, eventID uint64) ([]byte, bool)
	StoreEvent(ctx context.Context, eventID uint64, payload []byte, ttl time.Duration)
}

// detailCacheTTL bounds how long a missed invalidation can serve a
// stale capacity view.
const detailCacheTTL = 30 * time.Second

// EventHandler exposes the lifecycle service over HTTP.  Mutations go
// through the service; listing reads hit the repository directly since
// they need no locking or invalidation.
type EventHandler struct {
	Svc    *event.Service
	Events *repository.EventRepo
	Cache  detailCache
}

// NewEventHandler returns an EventHandler.  cache may be nil to serve
// detail reads uncached.
func NewEventHandler(svc *event.Service, events *repository.EventRepo, cache detailCache) *EventHandler {
	return &EventHandler{Svc: svc, Events: events, Cache: cache}
}

type roleReq struct {
	ID          uint64 `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Capacity    uint32 `json:"capacity"`
	PriceCents  uint32 `json:"price_cents"`
}

type recurrenceReq struct {
	Frequency string `json:"frequency"`
	Count     int    `json:"count"`
}

type createEventReq struct {
	Title             string         `json:"title"`
	Description       string         `json:"description"`
	Format            string         `json:"format"`
	Location          string         `json:"location"`
	MeetingLink       string         `json:"meeting_link"`
	StartsAt          string         `json:"starts_at"`
	EndsAt            string         `json:"ends_at"`
	Timezone          string         `json:"timezone"`
	Publish           bool           `json:"publish"`
	ProgramIDs        []uint64       `json:"program_ids"`
	CoOrganizerIDs    []uint64       `json:"co_organizer_ids"`
	Roles             []roleReq      `json:"roles"`
	Recurrence        *recurrenceReq `json:"recurrence"`
	SkipConflictCheck bool           `json:"skip_conflict_check"`
}

type updateEventReq struct {
	Title             *string    `json:"title"`
	Description       *string    `json:"description"`
	Format            *string    `json:"format"`
	Location          *string    `json:"location"`
	MeetingLink       *string    `json:"meeting_link"`
	StartsAt          *string    `json:"starts_at"`
	EndsAt            *string    `json:"ends_at"`
	Timezone          *string    `json:"timezone"`
	ProgramIDs        *[]uint64  `json:"program_ids"`
	CoOrganizerIDs    *[]uint64  `json:"co_organizer_ids"`
	Roles             *[]roleReq `json:"roles"`
	SkipConflictCheck bool       `json:"skip_conflict_check"`
}

// Create handles POST /v1/events.
func (h *EventHandler) Create(c echo.Context) error {
	var req createEventReq
	if err := c.Bind(&req); err != nil {
		return failWith(c, http.StatusBadRequest, "ValidationError", "invalid body", nil)
	}

	in := event.CreateInput{
		Title:             req.Title,
		Description:       req.Description,
		Format:            strings.ToUpper(strings.TrimSpace(req.Format)),
		Location:          req.Location,
		MeetingLink:       req.MeetingLink,
		StartsAt:          req.StartsAt,
		EndsAt:            req.EndsAt,
		Timezone:          req.Timezone,
		Publish:           req.Publish,
		ProgramIDs:        req.ProgramIDs,
		CoOrganizerIDs:    req.CoOrganizerIDs,
		SkipConflictCheck: req.SkipConflictCheck,
	}
	for _, r := range req.Roles {
		in.Roles = append(in.Roles, event.RoleInput{
			Name:        r.Name,
			Description: r.Description,
			Capacity:    r.Capacity,
			PriceCents:  r.PriceCents,
		})
	}
	if req.Recurrence != nil {
		in.Recurrence = &model.Recurrence{
			Frequency: strings.ToUpper(strings.TrimSpace(req.Recurrence.Frequency)),
			Count:     req.Recurrence.Count,
		}
	}

	res, err := h.Svc.Create(c.Request().Context(), in, actorFrom(c))
	if err != nil {
		return fail(c, err)
	}

	data := echo.Map{"event": newEventView(res.Event)}
	if len(res.Siblings) > 0 {
		sibs := make([]eventView, 0, len(res.Siblings))
		for _, s := range res.Siblings {
			sibs = append(sibs, newEventView(s))
		}
		data["siblings"] = sibs
	}
	if len(res.Missing) > 0 {
		data["missing_publish_fields"] = res.Missing
	}
	return ok(c, http.StatusCreated, data)
}

// Get handles GET /v1/events/:id.  Status drift is healed on read.
// The rendered view is cached under the event's by-id key; every
// mutation drops that entry, so readers see capacity changes
// immediately and the TTL only backstops missed invalidations.
func (h *EventHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return failWith(c, http.StatusBadRequest, "ValidationError", "invalid event id", nil)
	}
	ctx := c.Request().Context()
	if h.Cache != nil {
		if body, hit := h.Cache.CachedEvent(ctx, id); hit {
			c.Response().Header().Set("X-Cache", "HIT")
			return c.JSONBlob(http.StatusOK, body)
		}
	}
	ev, err := h.Svc.Get(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	if h.Cache != nil {
		if body, err := json.Marshal(envelope{Success: true, Data: newEventView(ev)}); err == nil {
			h.Cache.StoreEvent(ctx, id, body, detailCacheTTL)
		}
	}
	return ok(c, http.StatusOK, newEventView(ev))
}

// Update handles PATCH /v1/events/:id.
func (h *EventHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return failWith(c, http.StatusBadRequest, "ValidationError", "invalid event id", nil)
	}
	var req updateEventReq
	if err := c.Bind(&req); err != nil {
		return failWith(c, http.StatusBadRequest, "ValidationError", "invalid body", nil)
	}

	in := event.UpdateInput{
		Title:             req.Title,
		Description:       req.Description,
		Location:          req.Location,
		MeetingLink:       req.MeetingLink,
		StartsAt:          req.StartsAt,
		EndsAt:            req.EndsAt,
		Timezone:          req.Timezone,
		ProgramIDs:        req.ProgramIDs,
		CoOrganizerIDs:    req.CoOrganizerIDs,
		SkipConflictCheck: req.SkipConflictCheck,
	}
	if req.Format != nil {
		f := strings.ToUpper(strings.TrimSpace(*req.Format))
		in.Format = &f
	}
	if req.Roles != nil {
		updates := make([]event.RoleUpdate, 0, len(*req.Roles))
		for _, r := range *req.Roles {
			updates = append(updates, event.RoleUpdate{
				ID:          r.ID,
				Name:        r.Name,
				Description: r.Description,
				Capacity:    r.Capacity,
				PriceCents:  r.PriceCents,
			})
		}
		in.Roles = &updates
	}

	res, err := h.Svc.Update(c.Request().Context(), id, in, actorFrom(c))
	if err != nil {
		return fail(c, err)
	}

	data := echo.Map{
		"event":          newEventView(res.Event),
		"changed_fields": res.ChangedFields,
	}
	// A publish-guard demotion is reported as advisory on a successful
	// response, never as an error.
	if res.AutoUnpublished {
		data["auto_unpublished"] = true
		data["missing_publish_fields"] = res.MissingFields
		return okMsg(c, http.StatusOK, "event updated; publish requirements no longer met, event moved to draft", data)
	}
	return ok(c, http.StatusOK, data)
}

// Publish handles POST /v1/events/:id/publish.
func (h *EventHandler) Publish(c echo.Context) error {
	return h.setPublished(c, true)
}

// Unpublish handles POST /v1/events/:id/unpublish.
func (h *EventHandler) Unpublish(c echo.Context) error {
	return h.setPublished(c, false)
}

func (h *EventHandler) setPublished(c echo.Context, publish bool) error {
	id, err := pathID(c, "id")
	if err != nil {
		return failWith(c, http.StatusBadRequest, "ValidationError", "invalid event id", nil)
	}
	var ev *model.Event
	if publish {
		ev, err = h.Svc.Publish(c.Request().Context(), id, actorFrom(c))
	} else {
		ev, err = h.Svc.Unpublish(c.Request().Context(), id, actorFrom(c))
	}
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, newEventView(ev))
}

type cancelReq struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /v1/events/:id/cancel.
func (h *EventHandler) Cancel(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return failWith(c, http.StatusBadRequest, "ValidationError", "invalid event id", nil)
	}
	var req cancelReq
	_ = c.Bind(&req)

	ev, err := h.Svc.Cancel(c.Request().Context(), id, actorFrom(c), strings.TrimSpace(req.Reason))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, newEventView(ev))
}

// CheckConflicts handles GET /v1/conflicts/check: a read-only probe of
// a candidate window.  ends_at may be omitted for a point-in-time probe.
func (h *EventHandler) CheckConflicts(c echo.Context) error {
	start := c.QueryParam("starts_at")
	end := c.QueryParam("ends_at")
	tz := c.QueryParam("timezone")
	if start == "" {
		return failWith(c, http.StatusBadRequest, "ValidationError", "starts_at is required", nil)
	}
	var exclude uint64
	if raw := c.QueryParam("exclude_event_id"); raw != "" {
		exclude, _ = strconv.ParseUint(raw, 10, 64)
	}

	found, err := h.Svc.CheckConflicts(c.Request().Context(), start, end, tz, exclude)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{
		"has_conflicts": len(found) > 0,
		"conflicts":     eventViews(found),
	})
}

// RefreshStatus handles POST /v1/events/:id/refresh-status and returns
// the recomputed status.
func (h *EventHandler) RefreshStatus(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return failWith(c, http.StatusBadRequest, "ValidationError", "invalid event id", nil)
	}
	status, err := h.Svc.RefreshStatus(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"status": status})
}

// ListPublished handles GET /v1/events: the public catalog.
func (h *EventHandler) ListPublished(c echo.Context) error {
	var f repository.ListFilter
	if raw := c.QueryParam("program_id"); raw != "" {
		f.ProgramID, _ = strconv.ParseUint(raw, 10, 64)
	}
	if raw := c.QueryParam("from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			f.From = t
		}
	}
	if raw := c.QueryParam("to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			f.To = t
		}
	}
	f.Status = strings.ToUpper(strings.TrimSpace(c.QueryParam("status")))
	if raw := c.QueryParam("limit"); raw != "" {
		f.Limit, _ = strconv.Atoi(raw)
	}
	if raw := c.QueryParam("offset"); raw != "" {
		f.Offset, _ = strconv.Atoi(raw)
	}

	evs, err := h.Events.ListPublished(c.Request().Context(), f)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"events": eventViews(evs)})
}

// GetBySlug handles GET /v1/events/slug/:slug (public page lookup).
func (h *EventHandler) GetBySlug(c echo.Context) error {
	slug := c.Param("slug")
	ev, err := h.Events.GetBySlug(c.Request().Context(), slug)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, newEventView(ev))
}

// ListMine handles GET /v1/events/mine: events the caller organizes or
// co-organizes, drafts included.
func (h *EventHandler) ListMine(c echo.Context) error {
	actor := actorFrom(c)
	evs, err := h.Events.ListByOrganizer(c.Request().Context(), actor.ID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"events": eventViews(evs)})
}

// pathID parses a numeric path parameter.
func pathID(c echo.Context, name string) (uint64, error) {
	return strconv.ParseUint(c.Param(name), 10, 64)
}
