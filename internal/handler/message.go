package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/planora/event-scheduler/internal/model"
	"github.com/planora/event-scheduler/internal/registration"
	"github.com/planora/event-scheduler/internal/repository"
)

// MessageHandler serves the durable notification inbox.
type MessageHandler struct {
	Messages *repository.MessageRepo
}

func NewMessageHandler(messages *repository.MessageRepo) *MessageHandler {
	return &MessageHandler{Messages: messages}
}

type messageView struct {
	ID         uint64    `json:"id"`
	EventID    uint64    `json:"event_id"`
	ChangeKind string    `json:"change_kind"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

func newMessageView(m *model.NotificationMessage) messageView {
	return messageView{
		ID:         m.ID,
		EventID:    m.EventID,
		ChangeKind: m.ChangeKind,
		Title:      m.Title,
		Body:       m.Body,
		CreatedAt:  m.CreatedAt,
	}
}

// ListMine handles GET /v1/messages/mine: the caller's notification
// messages, newest first.
func (h *MessageHandler) ListMine(c echo.Context) error {
	actor := actorFrom(c)
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	msgs, err := h.Messages.ListByRecipient(c.Request().Context(), registration.SubjectForUser(actor.ID), limit)
	if err != nil {
		return fail(c, err)
	}
	views := make([]messageView, 0, len(msgs))
	for i := range msgs {
		views = append(views, newMessageView(&msgs[i]))
	}
	return ok(c, http.StatusOK, echo.Map{"messages": views})
}
