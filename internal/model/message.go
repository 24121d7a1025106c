package model

import "time"

// NotificationMessage is the durable leg of the notification trio: a
// message record consumed by UI code, guaranteeing there is something to
// show even when push or email delivery fails.  The triple
// (EventID, ChangeKind, Recipient) is unique so that dispatching the
// same logical change twice cannot duplicate a notice.
type NotificationMessage struct {
	ID         uint64    // notification_messages.id
	EventID    uint64    // notification_messages.event_id
	ChangeKind string    // notification_messages.change_kind
	Recipient  string    // notification_messages.recipient (subject ID)
	Title      string    // notification_messages.title
	Body       string    // notification_messages.body
	ActorID    uint64    // notification_messages.actor_id
	CreatedAt  time.Time // notification_messages.created_at
}
