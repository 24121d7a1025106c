// Package queue defines message payloads exchanged over the message
// broker and the publisher/consumer pair for the push channel.
package queue

// NotificationQueueName is the durable queue carrying push events for
// connected clients.
const NotificationQueueName = "event.notifications"

// NotificationPushed is the real-time leg of the notification trio.  It
// references the durable message record by ID so clients can reconcile
// the push against what the UI already shows; a push is therefore only
// emitted after the message record exists.
type NotificationPushed struct {
	MessageID  uint64 `json:"message_id"`
	EventID    uint64 `json:"event_id"`
	ChangeKind string `json:"change_kind"`
	Recipient  string `json:"recipient"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	ActorID    uint64 `json:"actor_id"`
	EmittedAt  string `json:"emitted_at"`
}
