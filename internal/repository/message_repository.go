package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/planora/event-scheduler/internal/model"
)

// MessageRepo persists the durable leg of the notification trio.  The
// notification_messages table carries a unique index over
// (event_id, change_kind, recipient); Create surfaces the duplicate-key
// error unchanged and the dispatcher converges by re-reading.
type MessageRepo struct {
	db *sql.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, event_id, change_kind, recipient, title, body, actor_id, created_at`

// FindByDedupeKey returns the message for the dedupe triple, or
// (nil, nil) when none exists.
func (r *MessageRepo) FindByDedupeKey(ctx context.Context, eventID uint64, kind, recipient string) (*model.NotificationMessage, error) {
	const q = `SELECT ` + messageColumns + `
			   FROM notification_messages
			   WHERE event_id = ? AND change_kind = ? AND recipient = ?
			   LIMIT 1`
	msg, err := scanMessage(r.db.QueryRowContext(ctx, q, eventID, kind, recipient))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// Create inserts the message and assigns its generated ID.
func (r *MessageRepo) Create(ctx context.Context, msg *model.NotificationMessage) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO notification_messages (event_id, change_kind, recipient, title, body, actor_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.EventID, msg.ChangeKind, msg.Recipient, msg.Title, msg.Body, msg.ActorID,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	msg.ID = uint64(id)
	return nil
}

// ListByRecipient returns the recipient's messages, newest first.
func (r *MessageRepo) ListByRecipient(ctx context.Context, recipient string, limit int) ([]model.NotificationMessage, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	const q = `SELECT ` + messageColumns + `
			   FROM notification_messages
			   WHERE recipient = ?
			   ORDER BY created_at DESC, id DESC
			   LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, recipient, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.NotificationMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *msg)
	}
	return out, rows.Err()
}

func scanMessage(row rowScanner) (*model.NotificationMessage, error) {
	var msg model.NotificationMessage
	err := row.Scan(
		&msg.ID, &msg.EventID, &msg.ChangeKind, &msg.Recipient,
		&msg.Title, &msg.Body, &msg.ActorID, &msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
