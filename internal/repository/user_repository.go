package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/planora/event-scheduler/internal/model"
	"github.com/planora/event-scheduler/internal/notify"
	"github.com/planora/event-scheduler/internal/utils"
)

// ErrEmailExists indicates a registration attempt with an email that is
// already taken.
var ErrEmailExists = errors.New("email already exists")

// UserRepo mirrors the 'users' table.  It also resolves notification
// recipients, since recipient resolution is a join over users and
// registrations.  It implements event.UserDirectory and
// event.RecipientSource.
type UserRepo struct{ DB *sql.DB }

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = `id, email, display_name, password_hash, role, is_active, created_at, updated_at`

// Create inserts a user with a bcrypt-hashed password and returns the
// generated ID.
func (r *UserRepo) Create(ctx context.Context, email, displayName, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (email, display_name, password_hash, role) VALUES (?, ?, ?, ?)`,
		email, displayName, hash, role)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? LIMIT 1`, email,
	).Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ? LIMIT 1`, id,
	).Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// IsActive reports whether the user exists and is active.
func (r *UserRepo) IsActive(ctx context.Context, userID uint64) (bool, error) {
	var active bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT is_active FROM users WHERE id = ?`, userID,
	).Scan(&active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return active, nil
}

// UserRecipients resolves a user ID list into notification recipients.
// Unknown or inactive users are silently dropped.
func (r *UserRepo) UserRecipients(ctx context.Context, userIDs []uint64) ([]notify.Recipient, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	q := `SELECT id, email, display_name FROM users WHERE is_active = 1 AND id IN (?` +
		strings.Repeat(",?", len(userIDs)-1) + `)`
	args := make([]interface{}, len(userIDs))
	for i, id := range userIDs {
		args[i] = id
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []notify.Recipient
	for rows.Next() {
		var id uint64
		var email, name string
		if err := rows.Scan(&id, &email, &name); err != nil {
			return nil, err
		}
		out = append(out, notify.Recipient{
			SubjectID: fmt.Sprintf("user:%d", id),
			Email:     email,
			Name:      name,
		})
	}
	return out, rows.Err()
}

// EventRecipients returns the organizers plus every active registrant
// of the event, deduplicated by subject.  Guest registrants carry no
// email address, so only their durable-message and push legs fire.
func (r *UserRepo) EventRecipients(ctx context.Context, ev *model.Event) ([]notify.Recipient, error) {
	organizerIDs := append([]uint64{ev.OrganizerID}, ev.CoOrganizerIDs...)
	recipients, err := r.UserRecipients(ctx, organizerIDs)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(recipients))
	for _, rcpt := range recipients {
		seen[rcpt.SubjectID] = true
	}

	const q = `SELECT DISTINCT reg.subject_id, u.email, u.display_name
			   FROM registrations reg
			   LEFT JOIN users u
				 ON reg.subject_id = CONCAT('user:', u.id) AND u.is_active = 1
			   WHERE reg.event_id = ? AND reg.status = 'ACTIVE'`
	rows, err := r.DB.QueryContext(ctx, q, ev.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var subjectID string
		var email, name sql.NullString
		if err := rows.Scan(&subjectID, &email, &name); err != nil {
			return nil, err
		}
		if seen[subjectID] {
			continue
		}
		seen[subjectID] = true
		recipients = append(recipients, notify.Recipient{
			SubjectID: subjectID,
			Email:     email.String,
			Name:      name.String,
		})
	}
	return recipients, rows.Err()
}
