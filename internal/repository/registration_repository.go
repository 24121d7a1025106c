package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/planora/event-scheduler/internal/event"
	"github.com/planora/event-scheduler/internal/model"
	"github.com/planora/event-scheduler/internal/registration"
)

// RegistrationRepo persists registrations and the role occupancy
// counters.  It implements registration.Store.  The composite
// operations pair the registration write with the counter adjustment in
// one transaction; the counter UPDATE carries its own capacity guard so
// even a bug in the locking layer cannot oversell a role.
type RegistrationRepo struct {
	db     *sql.DB
	events *EventRepo
}

// NewRegistrationRepo constructs a RegistrationRepo.  The event repo is
// reused for loading events with their roles.
func NewRegistrationRepo(db *sql.DB, events *EventRepo) *RegistrationRepo {
	return &RegistrationRepo{db: db, events: events}
}

const registrationColumns = `id, event_id, role_id, subject_id, status,
	   role_name, role_description, assigned_by, created_at, updated_at`

// GetEvent loads the event with its roles, mapping the not-found
// sentinel to the registration package's.
func (r *RegistrationRepo) GetEvent(ctx context.Context, eventID uint64) (*model.Event, error) {
	ev, err := r.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			return nil, registration.ErrEventNotFound
		}
		return nil, err
	}
	return ev, nil
}

// FindActive returns the subject's ACTIVE registration for the role, or
// (nil, nil) when there is none.
func (r *RegistrationRepo) FindActive(ctx context.Context, eventID, roleID uint64, subjectID string) (*model.Registration, error) {
	const q = `SELECT ` + registrationColumns + `
			   FROM registrations
			   WHERE event_id = ? AND role_id = ? AND subject_id = ? AND status = 'ACTIVE'
			   LIMIT 1`
	reg, err := scanRegistration(r.db.QueryRowContext(ctx, q, eventID, roleID, subjectID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return reg, nil
}

// CountActiveBySubject counts the subject's ACTIVE registrations across
// all roles of one event.
func (r *RegistrationRepo) CountActiveBySubject(ctx context.Context, eventID uint64, subjectID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = ? AND subject_id = ? AND status = 'ACTIVE'`,
		eventID, subjectID,
	).Scan(&n)
	return n, err
}

// CreateAndIncrement inserts the registration row and increments the
// role counter atomically.  The UPDATE only matches while
// current_count < capacity, so a full role rolls the whole transaction
// back with ErrRoleFull.
func (r *RegistrationRepo) CreateAndIncrement(ctx context.Context, reg *model.Registration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE event_roles SET current_count = current_count + 1
		 WHERE id = ? AND event_id = ? AND current_count < capacity`,
		reg.RoleID, reg.EventID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return registration.ErrRoleFull
	}

	ins, err := tx.ExecContext(ctx,
		`INSERT INTO registrations
		 (event_id, role_id, subject_id, status, role_name, role_description, assigned_by)
		 VALUES (?, ?, ?, 'ACTIVE', ?, ?, ?)`,
		reg.EventID, reg.RoleID, reg.SubjectID, reg.RoleName, reg.RoleDescription, reg.AssignedBy,
	)
	if err != nil {
		return err
	}
	id, err := ins.LastInsertId()
	if err != nil {
		return err
	}
	reg.ID = uint64(id)
	reg.Status = model.RegistrationActive

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// CancelAndDecrement flips the registration to CANCELLED and releases
// its slot.  The row is kept; only its status changes.
func (r *RegistrationRepo) CancelAndDecrement(ctx context.Context, regID uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var roleID uint64
	err = tx.QueryRowContext(ctx,
		`SELECT role_id FROM registrations WHERE id = ? AND status = 'ACTIVE'`, regID,
	).Scan(&roleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return registration.ErrNotRegistered
		}
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE registrations SET status = 'CANCELLED', updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		regID,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE event_roles SET current_count = current_count - 1 WHERE id = ? AND current_count > 0`,
		roleID,
	); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// MoveAndAdjust repoints the registration at a new role, refreshing the
// snapshot columns and shifting one slot from the old role to the new
// one.  The increment on the target carries the same capacity guard as
// CreateAndIncrement.
func (r *RegistrationRepo) MoveAndAdjust(ctx context.Context, regID, fromRoleID, toRoleID uint64, roleName, roleDesc string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE event_roles SET current_count = current_count + 1
		 WHERE id = ? AND current_count < capacity`,
		toRoleID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return registration.ErrRoleFull
	}
	res, err = tx.ExecContext(ctx,
		`UPDATE registrations
		 SET role_id = ?, role_name = ?, role_description = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND role_id = ? AND status = 'ACTIVE'`,
		toRoleID, roleName, roleDesc, regID, fromRoleID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return registration.ErrNotRegistered
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE event_roles SET current_count = current_count - 1 WHERE id = ? AND current_count > 0`,
		fromRoleID,
	); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// IsUserActive reports whether the user exists and is active.
func (r *RegistrationRepo) IsUserActive(ctx context.Context, userID uint64) (bool, error) {
	var active bool
	err := r.db.QueryRowContext(ctx,
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

// ListBySubject returns the subject's registrations, newest first,
// cancelled ones included for history.
func (r *RegistrationRepo) ListBySubject(ctx context.Context, subjectID string) ([]model.Registration, error) {
	const q = `SELECT ` + registrationColumns + `
			   FROM registrations WHERE subject_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *reg)
	}
	return out, rows.Err()
}

// ListActiveByEvent returns the ACTIVE registrations of one event, used
// by organizers to review occupancy.
func (r *RegistrationRepo) ListActiveByEvent(ctx context.Context, eventID uint64) ([]model.Registration, error) {
	const q = `SELECT ` + registrationColumns + `
			   FROM registrations WHERE event_id = ? AND status = 'ACTIVE' ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *reg)
	}
	return out, rows.Err()
}

func scanRegistration(row rowScanner) (*model.Registration, error) {
	var reg model.Registration
	var assignedBy sql.NullInt64
	err := row.Scan(
		&reg.ID, &reg.EventID, &reg.RoleID, &reg.SubjectID, &reg.Status,
		&reg.RoleName, &reg.RoleDescription, &assignedBy, &reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	reg.AssignedBy = uint64(assignedBy.Int64)
	return &reg, nil
}
