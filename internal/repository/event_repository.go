// Package repository contains the MySQL data access layer.  Each repo
// wraps a *sql.DB handle and implements the narrow store interfaces the
// service packages declare.  Composite mutations run in transactions
// with a deferred rollback so no partial write survives an error.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/planora/event-scheduler/internal/event"
	"github.com/planora/event-scheduler/internal/model"
)

// EventRepo manages persistence for events, their roles, co-organizer
// grants, program references and the cancellation audit log.  It
// implements event.Store and conflict.EventSource.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo constructs an EventRepo with the given DB handle.
func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

// DB exposes the underlying sql.DB for callers that need transactions
// spanning multiple repositories.
func (r *EventRepo) DB() *sql.DB {
	return r.db
}

const eventColumns = `id, title, description, format, location, meeting_link,
	   starts_at, ends_at, timezone, status, published, public_slug,
	   organizer_id, created_at, updated_at`

// Create inserts the event together with its roles, co-organizers and
// program references in one transaction, then assigns the generated IDs
// back onto the struct.
func (r *EventRepo) Create(ctx context.Context, ev *model.Event) error {
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

	const q = `INSERT INTO events
			   (title, description, format, location, meeting_link, starts_at, ends_at,
				timezone, status, published, public_slug, organizer_id)
			   VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q,
		ev.Title, ev.Description, ev.Format, ev.Location, ev.MeetingLink,
		ev.StartsAt.UTC(), ev.EndsAt.UTC(), ev.Timezone, ev.Status,
		ev.Published, nullString(ev.PublicSlug), ev.OrganizerID,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	ev.ID = uint64(id)

	for i := range ev.Roles {
		role := &ev.Roles[i]
		role.EventID = ev.ID
		res, err := tx.ExecContext(ctx,
			`INSERT INTO event_roles (event_id, name, description, capacity, current_count, price_cents)
			 VALUES (?, ?, ?, ?, 0, ?)`,
			ev.ID, role.Name, role.Description, role.Capacity, role.PriceCents,
		)
		if err != nil {
			return err
		}
		roleID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		role.ID = uint64(roleID)
	}
	if err := insertIDRows(ctx, tx, "event_organizers", "user_id", ev.ID, ev.CoOrganizerIDs); err != nil {
		return err
	}
	if err := insertIDRows(ctx, tx, "program_events", "program_id", ev.ID, ev.ProgramIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Update rewrites the event row and its side tables in one transaction.
// Role counters are never touched here; the registration repo owns
// them.  Roles missing from ev.Roles are deleted, roles with ID zero
// inserted, the rest updated in place.
func (r *EventRepo) Update(ctx context.Context, ev *model.Event) error {
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

	const q = `UPDATE events
			   SET title = ?, description = ?, format = ?, location = ?, meeting_link = ?,
				   starts_at = ?, ends_at = ?, timezone = ?, status = ?, published = ?,
				   public_slug = ?, updated_at = CURRENT_TIMESTAMP
			   WHERE id = ?`
	res, err := tx.ExecContext(ctx, q,
		ev.Title, ev.Description, ev.Format, ev.Location, ev.MeetingLink,
		ev.StartsAt.UTC(), ev.EndsAt.UTC(), ev.Timezone, ev.Status,
		ev.Published, nullString(ev.PublicSlug), ev.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// RowsAffected is also 0 for a no-op update, so double-check
		// existence before reporting not-found.
		var one int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM events WHERE id = ?`, ev.ID).Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return event.ErrNotFound
			}
			return err
		}
	}

	keepIDs := make([]uint64, 0, len(ev.Roles))
	for i := range ev.Roles {
		role := &ev.Roles[i]
		role.EventID = ev.ID
		if role.ID == 0 {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO event_roles (event_id, name, description, capacity, current_count, price_cents)
				 VALUES (?, ?, ?, ?, 0, ?)`,
				ev.ID, role.Name, role.Description, role.Capacity, role.PriceCents,
			)
			if err != nil {
				return err
			}
			roleID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			role.ID = uint64(roleID)
		} else {
			_, err := tx.ExecContext(ctx,
				`UPDATE event_roles SET name = ?, description = ?, capacity = ?, price_cents = ?
				 WHERE id = ? AND event_id = ?`,
				role.Name, role.Description, role.Capacity, role.PriceCents, role.ID, ev.ID,
			)
			if err != nil {
				return err
			}
		}
		keepIDs = append(keepIDs, role.ID)
	}
	if err := deleteRoleRowsExcept(ctx, tx, ev.ID, keepIDs); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM event_organizers WHERE event_id = ?`, ev.ID); err != nil {
		return err
	}
	if err := insertIDRows(ctx, tx, "event_organizers", "user_id", ev.ID, ev.CoOrganizerIDs); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM program_events WHERE event_id = ?`, ev.ID); err != nil {
		return err
	}
	if err := insertIDRows(ctx, tx, "program_events", "program_id", ev.ID, ev.ProgramIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// GetByID loads the event row plus roles, co-organizers and program
// references.  Returns event.ErrNotFound when no row matches.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events WHERE id = ?`
	ev, err := scanEvent(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, event.ErrNotFound
		}
		return nil, err
	}
	if err := r.loadSideTables(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// GetBySlug loads a published event by its public slug, for the public
// detail page.
func (r *EventRepo) GetBySlug(ctx context.Context, slug string) (*model.Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events WHERE public_slug = ? AND published = 1`
	ev, err := scanEvent(r.db.QueryRowContext(ctx, q, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, event.ErrNotFound
		}
		return nil, err
	}
	if err := r.loadSideTables(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// UpdateStatus rewrites only the status column, used by cancellation
// and the lazy status recompute.
func (r *EventRepo) UpdateStatus(ctx context.Context, id uint64, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE events SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id,
	)
	return err
}

// CreateAuditEntry appends one row to the audit log.
func (r *EventRepo) CreateAuditEntry(ctx context.Context, entry *model.AuditEntry) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO event_audit_log (event_id, actor_id, action, detail) VALUES (?, ?, ?, ?)`,
		entry.EventID, entry.ActorID, entry.Action, entry.Detail,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = uint64(id)
	return nil
}

// ListOverlapping returns non-cancelled events whose stored window
// overlaps [start, end), excluding the given event ID.  The predicate
// selects rows where NOT (existing ends before the probe starts OR
// existing starts after the probe ends); the detector re-applies the
// strict comparison on the loaded instants.
func (r *EventRepo) ListOverlapping(ctx context.Context, start, end time.Time, excludeEventID uint64) ([]model.Event, error) {
	const q = `SELECT ` + eventColumns + `
			   FROM events
			   WHERE id <> ? AND status <> 'CANCELLED' AND NOT (ends_at <= ? OR starts_at >= ?)`
	rows, err := r.db.QueryContext(ctx, q, excludeEventID, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

// ListFilter narrows ListPublished.  Zero values mean "no constraint".
type ListFilter struct {
	ProgramID uint64
	From      time.Time
	To        time.Time
	Status    string
	Limit     int
	Offset    int
}

// ListPublished returns published events matching the filter, ordered
// by start time ascending.  Roles are loaded for each row so listings
// can show remaining capacity.
func (r *EventRepo) ListPublished(ctx context.Context, f ListFilter) ([]model.Event, error) {
	var (
		where = []string{"e.published = 1"}
		args  []interface{}
		join  string
	)
	if f.ProgramID != 0 {
		join = " JOIN program_events pe ON pe.event_id = e.id"
		where = append(where, "pe.program_id = ?")
		args = append(args, f.ProgramID)
	}
	if !f.From.IsZero() {
		where = append(where, "e.ends_at > ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		where = append(where, "e.starts_at < ?")
		args = append(args, f.To.UTC())
	}
	if f.Status != "" {
		where = append(where, "e.status = ?")
		args = append(args, f.Status)
	}
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := `SELECT e.id, e.title, e.description, e.format, e.location, e.meeting_link,
				 e.starts_at, e.ends_at, e.timezone, e.status, e.published, e.public_slug,
				 e.organizer_id, e.created_at, e.updated_at
		  FROM events e` + join + `
		  WHERE ` + strings.Join(where, " AND ") + `
		  ORDER BY e.starts_at ASC
		  LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.loadRoles(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ListUpcoming returns published, non-cancelled events starting inside
// [from, to), ordered by start time.  Used by the reminder sweep, which
// only needs titles and windows, so side tables are not loaded.
func (r *EventRepo) ListUpcoming(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	const q = `SELECT ` + prefixedEventColumns + `
			   FROM events e
			   WHERE e.published = 1 AND e.status <> 'CANCELLED'
				 AND e.starts_at >= ? AND e.starts_at < ?
			   ORDER BY e.starts_at ASC`
	rows, err := r.db.QueryContext(ctx, q, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

// ListByOrganizer returns every event the user organizes or
// co-organizes, drafts included, newest first.
func (r *EventRepo) ListByOrganizer(ctx context.Context, userID uint64) ([]model.Event, error) {
	const q = `SELECT DISTINCT ` + prefixedEventColumns + `
			   FROM events e
			   LEFT JOIN event_organizers eo ON eo.event_id = e.id
			   WHERE e.organizer_id = ? OR eo.user_id = ?
			   ORDER BY e.starts_at DESC`
	rows, err := r.db.QueryContext(ctx, q, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.loadRoles(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

const prefixedEventColumns = `e.id, e.title, e.description, e.format, e.location, e.meeting_link,
	   e.starts_at, e.ends_at, e.timezone, e.status, e.published, e.public_slug,
	   e.organizer_id, e.created_at, e.updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var ev model.Event
	var slug sql.NullString
	err := row.Scan(
		&ev.ID, &ev.Title, &ev.Description, &ev.Format, &ev.Location, &ev.MeetingLink,
		&ev.StartsAt, &ev.EndsAt, &ev.Timezone, &ev.Status, &ev.Published, &slug,
		&ev.OrganizerID, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	ev.PublicSlug = slug.String
	ev.StartsAt = ev.StartsAt.UTC()
	ev.EndsAt = ev.EndsAt.UTC()
	return &ev, nil
}

func (r *EventRepo) loadSideTables(ctx context.Context, ev *model.Event) error {
	if err := r.loadRoles(ctx, ev); err != nil {
		return err
	}
	coOrgs, err := queryIDs(ctx, r.db,
		`SELECT user_id FROM event_organizers WHERE event_id = ? ORDER BY user_id`, ev.ID)
	if err != nil {
		return err
	}
	ev.CoOrganizerIDs = coOrgs
	programs, err := queryIDs(ctx, r.db,
		`SELECT program_id FROM program_events WHERE event_id = ? ORDER BY program_id`, ev.ID)
	if err != nil {
		return err
	}
	ev.ProgramIDs = programs
	return nil
}

func (r *EventRepo) loadRoles(ctx context.Context, ev *model.Event) error {
	const q = `SELECT id, event_id, name, description, capacity, current_count, price_cents
			   FROM event_roles WHERE event_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, ev.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	ev.Roles = nil
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.EventID, &role.Name, &role.Description,
			&role.Capacity, &role.CurrentCount, &role.PriceCents); err != nil {
			return err
		}
		ev.Roles = append(ev.Roles, role)
	}
	return rows.Err()
}

func queryIDs(ctx context.Context, db *sql.DB, q string, args ...interface{}) ([]uint64, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// insertIDRows bulk-inserts (event_id, <col>) pairs into a join table.
func insertIDRows(ctx context.Context, tx *sql.Tx, table, col string, eventID uint64, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	q := fmt.Sprintf("INSERT INTO %s (event_id, %s) VALUES ", table, col)
	args := make([]interface{}, 0, len(ids)*2)
	for i, id := range ids {
		if i > 0 {
			q += ","
		}
		q += "(?, ?)"
		args = append(args, eventID, id)
	}
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

func deleteRoleRowsExcept(ctx context.Context, tx *sql.Tx, eventID uint64, keepIDs []uint64) error {
	if len(keepIDs) == 0 {
		_, err := tx.ExecContext(ctx, `DELETE FROM event_roles WHERE event_id = ?`, eventID)
		return err
	}
	q := `DELETE FROM event_roles WHERE event_id = ? AND id NOT IN (?` +
		strings.Repeat(",?", len(keepIDs)-1) + `)`
	args := make([]interface{}, 0, len(keepIDs)+1)
	args = append(args, eventID)
	for _, id := range keepIDs {
		args = append(args, id)
	}
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
