package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/planora/event-scheduler/internal/model"
)

// ErrProgramNotFound indicates a program label does not exist.
var ErrProgramNotFound = errors.New("program not found")

// ProgramRepo persists program labels and the bidirectional
// program<->event references.  It implements event.ProgramRegistry.
type ProgramRepo struct {
	db *sql.DB
}

// NewProgramRepo constructs a ProgramRepo.
func NewProgramRepo(db *sql.DB) *ProgramRepo {
	return &ProgramRepo{db: db}
}

// Create inserts a program label.
func (r *ProgramRepo) Create(ctx context.Context, p *model.Program) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO programs (name, is_active) VALUES (?, ?)`, p.Name, p.IsActive)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// GetByID returns one program or ErrProgramNotFound.
func (r *ProgramRepo) GetByID(ctx context.Context, id uint64) (*model.Program, error) {
	var p model.Program
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, is_active, created_at FROM programs WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.IsActive, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProgramNotFound
		}
		return nil, err
	}
	return &p, nil
}

// List returns all active programs ordered by name.
func (r *ProgramRepo) List(ctx context.Context) ([]model.Program, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, is_active, created_at FROM programs WHERE is_active = 1 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Program
	for rows.Next() {
		var p model.Program
		if err := rows.Scan(&p.ID, &p.Name, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Exists reports whether an active program with the ID exists.
func (r *ProgramRepo) Exists(ctx context.Context, programID uint64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM programs WHERE id = ? AND is_active = 1`, programID,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// AddEventRef links an event to a program.  Re-adding an existing link
// is a no-op.
func (r *ProgramRepo) AddEventRef(ctx context.Context, programID, eventID uint64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO program_events (program_id, event_id) VALUES (?, ?)`,
		programID, eventID,
	)
	return err
}

// RemoveEventRef unlinks an event from a program.
func (r *ProgramRepo) RemoveEventRef(ctx context.Context, programID, eventID uint64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM program_events WHERE program_id = ? AND event_id = ?`,
		programID, eventID,
	)
	return err
}

// EventIDs returns the IDs of events linked to the program.
func (r *ProgramRepo) EventIDs(ctx context.Context, programID uint64) ([]uint64, error) {
	return queryIDs(ctx, r.db,
		`SELECT event_id FROM program_events WHERE program_id = ? ORDER BY event_id`, programID)
}
