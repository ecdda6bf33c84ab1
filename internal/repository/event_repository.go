package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/event-registration/internal/model"
)

// EventRepo encapsulates all database queries related to events and the
// approval workflow.
type EventRepo struct{ DB *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{DB: db} }

const eventCols = "id, host_id, title, description, category, venue, starts_at, ends_at, capacity, fee_cents, status, reviewed_by, review_note, created_at, updated_at"

func scanEvent(scan func(dest ...any) error) (*model.Event, error) {
	var (
		e          model.Event
		reviewedBy sql.NullInt64
	)
	err := scan(&e.ID, &e.HostID, &e.Title, &e.Description, &e.Category, &e.Venue,
		&e.StartsAt, &e.EndsAt, &e.Capacity, &e.FeeCents, &e.Status,
		&reviewedBy, &e.ReviewNote, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if reviewedBy.Valid {
		v := uint64(reviewedBy.Int64)
		e.ReviewedBy = &v
	}
	return &e, nil
}

// Create inserts a new event in PENDING state and populates its ID and
// timestamps.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	e.Status = model.EventPending
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO events (host_id, title, description, category, venue, starts_at, ends_at, capacity, fee_cents, status) VALUES (?,?,?,?,?,?,?,?,?,?)",
		e.HostID, e.Title, e.Description, e.Category, e.Venue, e.StartsAt, e.EndsAt, e.Capacity, e.FeeCents, e.Status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	got, err := r.GetByID(ctx, e.ID)
	if err != nil {
		return err
	}
	*e = *got
	return nil
}

// GetByID fetches an event regardless of owner or status.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	e, err := scanEvent(r.DB.QueryRowContext(ctx,
		"SELECT "+eventCols+" FROM events WHERE id=? LIMIT 1", id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// Update rewrites the host-editable fields of an event owned by hostID and
// sends it back to PENDING for re-review. Zero rows affected means not
// found or not owned.
func (r *EventRepo) Update(ctx context.Context, e *model.Event, hostID uint64) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE events SET title=?, description=?, category=?, venue=?, starts_at=?, ends_at=?, capacity=?, fee_cents=?,
		        status=?, reviewed_by=NULL, review_note='', updated_at=CURRENT_TIMESTAMP
		 WHERE id=? AND host_id=?`,
		e.Title, e.Description, e.Category, e.Venue, e.StartsAt, e.EndsAt, e.Capacity, e.FeeCents,
		model.EventPending, e.ID, hostID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an event owned by hostID together with its registrations.
func (r *EventRepo) Delete(ctx context.Context, id, hostID uint64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM registrations WHERE event_id=?", id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM events WHERE id=? AND host_id=?", id, hostID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// ListByHost returns all events of one host ordered by id.
func (r *EventRepo) ListByHost(ctx context.Context, hostID uint64) ([]*model.Event, error) {
	return r.list(ctx, "SELECT "+eventCols+" FROM events WHERE host_id=? ORDER BY id", hostID)
}

// ListByStatus returns events in one workflow state, newest first. Used by
// the admin review queue.
func (r *EventRepo) ListByStatus(ctx context.Context, status string) ([]*model.Event, error) {
	return r.list(ctx, "SELECT "+eventCols+" FROM events WHERE status=? ORDER BY id DESC", status)
}

// ListApproved returns the public catalogue, optionally filtered by
// category, soonest first.
func (r *EventRepo) ListApproved(ctx context.Context, category string) ([]*model.Event, error) {
	if category != "" {
		return r.list(ctx,
			"SELECT "+eventCols+" FROM events WHERE status=? AND category=? ORDER BY starts_at",
			model.EventApproved, category)
	}
	return r.list(ctx,
		"SELECT "+eventCols+" FROM events WHERE status=? ORDER BY starts_at", model.EventApproved)
}

// Decide records an administrator's approval or rejection. Only PENDING
// events can be decided; deciding twice yields ErrConflict.
func (r *EventRepo) Decide(ctx context.Context, id, adminID uint64, status, note string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE events SET status=?, reviewed_by=?, review_note=?, updated_at=CURRENT_TIMESTAMP WHERE id=? AND status=?",
		status, adminID, note, id, model.EventPending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (r *EventRepo) list(ctx context.Context, query string, args ...any) ([]*model.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
