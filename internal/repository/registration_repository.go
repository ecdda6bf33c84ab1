package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/event-registration/internal/model"
)

// RegistrationRepo links participants to approved events. A unique index on
// (event_id, participant_id) backs the duplicate check.
type RegistrationRepo struct{ DB *sql.DB }

func NewRegistrationRepo(db *sql.DB) *RegistrationRepo { return &RegistrationRepo{DB: db} }

// Create registers a participant for an event. Capacity is enforced inside
// the INSERT itself: the SELECT admits the row only while the current count
// is below capacity (capacity 0 = unlimited), so two concurrent
// registrations cannot oversell the last seat. Duplicates map to
// ErrConflict via the unique index, a full event via zero rows inserted.
func (r *RegistrationRepo) Create(ctx context.Context, eventID, participantID uint64) (*model.Registration, error) {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO registrations (event_id, participant_id)
		 SELECT ?, ? FROM events e
		 WHERE e.id = ? AND e.status = ?
		   AND (e.capacity = 0 OR
		        (SELECT COUNT(*) FROM registrations g WHERE g.event_id = e.id) < e.capacity)`,
		eventID, participantID, eventID, model.EventApproved)
	if err != nil {
		if strings.Contains(err.Error(), "1062") {
			return nil, ErrConflict
		}
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrConflict // event full or not open for registration
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	var reg model.Registration
	err = r.DB.QueryRowContext(ctx,
		"SELECT id, event_id, participant_id, created_at FROM registrations WHERE id=?",
		id).Scan(&reg.ID, &reg.EventID, &reg.ParticipantID, &reg.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// Delete cancels a participant's registration. Zero rows means there was
// nothing to cancel.
func (r *RegistrationRepo) Delete(ctx context.Context, eventID, participantID uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM registrations WHERE event_id=? AND participant_id=?", eventID, participantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByParticipant returns a participant's registrations with the event
// rows joined in, newest first.
func (r *RegistrationRepo) ListByParticipant(ctx context.Context, participantID uint64) ([]*model.Event, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT e.id, e.host_id, e.title, e.description, e.category, e.venue, e.starts_at, e.ends_at,
		        e.capacity, e.fee_cents, e.status, e.reviewed_by, e.review_note, e.created_at, e.updated_at
		 FROM registrations g JOIN events e ON e.id = g.event_id
		 WHERE g.participant_id=? ORDER BY g.id DESC`, participantID)
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

// ListByEvent returns the attendee list of one event, provided the event
// belongs to hostID (hosts may only see their own attendees).
func (r *RegistrationRepo) ListByEvent(ctx context.Context, eventID, hostID uint64) ([]*model.Registration, error) {
	var owner uint64
	err := r.DB.QueryRowContext(ctx, "SELECT host_id FROM events WHERE id=?", eventID).Scan(&owner)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if owner != hostID {
		return nil, ErrForbidden
	}

	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, event_id, participant_id, created_at FROM registrations WHERE event_id=? ORDER BY id", eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Registration
	for rows.Next() {
		var g model.Registration
		if err := rows.Scan(&g.ID, &g.EventID, &g.ParticipantID, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}
