package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/event-registration/internal/model"
)

// SubscriberRepo persists newsletter subscriptions.
type SubscriberRepo struct{ DB *sql.DB }

func NewSubscriberRepo(db *sql.DB) *SubscriberRepo { return &SubscriberRepo{DB: db} }

// Create stores a subscription with its unsubscribe token. Subscribing an
// address twice maps to ErrEmailExists.
func (r *SubscriberRepo) Create(ctx context.Context, s *model.Subscriber) error {
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO subscribers (email, token) VALUES (?,?)", s.Email, s.Token)
	if err != nil {
		if strings.Contains(err.Error(), "1062") {
			return ErrEmailExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// DeleteByToken removes the subscription matching an unsubscribe token.
func (r *SubscriberRepo) DeleteByToken(ctx context.Context, token string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM subscribers WHERE token=?", token)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns every subscriber, oldest first, for the admin export.
func (r *SubscriberRepo) List(ctx context.Context) ([]*model.Subscriber, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, email, token, created_at FROM subscribers ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Subscriber
	for rows.Next() {
		var s model.Subscriber
		if err := rows.Scan(&s.ID, &s.Email, &s.Token, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
