package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/event-registration/internal/model"
)

// DonationRepo records donations. Rows are append-only; there is no update
// or delete path.
type DonationRepo struct{ DB *sql.DB }

func NewDonationRepo(db *sql.DB) *DonationRepo { return &DonationRepo{DB: db} }

// Create inserts a donation row and populates its ID.
func (r *DonationRepo) Create(ctx context.Context, d *model.Donation) error {
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO donations (donor_name, email, amount_cents, message, reference) VALUES (?,?,?,?,?)",
		d.DonorName, d.Email, d.AmountCents, d.Message, d.Reference)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	d.ID = uint64(id)
	return nil
}

// List returns all donations, newest first, for the admin ledger.
func (r *DonationRepo) List(ctx context.Context) ([]*model.Donation, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, donor_name, email, amount_cents, message, reference, created_at FROM donations ORDER BY id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Donation
	for rows.Next() {
		var d model.Donation
		if err := rows.Scan(&d.ID, &d.DonorName, &d.Email, &d.AmountCents, &d.Message, &d.Reference, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
