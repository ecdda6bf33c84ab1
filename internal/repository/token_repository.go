package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/event-registration/internal/model"
)

// TokenStore is the refresh-token contract. Lookup treats "not found" as a
// normal outcome: expired, swept or forged tokens all land there. Rotate
// must be a single atomic conditional write: two concurrent refreshes
// presenting the same stale token must not both succeed.
type TokenStore interface {
	Save(ctx context.Context, identityID uint64, role model.Role, tokenHash string, expires time.Time) error
	Lookup(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	Rotate(ctx context.Context, oldHash, newHash string, newExpires time.Time) error
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAllForIdentity(ctx context.Context, identityID uint64) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// TokenRepo persists refresh tokens in MySQL, one row per device session.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Save inserts a refresh-token row at login or registration.
func (r *TokenRepo) Save(ctx context.Context, identityID uint64, role model.Role, tokenHash string, expires time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (identity_id, role, token_hash, expires_at) VALUES (?,?,?,?)",
		identityID, role, tokenHash, expires)
	return err
}

// Lookup returns the live row for a token hash. The expiry filter lives in
// the query, so an expired row is never returned even before the sweep
// physically deletes it. Validity is strict: a token presented exactly at
// its expiry instant is already dead.
func (r *TokenRepo) Lookup(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	var t model.RefreshToken
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, identity_id, role, token_hash, expires_at, created_at FROM refresh_tokens WHERE token_hash=? AND expires_at > UTC_TIMESTAMP(6) LIMIT 1",
		tokenHash).Scan(&t.ID, &t.IdentityID, &t.Role, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Rotate swaps the token value and expiry of the row matching oldHash in a
// single conditional UPDATE. The WHERE clause re-checks liveness, so of two
// concurrent refreshes carrying the same token exactly one observes a row;
// the loser gets ErrNotFound and no duplicate row ever appears.
func (r *TokenRepo) Rotate(ctx context.Context, oldHash, newHash string, newExpires time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET token_hash=?, expires_at=? WHERE token_hash=? AND expires_at > UTC_TIMESTAMP(6)",
		newHash, newExpires, oldHash)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Revoke deletes the row for a token hash. Revoking an unknown token is not
// an error; logout must be idempotent.
func (r *TokenRepo) Revoke(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE token_hash=?", tokenHash)
	return err
}

// RevokeAllForIdentity drops every session of one identity. Used by
// password reset so a stolen refresh token dies with the old password.
func (r *TokenRepo) RevokeAllForIdentity(ctx context.Context, identityID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE identity_id=?", identityID)
	return err
}

// DeleteExpired sweeps rows whose expiry has passed. Lookup already filters
// them out; this just reclaims space.
func (r *TokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at <= ?", now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
