package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/event-registration/internal/model"
)

// IdentityStore is the contract the auth handler and session middleware
// depend on. The MySQL implementation below serves production; an
// in-memory implementation in memory.go serves tests.
type IdentityStore interface {
	Create(ctx context.Context, id *model.Identity) error
	GetByEmail(ctx context.Context, email string) (*model.Identity, error)
	GetByID(ctx context.Context, id uint64) (*model.Identity, error)
	UpdateProfile(ctx context.Context, id uint64, fullName, organization string) error
	SetVerified(ctx context.Context, verifyToken string) (uint64, error)
	SetResetToken(ctx context.Context, id uint64, resetHash string, expires time.Time) error
	GetByResetToken(ctx context.Context, resetHash string, now time.Time) (*model.Identity, error)
	UpdatePassword(ctx context.Context, id uint64, passwordHash string) error
	ListByRole(ctx context.Context, role model.Role) ([]*model.Identity, error)
}

// IdentityRepo persists identities in MySQL. One table holds all three
// roles; the role column is the discriminator.
type IdentityRepo struct{ DB *sql.DB }

func NewIdentityRepo(db *sql.DB) *IdentityRepo { return &IdentityRepo{DB: db} }

const identityCols = "id, email, password_hash, role, full_name, organization, verified, verify_token, reset_token_hash, reset_expires_at, created_at, updated_at"

func scanIdentity(row *sql.Row) (*model.Identity, error) {
	var (
		u       model.Identity
		resetAt sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.FullName, &u.Organization,
		&u.Verified, &u.VerifyToken, &u.ResetTokenHash, &resetAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if resetAt.Valid {
		t := resetAt.Time
		u.ResetExpiresAt = &t
	}
	return &u, nil
}

// Create inserts an identity and populates its ID. Duplicate emails map to
// ErrEmailExists (MySQL error 1062 on the unique index).
func (r *IdentityRepo) Create(ctx context.Context, id *model.Identity) error {
	id.Email = strings.ToLower(strings.TrimSpace(id.Email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO identities (email, password_hash, role, full_name, organization, verified, verify_token) VALUES (?,?,?,?,?,?,?)",
		id.Email, id.PasswordHash, id.Role, id.FullName, id.Organization, id.Verified, id.VerifyToken)
	if err != nil {
		if strings.Contains(err.Error(), "1062") {
			return ErrEmailExists
		}
		return err
	}
	n, err := res.LastInsertId()
	if err != nil {
		return err
	}
	id.ID = uint64(n)
	return nil
}

// GetByEmail fetches an identity by normalized email.
func (r *IdentityRepo) GetByEmail(ctx context.Context, email string) (*model.Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanIdentity(r.DB.QueryRowContext(ctx,
		"SELECT "+identityCols+" FROM identities WHERE email=? LIMIT 1", email))
}

// GetByID fetches an identity by primary key.
func (r *IdentityRepo) GetByID(ctx context.Context, id uint64) (*model.Identity, error) {
	return scanIdentity(r.DB.QueryRowContext(ctx,
		"SELECT "+identityCols+" FROM identities WHERE id=? LIMIT 1", id))
}

// UpdateProfile updates the mutable profile fields.
func (r *IdentityRepo) UpdateProfile(ctx context.Context, id uint64, fullName, organization string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE identities SET full_name=?, organization=?, updated_at=CURRENT_TIMESTAMP WHERE id=?",
		fullName, organization, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetVerified consumes a verification token, marking the matching identity
// verified. Returns the identity id, or ErrNotFound for an unknown or
// already-consumed token.
func (r *IdentityRepo) SetVerified(ctx context.Context, verifyToken string) (uint64, error) {
	var id uint64
	err := r.DB.QueryRowContext(ctx,
		"SELECT id FROM identities WHERE verify_token=? AND verify_token<>'' LIMIT 1",
		verifyToken).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	_, err = r.DB.ExecContext(ctx,
		"UPDATE identities SET verified=1, verify_token='', updated_at=CURRENT_TIMESTAMP WHERE id=?", id)
	return id, err
}

// SetResetToken stores the hash and expiry of a freshly issued reset token,
// replacing any outstanding one.
func (r *IdentityRepo) SetResetToken(ctx context.Context, id uint64, resetHash string, expires time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE identities SET reset_token_hash=?, reset_expires_at=?, updated_at=CURRENT_TIMESTAMP WHERE id=?",
		resetHash, expires, id)
	return err
}

// GetByResetToken resolves an identity from an unexpired reset-token hash.
func (r *IdentityRepo) GetByResetToken(ctx context.Context, resetHash string, now time.Time) (*model.Identity, error) {
	return scanIdentity(r.DB.QueryRowContext(ctx,
		"SELECT "+identityCols+" FROM identities WHERE reset_token_hash=? AND reset_token_hash<>'' AND reset_expires_at > ? LIMIT 1",
		resetHash, now))
}

// UpdatePassword swaps the bcrypt hash and clears any outstanding reset
// token in the same statement, so a consumed reset link cannot be replayed.
func (r *IdentityRepo) UpdatePassword(ctx context.Context, id uint64, passwordHash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE identities SET password_hash=?, reset_token_hash='', reset_expires_at=NULL, updated_at=CURRENT_TIMESTAMP WHERE id=?",
		passwordHash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByRole returns identities of one role ordered by id, for the admin
// account browser.
func (r *IdentityRepo) ListByRole(ctx context.Context, role model.Role) ([]*model.Identity, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+identityCols+" FROM identities WHERE role=? ORDER BY id", role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Identity
	for rows.Next() {
		var (
			u       model.Identity
			resetAt sql.NullTime
		)
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.FullName, &u.Organization,
			&u.Verified, &u.VerifyToken, &u.ResetTokenHash, &resetAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		if resetAt.Valid {
			t := resetAt.Time
			u.ResetExpiresAt = &t
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}
