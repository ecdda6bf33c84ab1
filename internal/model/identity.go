package model

import (
	"strings"
	"time"
)

// Role tags an identity with its capability set. One identities table holds
// all three variants; the role column is the discriminator, so every
// login/refresh/reset flow is written once and bound per role at the router.
type Role string

const (
	RoleUser  Role = "user"          // event participant
	RoleHost  Role = "host"          // creates events, awaits approval
	RoleAdmin Role = "administrator" // reviews events, browses accounts
)

// NormalizeRole lower-cases a role tag so comparisons downstream of token
// issuance are case-stable. Unknown values come back unchanged (lowered)
// and fail validation at the caller.
func NormalizeRole(s string) Role {
	return Role(strings.ToLower(strings.TrimSpace(s)))
}

// Valid reports whether the role is one of the closed set.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleHost || r == RoleAdmin
}

// Identity mirrors the `identities` table. PasswordHash and the reset/verify
// token columns never appear in API responses; handlers build separate
// response types.
//
// Fields:
//
//	ID             – primary key.
//	Email          – unique, stored lower-cased.
//	PasswordHash   – bcrypt hash.
//	Role           – discriminator over {user, host, administrator}.
//	FullName       – display name supplied at registration.
//	Organization   – optional, hosts only.
//	Verified       – email-verification state.
//	VerifyToken    – outstanding email-verification token ("" once used).
//	ResetTokenHash – SHA-256 of the outstanding password-reset token.
//	ResetExpiresAt – reset token expiry (nil when none outstanding).
type Identity struct {
	ID             uint64
	Email          string
	PasswordHash   string
	Role           Role
	FullName       string
	Organization   string
	Verified       bool
	VerifyToken    string
	ResetTokenHash string
	ResetExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
