package model

import "time"

// RefreshToken models a row in the `refresh_tokens` table. The raw token
// never touches the database; only its SHA-256 hex digest is stored, so a
// leaked table cannot be replayed. A refresh rotates the matched row in
// place (new hash, new expiry) rather than appending, which keeps at most
// one stored token per issuance while still allowing one row per device.
//
// Fields:
//
//	ID         – primary key.
//	IdentityID – owning identity.
//	Role       – role tag carried alongside for audit queries.
//	TokenHash  – SHA-256 hex digest of the opaque token value.
//	ExpiresAt  – absolute expiry; a token is valid strictly before it.
//	CreatedAt  – timestamp of first issuance for this row.
type RefreshToken struct {
	ID         uint64
	IdentityID uint64
	Role       Role
	TokenHash  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}
