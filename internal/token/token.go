// Package token issues and verifies the two credentials of the session
// subsystem: short-lived signed access tokens and long-lived opaque refresh
// tokens. Everything here is pure (no storage, no clocks beyond time.Now)
// so the refresh endpoint can mint both tokens before committing anything.
package token

import (
	"crypto/rand"   // secure randomness for refresh tokens
	"crypto/sha256" // refresh tokens are stored hashed
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/event-registration/internal/model"
)

// ErrExpired is returned by ParseAccess for a structurally valid token whose
// exp has passed. Callers surface it differently from a malformed token so
// clients know a silent refresh is worth attempting.
var ErrExpired = errors.New("token expired")

// Claims is the payload carried by an access token. Role is always
// lower-cased before signing, which makes every downstream role comparison
// case-stable.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Access bundles a signed access token with its expiry so handlers can echo
// the expiry to clients without re-parsing.
type Access struct {
	Token string
	Exp   time.Time
}

// Refresh holds the raw refresh token returned to the client and its
// expiry. Only HashRefresh(Raw) is ever persisted.
type Refresh struct {
	Raw string
	Exp time.Time
}

// NewAccess builds and signs an HS256 JWT for an identity. The subject is
// the identity id, the role claim is normalized to lower case.
func NewAccess(secret string, identityID uint64, role model.Role, ttl time.Duration) (Access, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Role: string(model.NormalizeRole(string(role))),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", identityID),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return Access{}, err
	}
	return Access{Token: signed, Exp: exp}, nil
}

// ParseAccess verifies signature and expiry and returns the claims.
// An expired-but-otherwise-valid token yields ErrExpired; every other
// failure collapses into the wrapped parse error.
func ParseAccess(secret, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, err
	}
	return claims, nil
}

// NewRefresh returns a cryptographically random opaque token (96 hex chars)
// and its expiry.
func NewRefresh(ttl time.Duration) (Refresh, error) {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		return Refresh{}, err
	}
	return Refresh{
		Raw: hex.EncodeToString(buf),
		Exp: time.Now().UTC().Add(ttl),
	}, nil
}

// HashRefresh returns the SHA-256 hex digest of a raw refresh token, the
// only form the store ever sees.
func HashRefresh(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
