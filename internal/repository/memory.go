package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/event-registration/internal/model"
)

// In-memory implementations of IdentityStore and TokenStore. They mirror
// the MySQL semantics exactly (strict expiry, conditional rotation) and
// exist so handler and middleware tests run without a database.

// MemoryIdentityStore keeps identities in a map guarded by a mutex.
type MemoryIdentityStore struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]*model.Identity
}

func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{nextID: 1, byID: map[uint64]*model.Identity{}}
}

func (s *MemoryIdentityStore) Create(_ context.Context, id *model.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id.Email = strings.ToLower(strings.TrimSpace(id.Email))
	for _, u := range s.byID {
		if u.Email == id.Email {
			return ErrEmailExists
		}
	}
	id.ID = s.nextID
	s.nextID++
	now := time.Now().UTC()
	id.CreatedAt, id.UpdatedAt = now, now
	cp := *id
	s.byID[id.ID] = &cp
	return nil
}

func (s *MemoryIdentityStore) GetByEmail(_ context.Context, email string) (*model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryIdentityStore) GetByID(_ context.Context, id uint64) (*model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryIdentityStore) UpdateProfile(_ context.Context, id uint64, fullName, organization string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.FullName, u.Organization = fullName, organization
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryIdentityStore) SetVerified(_ context.Context, verifyToken string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.VerifyToken != "" && u.VerifyToken == verifyToken {
			u.Verified = true
			u.VerifyToken = ""
			return u.ID, nil
		}
	}
	return 0, ErrNotFound
}

func (s *MemoryIdentityStore) SetResetToken(_ context.Context, id uint64, resetHash string, expires time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.ResetTokenHash = resetHash
	exp := expires
	u.ResetExpiresAt = &exp
	return nil
}

func (s *MemoryIdentityStore) GetByResetToken(_ context.Context, resetHash string, now time.Time) (*model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.ResetTokenHash != "" && u.ResetTokenHash == resetHash &&
			u.ResetExpiresAt != nil && u.ResetExpiresAt.After(now) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryIdentityStore) UpdatePassword(_ context.Context, id uint64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.ResetTokenHash = ""
	u.ResetExpiresAt = nil
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryIdentityStore) ListByRole(_ context.Context, role model.Role) ([]*model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Identity
	for id := uint64(1); id < s.nextID; id++ {
		if u, ok := s.byID[id]; ok && u.Role == role {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

// MemoryTokenStore keeps refresh tokens keyed by hash under one mutex, so
// Rotate is atomic the same way the SQL conditional UPDATE is.
type MemoryTokenStore struct {
	mu     sync.Mutex
	nextID uint64
	byHash map[string]*model.RefreshToken
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{nextID: 1, byHash: map[string]*model.RefreshToken{}}
}

func (s *MemoryTokenStore) Save(_ context.Context, identityID uint64, role model.Role, tokenHash string, expires time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byHash[tokenHash] = &model.RefreshToken{
		ID:         s.nextID,
		IdentityID: identityID,
		Role:       role,
		TokenHash:  tokenHash,
		ExpiresAt:  expires,
		CreatedAt:  time.Now().UTC(),
	}
	s.nextID++
	return nil
}

// live reports validity with the strict boundary: a token is dead at
// exactly its expiry instant.
func live(t *model.RefreshToken, now time.Time) bool {
	return now.Before(t.ExpiresAt)
}

func (s *MemoryTokenStore) Lookup(_ context.Context, tokenHash string) (*model.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byHash[tokenHash]
	if !ok || !live(t, time.Now().UTC()) {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryTokenStore) Rotate(_ context.Context, oldHash, newHash string, newExpires time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byHash[oldHash]
	if !ok || !live(t, time.Now().UTC()) {
		return ErrNotFound
	}
	delete(s.byHash, oldHash)
	t.TokenHash = newHash
	t.ExpiresAt = newExpires
	s.byHash[newHash] = t
	return nil
}

func (s *MemoryTokenStore) Revoke(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byHash, tokenHash)
	return nil
}

func (s *MemoryTokenStore) RevokeAllForIdentity(_ context.Context, identityID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, t := range s.byHash {
		if t.IdentityID == identityID {
			delete(s.byHash, h)
		}
	}
	return nil
}

func (s *MemoryTokenStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for h, t := range s.byHash {
		if !live(t, now) {
			delete(s.byHash, h)
			n++
		}
	}
	return n, nil
}
