package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests.
// It keeps the same uniqueness and not-found contract as PostgresStore.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]Principal
	byNorm map[string]int64
	now    func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[int64]Principal),
		byNorm: make(map[string]int64),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) FindByUsername(ctx context.Context, username string) (Principal, error) {
	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byNorm[NormalizeUsername(username)]
	if !ok {
		return Principal{}, NotFoundError{Op: "identity.FindByUsername", Resource: "user"}
	}
	return s.byID[id], nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id int64) (Principal, error) {
	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	if !ok {
		return Principal{}, NotFoundError{Op: "identity.FindByID", Resource: "user"}
	}
	return p, nil
}

func (s *MemoryStore) Insert(ctx context.Context, in Principal) (Principal, error) {
	const op = "identity.Insert"

	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}
	username := strings.TrimSpace(in.Username)
	if username == "" || in.PasswordHash == "" {
		return Principal{}, invalid(op, "username and password hash are required")
	}
	role := in.Role
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return Principal{}, invalid(op, "unknown role")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	norm := NormalizeUsername(username)
	if _, taken := s.byNorm[norm]; taken {
		return Principal{}, ConflictError{Op: op, Field: "username"}
	}

	created := in.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	s.nextID++
	p := Principal{
		ID:           s.nextID,
		Username:     username,
		PasswordHash: in.PasswordHash,
		Role:         role,
		CreatedAt:    created,
	}
	s.byID[p.ID] = p
	s.byNorm[norm] = p.ID
	return p, nil
}

func (s *MemoryStore) Update(ctx context.Context, id int64, c Changes) (Principal, error) {
	const op = "identity.Update"

	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return Principal{}, NotFoundError{Op: op, Resource: "user"}
	}

	oldNorm := NormalizeUsername(p.Username)
	newNorm := oldNorm
	if c.Username != nil {
		u := strings.TrimSpace(*c.Username)
		newNorm = NormalizeUsername(u)
		if owner, taken := s.byNorm[newNorm]; taken && owner != id {
			return Principal{}, ConflictError{Op: op, Field: "username"}
		}
		p.Username = u
	}
	if c.PasswordHash != nil {
		p.PasswordHash = *c.PasswordHash
	}
	if c.Role != nil {
		if !c.Role.Valid() {
			return Principal{}, invalid(op, "unknown role")
		}
		p.Role = *c.Role
	}

	if newNorm != oldNorm {
		delete(s.byNorm, oldNorm)
		s.byNorm[newNorm] = id
	}
	s.byID[id] = p
	return p, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return NotFoundError{Op: "identity.Delete", Resource: "user"}
	}
	delete(s.byNorm, NormalizeUsername(p.Username))
	delete(s.byID, id)
	return nil
}
