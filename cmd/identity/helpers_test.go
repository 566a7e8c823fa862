package identity

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"adboard/cmd/security/password"
	"adboard/cmd/security/token"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testHasher() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func testTokens(t *testing.T) *token.Manager {
	t.Helper()
	m, err := token.NewManager(token.Config{Secret: []byte("identity-test-secret-0123456789ab")})
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	return m
}

// spyHasher counts calls into the wrapped Hasher.
type spyHasher struct {
	Hasher
	hashes   atomic.Int32
	verifies atomic.Int32
}

func (h *spyHasher) Hash(pw string) (string, error) {
	h.hashes.Add(1)
	return h.Hasher.Hash(pw)
}

func (h *spyHasher) Verify(encoded, pw string) bool {
	h.verifies.Add(1)
	return h.Hasher.Verify(encoded, pw)
}

// countingStore counts calls into the wrapped Store.
type countingStore struct {
	Store
	reads  atomic.Int32
	writes atomic.Int32
}

func (s *countingStore) FindByUsername(ctx context.Context, username string) (Principal, error) {
	s.reads.Add(1)
	return s.Store.FindByUsername(ctx, username)
}

func (s *countingStore) FindByID(ctx context.Context, id int64) (Principal, error) {
	s.reads.Add(1)
	return s.Store.FindByID(ctx, id)
}

func (s *countingStore) Insert(ctx context.Context, p Principal) (Principal, error) {
	s.writes.Add(1)
	return s.Store.Insert(ctx, p)
}

func (s *countingStore) Update(ctx context.Context, id int64, c Changes) (Principal, error) {
	s.writes.Add(1)
	return s.Store.Update(ctx, id, c)
}

func (s *countingStore) Delete(ctx context.Context, id int64) error {
	s.writes.Add(1)
	return s.Store.Delete(ctx, id)
}

type fixture struct {
	// clock is read by the service and the resolver; tests may advance it.
	clock    time.Time
	store    *countingStore
	hasher   *spyHasher
	tokens   *token.Manager
	svc      *Service
	resolver *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		clock:  testNow,
		store:  &countingStore{Store: NewMemoryStore()},
		hasher: &spyHasher{Hasher: testHasher()},
		tokens: testTokens(t),
	}
	now := func() time.Time { return f.clock }
	svc, err := NewService(f.store, f.hasher, f.tokens, WithClock(now))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f.svc = svc
	f.resolver = NewResolver(f.tokens, f.store, WithResolverClock(now))
	return f
}

func ptr[T any](v T) *T { return &v }
