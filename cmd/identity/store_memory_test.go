package identity

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CRUD(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	p, err := s.Insert(ctx, Principal{Username: "Alice", PasswordHash: "h1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)
	assert.Equal(t, RoleUser, p.Role)
	assert.False(t, p.CreatedAt.IsZero())

	stamped, err := s.Insert(ctx, Principal{Username: "stamped", PasswordHash: "h", CreatedAt: testNow})
	require.NoError(t, err)
	assert.Equal(t, testNow, stamped.CreatedAt)

	got, err := s.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	got, err = s.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Username)

	upd, err := s.Update(ctx, p.ID, Changes{Username: ptr("alicia"), Role: ptr(RoleAdmin)})
	require.NoError(t, err)
	assert.Equal(t, "alicia", upd.Username)
	assert.Equal(t, RoleAdmin, upd.Role)
	assert.Equal(t, "h1", upd.PasswordHash)

	_, err = s.FindByUsername(ctx, "alice")
	assert.True(t, IsNotFound(err), "old name must be released")

	require.NoError(t, s.Delete(ctx, p.ID))
	_, err = s.FindByID(ctx, p.ID)
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(s.Delete(ctx, p.ID)))
}

func TestMemoryStore_Conflicts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a, err := s.Insert(ctx, Principal{Username: "alice", PasswordHash: "h"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, Principal{Username: "bob", PasswordHash: "h"})
	require.NoError(t, err)

	_, err = s.Insert(ctx, Principal{Username: " ALICE ", PasswordHash: "h"})
	assert.True(t, IsConflict(err))

	_, err = s.Update(ctx, a.ID, Changes{Username: ptr("Bob")})
	assert.True(t, IsConflict(err))

	// Renaming to a different case of one's own name is fine.
	_, err = s.Update(ctx, a.ID, Changes{Username: ptr("ALICE")})
	assert.NoError(t, err)
}

func TestMemoryStore_ConcurrentRegistrationOneWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const n = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Insert(ctx, Principal{Username: "same", PasswordHash: "h"}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
