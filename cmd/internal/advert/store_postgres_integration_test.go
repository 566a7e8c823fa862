package advert

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adboard/cmd/identity"
	"adboard/cmd/internal/pgtest"
)

// Integration tests are opt-in and require ADBOARD_DATABASE_URL.

type pgWorld struct {
	users *identity.PostgresStore
	ads   *PostgresStore
}

func newPgWorld(t *testing.T) pgWorld {
	t.Helper()

	pool := pgtest.OpenPool(t)
	schema := pgtest.Schema(t, pool)

	users, err := identity.NewPostgresStore(pool, identity.WithSchema(schema))
	require.NoError(t, err)
	ads, err := NewPostgresStore(pool, WithSchema(schema))
	require.NoError(t, err)
	return pgWorld{users: users, ads: ads}
}

func TestPostgresStore_CRUD(t *testing.T) {
	t.Parallel()

	w := newPgWorld(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	alice, err := w.users.Insert(ctx, identity.Principal{Username: "alice", PasswordHash: "h"})
	require.NoError(t, err)

	l, err := w.ads.Create(ctx, Advert{Title: "Bike", Description: "Red", Price: 100, OwnerID: alice.ID})
	require.NoError(t, err)
	assert.Positive(t, l.ID)
	assert.Equal(t, "alice", l.Author)
	assert.False(t, l.CreatedAt.IsZero())

	got, err := w.ads.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, l.ID, got.ID)
	assert.Equal(t, "alice", got.Author)

	title := "Blue bike"
	upd, err := w.ads.Update(ctx, l.ID, Patch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Blue bike", upd.Title)
	assert.Equal(t, int64(100), upd.Price)
	assert.Equal(t, "alice", upd.Author)

	require.NoError(t, w.ads.Delete(ctx, l.ID))
	_, err = w.ads.Get(ctx, l.ID)
	assert.ErrorIs(t, err, identity.ErrNotFound)
	assert.ErrorIs(t, w.ads.Delete(ctx, l.ID), identity.ErrNotFound)
	_, err = w.ads.Update(ctx, l.ID, Patch{Title: &title})
	assert.ErrorIs(t, err, identity.ErrNotFound)
}

func TestPostgresStore_CreateUnknownOwner(t *testing.T) {
	t.Parallel()

	w := newPgWorld(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	_, err := w.ads.Create(ctx, Advert{Title: "x", Description: "y", OwnerID: 424242})
	assert.ErrorIs(t, err, identity.ErrNotFound)
}

func TestPostgresStore_NegativePriceRejectedByCheck(t *testing.T) {
	t.Parallel()

	w := newPgWorld(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	alice, err := w.users.Insert(ctx, identity.Principal{Username: "alice", PasswordHash: "h"})
	require.NoError(t, err)

	_, err = w.ads.Create(ctx, Advert{Title: "x", Description: "y", Price: -1, OwnerID: alice.ID})
	assert.ErrorIs(t, err, identity.ErrInvalidInput)
}

func TestPostgresStore_SearchJoinAndCascade(t *testing.T) {
	t.Parallel()

	w := newPgWorld(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	alice, err := w.users.Insert(ctx, identity.Principal{Username: "Alice", PasswordHash: "h"})
	require.NoError(t, err)
	bob, err := w.users.Insert(ctx, identity.Principal{Username: "bob", PasswordHash: "h"})
	require.NoError(t, err)

	for _, a := range []Advert{
		{Title: "Red bike", Description: "d", OwnerID: alice.ID},
		{Title: "100% cotton shirt", Description: "d", OwnerID: alice.ID},
		{Title: "Bike_rack", Description: "d", OwnerID: bob.ID},
		{Title: "Sofa", Description: "d", OwnerID: bob.ID},
	} {
		_, err := w.ads.Create(ctx, a)
		require.NoError(t, err)
	}

	all, err := w.ads.Search(ctx, SearchFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "Sofa", all[0].Title)

	byAuthor, err := w.ads.Search(ctx, SearchFilter{Author: "alice"})
	require.NoError(t, err)
	assert.Len(t, byAuthor, 2)

	bikes, err := w.ads.Search(ctx, SearchFilter{Title: "BIKE"})
	require.NoError(t, err)
	assert.Len(t, bikes, 2)

	// Wildcards in the filter match literally.
	pct, err := w.ads.Search(ctx, SearchFilter{Title: "100%"})
	require.NoError(t, err)
	assert.Len(t, pct, 1)
	under, err := w.ads.Search(ctx, SearchFilter{Title: "_"})
	require.NoError(t, err)
	assert.Len(t, under, 1)

	page, err := w.ads.Search(ctx, SearchFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, all[1].ID, page[0].ID)

	require.NoError(t, w.users.Delete(ctx, bob.ID))
	left, err := w.ads.Search(ctx, SearchFilter{})
	require.NoError(t, err)
	assert.Len(t, left, 2, "bob's advertisements cascade")
}
