package advert

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"adboard/cmd/identity"
)

// OwnerLookup resolves advertisement owners. identity.Store satisfies it.
type OwnerLookup interface {
	FindByID(ctx context.Context, id int64) (identity.Principal, error)
}

// MemoryStore is an in-process Store for development and tests.
// Advertisements whose owner no longer exists are treated as deleted, which
// mirrors the ON DELETE CASCADE of the Postgres schema. They are dropped from
// the map the first time a lookup finds the owner gone; owner IDs are never
// reused, so the drop cannot hit a later account.
type MemoryStore struct {
	owners OwnerLookup

	mu     sync.RWMutex
	nextID int64
	ads    map[int64]Advert
	now    func() time.Time
}

// NewMemoryStore returns an empty MemoryStore backed by owners for author names.
func NewMemoryStore(owners OwnerLookup) *MemoryStore {
	return &MemoryStore{
		owners: owners,
		ads:    make(map[int64]Advert),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Create(ctx context.Context, a Advert) (Listing, error) {
	const op = "advert.Create"

	owner, err := s.owners.FindByID(ctx, a.OwnerID)
	if err != nil {
		if identity.IsNotFound(err) {
			return Listing{}, identity.NotFoundError{Op: op, Resource: "user"}
		}
		return Listing{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	a.ID = s.nextID
	a.CreatedAt = s.now()
	s.ads[a.ID] = a
	return Listing{Advert: a, Author: owner.Username}, nil
}

func (s *MemoryStore) Get(ctx context.Context, id int64) (Listing, error) {
	s.mu.RLock()
	a, ok := s.ads[id]
	s.mu.RUnlock()
	if !ok {
		return Listing{}, notFound("advert.Get")
	}
	return s.join(ctx, "advert.Get", a)
}

func (s *MemoryStore) Update(ctx context.Context, id int64, p Patch) (Listing, error) {
	const op = "advert.Update"

	// Check the owner first so an orphaned advert is not resurrected.
	cur, err := s.Get(ctx, id)
	if err != nil {
		return Listing{}, err
	}

	s.mu.Lock()
	a, ok := s.ads[id]
	if !ok {
		s.mu.Unlock()
		return Listing{}, notFound(op)
	}
	if p.Title != nil {
		a.Title = *p.Title
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	if p.Price != nil {
		a.Price = *p.Price
	}
	s.ads[id] = a
	s.mu.Unlock()

	return Listing{Advert: a, Author: cur.Author}, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	const op = "advert.Delete"

	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ads[id]; !ok {
		return notFound(op)
	}
	delete(s.ads, id)
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, f SearchFilter) ([]Listing, error) {
	f = clampPage(f)
	title := strings.ToLower(f.Title)
	author := strings.ToLower(f.Author)

	s.mu.RLock()
	snapshot := make([]Advert, 0, len(s.ads))
	for _, a := range s.ads {
		snapshot = append(snapshot, a)
	}
	s.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool {
		if !snapshot[i].CreatedAt.Equal(snapshot[j].CreatedAt) {
			return snapshot[i].CreatedAt.After(snapshot[j].CreatedAt)
		}
		return snapshot[i].ID > snapshot[j].ID
	})

	out := make([]Listing, 0)
	skipped := 0
	for _, a := range snapshot {
		if title != "" && !strings.Contains(strings.ToLower(a.Title), title) {
			continue
		}
		l, err := s.join(ctx, "advert.Search", a)
		if identity.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if author != "" && !strings.Contains(strings.ToLower(l.Author), author) {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		out = append(out, l)
		if len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) join(ctx context.Context, op string, a Advert) (Listing, error) {
	owner, err := s.owners.FindByID(ctx, a.OwnerID)
	if err != nil {
		if identity.IsNotFound(err) {
			s.dropOwner(a.OwnerID)
			return Listing{}, notFound(op)
		}
		return Listing{}, err
	}
	return Listing{Advert: a, Author: owner.Username}, nil
}

// dropOwner removes every advertisement of ownerID.
func (s *MemoryStore) dropOwner(ownerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.ads {
		if a.OwnerID == ownerID {
			delete(s.ads, id)
		}
	}
}
