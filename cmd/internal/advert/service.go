package advert

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"adboard/cmd/identity"
)

// Service implements advertisement CRUD and search.
// Reads are public; create needs an authenticated principal; update and delete
// pass identity.Authorize against the advertisement owner.
type Service struct {
	store Store
	log   *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService builds a Service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("advert: nil store")
	}
	s := &Service{store: store, log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Create stores a new advertisement owned by actor.
func (s *Service) Create(ctx context.Context, actor identity.Principal, d Draft) (Listing, error) {
	const op = "advert.Create"

	if actor.ID <= 0 {
		return Listing{}, identity.OpError{Op: op, Kind: identity.ErrUnauthenticated}
	}

	title := strings.TrimSpace(d.Title)
	desc := strings.TrimSpace(d.Description)
	if err := validateTitle(op, title); err != nil {
		return Listing{}, err
	}
	if err := validateDescription(op, desc); err != nil {
		return Listing{}, err
	}
	if err := validatePrice(op, d.Price); err != nil {
		return Listing{}, err
	}

	l, err := s.store.Create(ctx, Advert{
		Title:       title,
		Description: desc,
		Price:       d.Price,
		OwnerID:     actor.ID,
	})
	if err != nil {
		return Listing{}, err
	}

	s.log.InfoContext(ctx, "advert.created", "advert_id", l.ID, "owner_id", l.OwnerID)
	return l, nil
}

// Get returns the listing with id.
func (s *Service) Get(ctx context.Context, id int64) (Listing, error) {
	return s.store.Get(ctx, id)
}

// Update applies p to advertisement id on behalf of actor.
func (s *Service) Update(ctx context.Context, actor identity.Principal, id int64, p Patch) (Listing, error) {
	const op = "advert.Update"

	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return Listing{}, err
	}
	if err := identity.Authorize(actor, cur.OwnerID); err != nil {
		return Listing{}, err
	}

	p, err = normalizePatch(op, p)
	if err != nil {
		return Listing{}, err
	}
	if p.Empty() {
		return cur, nil
	}

	l, err := s.store.Update(ctx, id, p)
	if err != nil {
		return Listing{}, err
	}

	s.log.InfoContext(ctx, "advert.updated", "advert_id", id, "actor_id", actor.ID)
	return l, nil
}

// Delete removes advertisement id on behalf of actor.
func (s *Service) Delete(ctx context.Context, actor identity.Principal, id int64) error {
	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := identity.Authorize(actor, cur.OwnerID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "advert.deleted", "advert_id", id, "actor_id", actor.ID)
	return nil
}

// Search returns listings matching f, newest first, with bounded page size.
func (s *Service) Search(ctx context.Context, f SearchFilter) ([]Listing, error) {
	return s.store.Search(ctx, clampPage(f))
}
