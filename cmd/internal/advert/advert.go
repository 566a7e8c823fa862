// Package advert implements classified advertisements: storage, search and the
// ownership-guarded service used by the HTTP API.
package advert

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"adboard/cmd/identity"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 5000

	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Advert is a stored advertisement.
type Advert struct {
	ID          int64
	Title       string
	Description string
	Price       int64
	OwnerID     int64
	CreatedAt   time.Time
}

// Listing is the read-side projection of an Advert joined with its author's username.
type Listing struct {
	Advert
	Author string
}

// Draft is the input for a new advertisement.
type Draft struct {
	Title       string
	Description string
	Price       int64
}

// Patch is a partial advertisement update. Nil fields are left unchanged.
type Patch struct {
	Title       *string
	Description *string
	Price       *int64
}

// Empty reports whether p changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Price == nil
}

// SearchFilter selects listings. Title and Author are case-insensitive substrings;
// empty means no constraint.
type SearchFilter struct {
	Title  string
	Author string
	Limit  int
	Offset int
}

// Store is the advertisement persistence boundary.
//
// Contract:
// - reads return Listings with Author filled from the owner's username;
// - missing rows return identity.NotFoundError;
// - Search orders newest first (created_at, then id, descending).
type Store interface {
	Create(ctx context.Context, a Advert) (Listing, error)
	Get(ctx context.Context, id int64) (Listing, error)
	Update(ctx context.Context, id int64, p Patch) (Listing, error)
	Delete(ctx context.Context, id int64) error
	Search(ctx context.Context, f SearchFilter) ([]Listing, error)
}

func invalid(op, msg string) error {
	return identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: msg}
}

func notFound(op string) error {
	return identity.NotFoundError{Op: op, Resource: "advertisement"}
}

func validateTitle(op, s string) error {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return invalid(op, "title is required")
	}
	if n > MaxTitleLength {
		return invalid(op, "title too long")
	}
	return nil
}

func validateDescription(op, s string) error {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return invalid(op, "description is required")
	}
	if n > MaxDescriptionLength {
		return invalid(op, "description too long")
	}
	return nil
}

func validatePrice(op string, p int64) error {
	if p < 0 {
		return invalid(op, "price must not be negative")
	}
	return nil
}

// normalizePatch trims text fields and validates every set field.
func normalizePatch(op string, p Patch) (Patch, error) {
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if err := validateTitle(op, t); err != nil {
			return Patch{}, err
		}
		p.Title = &t
	}
	if p.Description != nil {
		d := strings.TrimSpace(*p.Description)
		if err := validateDescription(op, d); err != nil {
			return Patch{}, err
		}
		p.Description = &d
	}
	if p.Price != nil {
		if err := validatePrice(op, *p.Price); err != nil {
			return Patch{}, err
		}
	}
	return p, nil
}

// clampPage applies the default and maximum page size and rejects negative offsets.
func clampPage(f SearchFilter) SearchFilter {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultPageSize
	case f.Limit > MaxPageSize:
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Title = strings.TrimSpace(f.Title)
	f.Author = strings.TrimSpace(f.Author)
	return f
}
