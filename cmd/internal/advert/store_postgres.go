package advert

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"adboard/cmd/identity"
	"adboard/cmd/internal/pgutil"
)

// PostgresStore implements Store over PostgreSQL. The pool is owned by the caller.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	ads    string
	users  string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the Postgres schema (default "adboard").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		checked, err := pgutil.CheckSchema(schema)
		if err != nil {
			return fmt.Errorf("advert: %w", err)
		}
		s.schema = checked
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: pgutil.DefaultSchema,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("advert: nil pool")
	}
	st.ads = pgutil.Ident(st.schema, "advertisements")
	st.users = pgutil.Ident(st.schema, "users")
	return st, nil
}

const listingColumns = `a.id, a.title, a.description, a.price, a.owner_id, a.created_at, u.username`

func scanListing(row pgx.Row) (Listing, error) {
	var l Listing
	err := row.Scan(&l.ID, &l.Title, &l.Description, &l.Price, &l.OwnerID, &l.CreatedAt, &l.Author)
	return l, err
}

// Create inserts a and returns it joined with its author.
func (s *PostgresStore) Create(ctx context.Context, a Advert) (Listing, error) {
	const op = "advert.Create"

	l, err := scanListing(s.pool.QueryRow(ctx,
		`WITH a AS (
		     INSERT INTO `+s.ads+` (title, description, price, owner_id)
		     VALUES ($1, $2, $3, $4)
		     RETURNING id, title, description, price, owner_id, created_at
		 )
		 SELECT `+listingColumns+` FROM a JOIN `+s.users+` u ON u.id = a.owner_id`,
		a.Title, a.Description, a.Price, a.OwnerID,
	))
	if err != nil {
		if pgutil.IsForeignKeyViolation(err) {
			return Listing{}, identity.NotFoundError{Op: op, Resource: "user"}
		}
		return Listing{}, s.mapErr(op, err)
	}
	return l, nil
}

// Get returns the listing with id.
func (s *PostgresStore) Get(ctx context.Context, id int64) (Listing, error) {
	const op = "advert.Get"

	l, err := scanListing(s.pool.QueryRow(ctx,
		`SELECT `+listingColumns+`
		   FROM `+s.ads+` a JOIN `+s.users+` u ON u.id = a.owner_id
		  WHERE a.id = $1`,
		id,
	))
	if err != nil {
		return Listing{}, s.mapErr(op, err)
	}
	return l, nil
}

// Update applies p to advertisement id.
func (s *PostgresStore) Update(ctx context.Context, id int64, p Patch) (Listing, error) {
	const op = "advert.Update"

	if p.Empty() {
		return s.Get(ctx, id)
	}

	l, err := scanListing(s.pool.QueryRow(ctx,
		`WITH a AS (
		     UPDATE `+s.ads+` SET
		         title       = COALESCE($2, title),
		         description = COALESCE($3, description),
		         price       = COALESCE($4, price)
		      WHERE id = $1
		  RETURNING id, title, description, price, owner_id, created_at
		 )
		 SELECT `+listingColumns+` FROM a JOIN `+s.users+` u ON u.id = a.owner_id`,
		id, p.Title, p.Description, p.Price,
	))
	if err != nil {
		return Listing{}, s.mapErr(op, err)
	}
	return l, nil
}

// Delete removes advertisement id.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	const op = "advert.Delete"

	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.ads+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(op)
	}
	return nil
}

// Search returns listings matching f, newest first.
func (s *PostgresStore) Search(ctx context.Context, f SearchFilter) ([]Listing, error) {
	const op = "advert.Search"

	f = clampPage(f)

	rows, err := s.pool.Query(ctx,
		`SELECT `+listingColumns+`
		   FROM `+s.ads+` a JOIN `+s.users+` u ON u.id = a.owner_id
		  WHERE ($1::text = '' OR a.title ILIKE '%' || $1::text || '%' ESCAPE '\')
		    AND ($2::text = '' OR u.username ILIKE '%' || $2::text || '%' ESCAPE '\')
		  ORDER BY a.created_at DESC, a.id DESC
		  LIMIT $3 OFFSET $4`,
		escapeLike(f.Title), escapeLike(f.Author), f.Limit, f.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (Listing, error) {
		return scanListing(r)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *PostgresStore) mapErr(op string, err error) error {
	switch {
	case pgutil.IsNoRows(err):
		return notFound(op)
	case pgutil.IsCheckViolation(err):
		return identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "constraint violated", Err: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern with ESCAPE '\'.
func escapeLike(s string) string { return likeEscaper.Replace(s) }
