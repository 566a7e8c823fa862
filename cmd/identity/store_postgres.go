package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"adboard/cmd/internal/pgutil"
)

// PostgresStore implements Store over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store does not close it.
// - Schema/table identifiers are quoted via pgx.Identifier.
// - Username uniqueness is enforced by uq_users_username_norm, not by a pre-check.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	users  string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the Postgres schema used by the store (default "adboard").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		checked, err := pgutil.CheckSchema(schema)
		if err != nil {
			return fmt.Errorf("identity: %w", err)
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
		return nil, fmt.Errorf("identity: nil pool")
	}
	st.users = pgutil.Ident(st.schema, "users")
	return st, nil
}

const principalColumns = `id, username, password_hash, role, created_at`

func scanPrincipal(row pgx.Row) (Principal, error) {
	var (
		p    Principal
		role string
	)
	if err := row.Scan(&p.ID, &p.Username, &p.PasswordHash, &role, &p.CreatedAt); err != nil {
		return Principal{}, err
	}
	p.Role = Role(role)
	return p, nil
}

// FindByUsername looks up a principal by case-insensitive username.
func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (Principal, error) {
	const op = "identity.FindByUsername"

	norm := NormalizeUsername(username)
	if norm == "" {
		return Principal{}, NotFoundError{Op: op, Resource: "user"}
	}

	p, err := scanPrincipal(s.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM `+s.users+` WHERE username_norm = $1`,
		norm,
	))
	if err != nil {
		if pgutil.IsNoRows(err) {
			return Principal{}, NotFoundError{Op: op, Resource: "user"}
		}
		return Principal{}, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// FindByID looks up a principal by id.
func (s *PostgresStore) FindByID(ctx context.Context, id int64) (Principal, error) {
	const op = "identity.FindByID"

	p, err := scanPrincipal(s.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM `+s.users+` WHERE id = $1`,
		id,
	))
	if err != nil {
		if pgutil.IsNoRows(err) {
			return Principal{}, NotFoundError{Op: op, Resource: "user"}
		}
		return Principal{}, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// Insert creates a principal. ID is assigned by the database, and so is
// CreatedAt when in leaves it zero.
func (s *PostgresStore) Insert(ctx context.Context, in Principal) (Principal, error) {
	const op = "identity.Insert"

	username := strings.TrimSpace(in.Username)
	if username == "" || in.PasswordHash == "" {
		return Principal{}, invalid(op, "username and password hash are required")
	}
	role := in.Role
	if role == "" {
		role = RoleUser
	}

	var created *time.Time
	if !in.CreatedAt.IsZero() {
		created = &in.CreatedAt
	}

	p, err := scanPrincipal(s.pool.QueryRow(ctx,
		`INSERT INTO `+s.users+` (username, username_norm, password_hash, role, created_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5::timestamptz, now()))
		 RETURNING `+principalColumns,
		username, NormalizeUsername(username), in.PasswordHash, string(role), created,
	))
	if err != nil {
		return Principal{}, s.mapWriteErr(op, err)
	}
	return p, nil
}

// Update applies c to the principal with id atomically.
func (s *PostgresStore) Update(ctx context.Context, id int64, c Changes) (Principal, error) {
	const op = "identity.Update"

	if c.Empty() {
		return s.FindByID(ctx, id)
	}

	var username, usernameNorm, role *string
	if c.Username != nil {
		u := strings.TrimSpace(*c.Username)
		n := NormalizeUsername(u)
		username, usernameNorm = &u, &n
	}
	if c.Role != nil {
		r := string(*c.Role)
		role = &r
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Principal{}, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := scanPrincipal(tx.QueryRow(ctx,
		`UPDATE `+s.users+` SET
		     username      = COALESCE($2, username),
		     username_norm = COALESCE($3, username_norm),
		     password_hash = COALESCE($4, password_hash),
		     role          = COALESCE($5, role)
		   WHERE id = $1
		   RETURNING `+principalColumns,
		id, username, usernameNorm, c.PasswordHash, role,
	))
	if err != nil {
		if pgutil.IsNoRows(err) {
			return Principal{}, NotFoundError{Op: op, Resource: "user"}
		}
		return Principal{}, s.mapWriteErr(op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Principal{}, fmt.Errorf("%s: commit: %w", op, err)
	}
	return p, nil
}

// Delete removes the principal; advertisements cascade via the foreign key.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	const op = "identity.Delete"

	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.users+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

func (s *PostgresStore) mapWriteErr(op string, err error) error {
	if c, ok := pgutil.UniqueViolation(err); ok {
		field := "unique"
		if c == "uq_users_username_norm" || strings.Contains(c, "username") {
			field = "username"
		}
		return ConflictError{Op: op, Field: field}
	}
	if pgutil.IsCheckViolation(err) {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "constraint violated", Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
