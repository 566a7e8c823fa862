package identity

import (
	"context"
	"strings"
	"time"
)

// Role is a principal's authorization role.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

// ParseRole parses a role name. An empty name yields RoleUser.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RoleUser, nil
	}
	r := Role(s)
	if !r.Valid() {
		return "", invalid("identity.ParseRole", "unknown role")
	}
	return r, nil
}

// Principal is adboard's canonical security principal.
// PasswordHash is opaque and must never leave the service boundary.
type Principal struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// IsAdmin reports whether p holds the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// Changes is a partial update applied by Store.Update. Nil fields are left unchanged.
// PasswordHash is always an already-hashed value.
type Changes struct {
	Username     *string
	PasswordHash *string
	Role         *Role
}

// Empty reports whether c changes nothing.
func (c Changes) Empty() bool {
	return c.Username == nil && c.PasswordHash == nil && c.Role == nil
}

// Store is the principal persistence boundary. Each call is its own transaction.
//
// Contract:
// - lookups by username are case-insensitive (normalized form);
// - Insert ignores ID, keeps a non-zero CreatedAt and stamps the current time otherwise;
// - Insert and Update return ConflictError{Field: "username"} on a duplicate;
// - missing rows return NotFoundError;
// - Delete removes the principal's advertisements as well.
type Store interface {
	FindByUsername(ctx context.Context, username string) (Principal, error)
	FindByID(ctx context.Context, id int64) (Principal, error)
	Insert(ctx context.Context, p Principal) (Principal, error)
	Update(ctx context.Context, id int64, c Changes) (Principal, error)
	Delete(ctx context.Context, id int64) error
}
