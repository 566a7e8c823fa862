// Package pgutil holds small PostgreSQL helpers shared by the adboard stores.
package pgutil

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultSchema is the schema the stores and migrations use unless configured otherwise.
const DefaultSchema = "adboard"

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidIdent reports whether s is a plain, unquoted-safe Postgres identifier.
func ValidIdent(s string) bool {
	return len(s) <= 63 && identRe.MatchString(s)
}

// CheckSchema trims and validates a schema name.
func CheckSchema(schema string) (string, error) {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return "", errors.New("empty schema")
	}
	if !ValidIdent(schema) {
		return "", fmt.Errorf("invalid schema identifier %q", schema)
	}
	return schema, nil
}

// Ident safely quotes a schema-qualified identifier: "schema"."name".
func Ident(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

// QuoteIdent safely quotes a single identifier.
func QuoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// UniqueViolation returns the violated constraint name when err is a unique_violation.
func UniqueViolation(err error) (constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != codeUniqueViolation {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(pgErr.ConstraintName)), true
}

// IsForeignKeyViolation reports whether err is a foreign_key_violation.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation
}

// IsCheckViolation reports whether err is a check_violation.
func IsCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeCheckViolation
}

// IsNoRows reports whether err is pgx.ErrNoRows.
func IsNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }
