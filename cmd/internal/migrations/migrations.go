// Package migrations embeds the adboard SQL schema and applies it with goose.
//
// Migrations are written without schema qualifiers. They run on a dedicated
// pool whose search_path is pinned to the target schema, so the same files
// serve the production schema and throwaway test schemas.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"adboard/cmd/internal/pgutil"
)

//go:embed *.sql
var FS embed.FS

// goose keeps its configuration in package globals.
var gooseMu sync.Mutex

// Up applies all pending migrations to schema, creating the schema if needed.
func Up(ctx context.Context, pool *pgxpool.Pool, schema string, log *slog.Logger) error {
	return run(ctx, pool, schema, log, func(db *sql.DB) error {
		return goose.UpContext(ctx, db, ".")
	})
}

// Down rolls back the most recent migration in schema.
func Down(ctx context.Context, pool *pgxpool.Pool, schema string, log *slog.Logger) error {
	return run(ctx, pool, schema, log, func(db *sql.DB) error {
		return goose.DownContext(ctx, db, ".")
	})
}

// Version returns the current schema version (0 when nothing is applied).
func Version(ctx context.Context, pool *pgxpool.Pool, schema string) (int64, error) {
	var v int64
	err := run(ctx, pool, schema, nil, func(db *sql.DB) error {
		var err error
		v, err = goose.GetDBVersionContext(ctx, db)
		return err
	})
	return v, err
}

func run(ctx context.Context, pool *pgxpool.Pool, schema string, log *slog.Logger, fn func(*sql.DB) error) error {
	if pool == nil {
		return fmt.Errorf("migrations: nil pool")
	}
	schema, err := pgutil.CheckSchema(schema)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	if _, err := pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+pgutil.QuoteIdent(schema)); err != nil {
		return fmt.Errorf("migrations: create schema: %w", err)
	}

	cfg := pool.Config().Copy()
	cfg.MaxConns = 2
	cfg.MinConns = 0
	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema

	scoped, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("migrations: open pool: %w", err)
	}
	defer scoped.Close()

	db := stdlib.OpenDBFromPool(scoped)
	defer func() { _ = db.Close() }()

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(FS)
	goose.SetLogger(gooseLogger{log: log.With("schema", schema)})
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("migrations: dialect: %w", err)
	}

	if err := fn(db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

type gooseLogger struct {
	log *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Info("db.migrate", "detail", fmt.Sprintf(format, v...))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Error("db.migrate.fatal", "detail", fmt.Sprintf(format, v...))
}
