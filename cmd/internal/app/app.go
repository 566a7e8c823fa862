// Package app wires the adboard server runtime: config, logging, storage, HTTP routes
// and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"adboard/cmd/identity"
	"adboard/cmd/internal/advert"
	"adboard/cmd/internal/api"
	"adboard/cmd/internal/migrations"
	"adboard/cmd/security/password"
	"adboard/cmd/security/token"
)

// App is the adboard server runtime: it owns the DB pool, the services and the HTTP handler.
type App struct {
	cfg Config
	log Logger

	dbPool *pgxpool.Pool

	users   *identity.Service
	handler http.Handler
}

// New constructs a fully wired App. With an empty DatabaseURL the in-memory stores are used.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, nil)
	}

	hasher, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	tcfg, err := TokenConfig(cfg, log)
	if err != nil {
		return nil, err
	}
	tokens, err := token.NewManager(tcfg)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log}

	var (
		userStore identity.Store
		adStore   advert.Store
	)
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		mem := identity.NewMemoryStore()
		userStore, adStore = mem, advert.NewMemoryStore(mem)
	} else {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.dbPool = pool
		log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)

		if cfg.AutoMigrate {
			if err := migrations.Up(ctx, pool, cfg.DBSchema, log); err != nil {
				a.Close()
				return nil, err
			}
		}

		us, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
		if err != nil {
			a.Close()
			return nil, err
		}
		as, err := advert.NewPostgresStore(pool, advert.WithSchema(cfg.DBSchema))
		if err != nil {
			a.Close()
			return nil, err
		}
		userStore, adStore = us, as
	}

	users, err := identity.NewService(userStore, hasher, tokens, identity.WithLogger(log))
	if err != nil {
		a.Close()
		return nil, err
	}
	ads, err := advert.NewService(adStore, advert.WithLogger(log))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.users = users

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	apiHandler, err := api.NewHandler(api.Config{
		MaxBodyBytes:       cfg.MaxBodyBytes,
		TrustProxy:         cfg.TrustProxy,
		LoginRatePerSecond: cfg.LoginRatePerSecond,
		LoginBurst:         cfg.LoginBurst,
	}, users, identity.NewResolver(tokens, userStore), ads,
		api.WithLogger(log),
		api.WithMetrics(api.NewMetrics(reg)),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.handler = newRouter(routerDeps{
		log:     log,
		cfg:     cfg,
		dbPool:  a.dbPool,
		api:     apiHandler.Routes(),
		metrics: newHTTPMetrics(reg),
		gather:  reg,
	})
	return a, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Users returns the identity service, used by operator commands.
func (a *App) Users() *identity.Service { return a.users }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbPool != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return fmt.Errorf("listen: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

// Close releases the DB pool. Safe to call more than once.
func (a *App) Close() {
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
