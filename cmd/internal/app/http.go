package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type routerDeps struct {
	log     Logger
	cfg     Config
	dbPool  *pgxpool.Pool
	api     http.Handler
	metrics *httpMetrics
	gather  prometheus.Gatherer
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		WithRequestID,
		WithSecurityHeaders,
		WithRequestLogging(d.log, d.metrics),
		WithRecover(d.log),
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.cfg.ReadinessRequireDB && d.dbPool == nil {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if d.dbPool != nil {
			if err := PingDB(r.Context(), d.dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				d.log.InfoContext(r.Context(), "readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if d.gather != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.gather, promhttp.HandlerOpts{}))
	}

	r.Mount("/", d.api)
	return r
}
