package app

import (
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	authapi "lodge/cmd/internal/auth/api"
)

// routes is everything the HTTP surface needs from the App.
type routes struct {
	log    Logger
	cfg    Config
	dbPool *pgxpool.Pool

	auth     *authapi.Handler
	registry *prometheus.Registry
}

func registerHTTP(mux *http.ServeMux, rt routes) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if rt.cfg.ReadinessRequireDB && rt.dbPool == nil {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if rt.dbPool != nil {
			if err := PingDB(r.Context(), rt.dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				rt.log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if rt.registry != nil {
		mux.Handle("/metrics", metricsHandler(rt.registry))
	}

	if rt.auth != nil {
		rt.auth.Register(mux)
	}
}

// buildHandler wraps mux with the middleware chain, outermost first:
// request logging, metrics, security headers, CORS.
func buildHandler(mux http.Handler, log Logger, cfg Config, m *httpMetrics) http.Handler {
	h := WithCORS(mux, cfg, log)
	h = WithSecurityHeaders(h)
	h = WithRequestMetrics(h, m)
	return WithRequestLogging(h, log)
}
