// Package app wires the lodge server runtime: config, logging, storage,
// the session service and its HTTP surface, metrics and the reaper.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	authapi "lodge/cmd/internal/auth/api"
	"lodge/cmd/internal/auth/session"
	"lodge/cmd/security/token"
)

// App is the lodge server runtime.
type App struct {
	cfg Config
	log Logger

	dbPool *pgxpool.Pool

	sessions *session.Service
	reaper   *session.Reaper
	auth     *authapi.Handler

	registry    *prometheus.Registry
	httpMetrics *httpMetrics
}

// Option configures optional App dependencies.
type Option func(*options)

type options struct {
	verifier authapi.CredentialVerifier
	now      func() time.Time
}

// WithCredentialVerifier plugs in the password check behind /auth/login.
// Without one, LODGE_AUTH_STATIC_USERS is consulted; if that is unset too,
// login answers 503.
func WithCredentialVerifier(v authapi.CredentialVerifier) Option {
	return func(o *options) { o.verifier = v }
}

// WithClock overrides time.Now for the HTTP layer and the reaper.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	hasher, err := token.NewHasherFromEnv(cfg.RequireTokenHMAC, minHMACKeyBytes)
	if err != nil {
		return nil, err
	}
	if !hasher.Keyed() {
		log.Warn("security.token_hash.sha256_fallback", "hint", token.HMACEnvKey+" is not set")
	}

	jwtKey, err := deriveJWTKey()
	if err != nil {
		return nil, err
	}
	signer, err := session.NewSigner(sessCfg, jwtKey)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log}

	if cfg.MetricsEnabled {
		a.registry = newMetricsRegistry()
		if a.httpMetrics, err = newHTTPMetrics(a.registry); err != nil {
			return nil, err
		}
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	svcOpts := []session.Option{session.WithLogger(log)}
	if a.registry != nil {
		m, err := session.NewMetrics(a.registry, metricsNamespace)
		if err != nil {
			a.closeDB()
			return nil, err
		}
		svcOpts = append(svcOpts, session.WithMetrics(m))
	}
	a.sessions = session.NewService(sessCfg, store, signer, hasher, svcOpts...)
	a.reaper = session.NewReaper(a.sessions, o.now)

	if o.verifier == nil {
		static, err := authapi.StaticCredentialVerifierFromEnv()
		if err != nil {
			a.closeDB()
			return nil, err
		}
		if static != nil {
			o.verifier = static
			log.Info("auth.verifier.static")
		}
	}

	handlerOpts := []authapi.HandlerOption{
		authapi.WithClock(o.now),
		authapi.WithCredentialVerifier(o.verifier),
	}
	if a.dbPool != nil {
		handlerOpts = append(handlerOpts, authapi.WithAuditSink(authapi.NewPostgresAuditSink(a.dbPool)))
	}
	a.auth, err = authapi.NewHandler(log, a.sessions, authapi.LoadConfigFromEnv(), handlerOpts...)
	if err != nil {
		a.closeDB()
		return nil, err
	}

	log.Info("app.ready",
		"store", storeKind(a.dbPool),
		"signer", string(sessCfg.Signer),
		"max_devices", sessCfg.MaxDevices,
		"token_hash_hmac", hasher.Keyed(),
		"metrics", a.registry != nil,
	)
	return a, nil
}

// openStore decides between Postgres-backed persistence and the in-memory dev store.
func (a *App) openStore(ctx context.Context) (session.Store, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		return session.NewMemoryStore(), nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	if a.cfg.DBAutoMigrate {
		if err := session.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		a.log.Info("db.schema.ensured")
	}

	a.dbPool = pool
	a.log.Info("db.enabled.postgres_store")
	return session.NewPostgresStore(pool), nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, routes{
		log:      a.log,
		cfg:      a.cfg,
		dbPool:   a.dbPool,
		auth:     a.auth,
		registry: a.registry,
	})
	return buildHandler(mux, a.log, a.cfg, a.httpMetrics)
}

// Run starts the HTTP server and the reaper, and blocks until context
// cancellation or a fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	reaperCtx, stopReaper := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.reaper.Run(reaperCtx)
	}()

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "store", storeKind(a.dbPool))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		if runErr == nil {
			runErr = err
		}
	}

	stopReaper()
	wg.Wait()
	a.closeDB()

	a.log.Info("server.stopped")
	return runErr
}

func (a *App) closeDB() {
	if a.dbPool != nil {
		a.dbPool.Close()
	}
}

func storeKind(pool *pgxpool.Pool) string {
	if pool == nil {
		return "memory"
	}
	return "postgres"
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
