// Package app wires the rollbook server runtime: config, logging, stores,
// HTTP routes, and the admin event feed.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"rollbook/cmd/identity"
	"rollbook/cmd/internal/api"
	"rollbook/cmd/internal/audit"
	"rollbook/cmd/internal/auth"
	"rollbook/cmd/internal/device"
	"rollbook/cmd/internal/editflow"
	"rollbook/cmd/internal/feed"
	"rollbook/cmd/internal/roster"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// storeSet bundles every persistence interface the domain services need.
type storeSet struct {
	users    identity.PrivilegedStore
	devices  device.Store
	roster   roster.Store
	requests editflow.Store
	activity audit.Store
}

// App is the rollbook server runtime.
type App struct {
	cfg Config
	log *slog.Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	metrics *Metrics
	hub     *feed.Hub

	users    identity.PrivilegedStore
	resolver *auth.Resolver
	handler  *api.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	st, pool, dbEnabled, stores, err := newStores(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	resolver := &auth.Resolver{Scoped: stores.users, Privileged: stores.users}

	devices := device.NewRegistry(stores.devices, log)
	rosterSvc := roster.NewService(stores.roster, log)
	recorder := audit.NewRecorder(stores.activity, log)

	hub := feed.NewHub(log)
	workflow := editflow.NewWorkflow(stores.requests, rosterSvc, recorder, hub, log)

	handler, err := api.NewHandler(api.Deps{
		Log:        log,
		Users:      stores.users,
		Resolver:   resolver,
		Devices:    devices,
		Roster:     rosterSvc,
		Workflow:   workflow,
		Recorder:   recorder,
		FeedWS:     feed.NewWSHandler(hub, log, cfg.WSDevInsecure),
		SessionTTL: cfg.SessionTTL,
	})
	if err != nil {
		_ = st.Close(context.Background())
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    pool,
		dbEnabled: dbEnabled,
		metrics:   NewMetrics(),
		hub:       hub,
		users:     stores.users,
		resolver:  resolver,
		handler:   handler,
	}

	if err := a.bootstrapAdmin(context.Background()); err != nil {
		_ = st.Close(context.Background())
		return nil, err
	}

	return a, nil
}

// bootstrapAdmin creates the configured first admin account if it does not
// exist yet. An existing account is left alone; its password is never reset
// from the environment.
func (a *App) bootstrapAdmin(ctx context.Context) error {
	if a.cfg.AdminUsername == "" {
		return nil
	}

	if _, err := a.users.GetUserByUsername(ctx, a.cfg.AdminUsername); err == nil {
		return nil
	} else if !identity.IsNotFound(err) {
		return err
	}

	u, err := a.users.CreateUser(ctx, identity.CreateUserInput{
		Username: a.cfg.AdminUsername,
		Password: a.cfg.AdminPassword,
		Role:     identity.RoleAdmin,
	})
	if err != nil {
		return err
	}

	a.log.Info("admin.bootstrapped", "user_id", u.ID, "username", u.Username)
	return nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.handler, a.metrics)

	// Request flow: logging, then auth resolution, then metrics (which needs
	// the mux for route labels), then the routes themselves.
	var h http.Handler = a.metrics.WithMetrics(mux)
	h = auth.Middleware(a.resolver, a.log)(h)
	h = WithRequestLogging(h, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

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
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
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

// newStores decides between Postgres-backed persistence and the in-memory
// dev stores. Memory mode requires the explicit DevMemory flag; a missing
// database URL alone never silently degrades to memory.
func newStores(ctx context.Context, cfg Config, log *slog.Logger) (Store, *pgxpool.Pool, bool, storeSet, error) {
	if cfg.DevMemory {
		log.Warn("db.disabled.memory_store", "reason", "ROLLBOOK_DEV_MEMORY=true")
		rosterStore := roster.NewMemoryStore()
		return nopStore{}, nil, false, storeSet{
			users:    identity.NewMemoryStore(),
			devices:  device.NewMemoryStore(),
			roster:   rosterStore,
			requests: editflow.NewMemoryStore(rosterStore),
			activity: audit.NewMemoryStore(),
		}, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, storeSet{}, err
	}

	fail := func(err error) (Store, *pgxpool.Pool, bool, storeSet, error) {
		pool.Close()
		return nil, nil, false, storeSet{}, err
	}

	users, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		return fail(err)
	}
	devices, err := device.NewPostgresStore(pool, cfg.DBSchema)
	if err != nil {
		return fail(err)
	}
	rosterStore, err := roster.NewPostgresStore(pool, cfg.DBSchema)
	if err != nil {
		return fail(err)
	}
	requests, err := editflow.NewPostgresStore(pool, cfg.DBSchema)
	if err != nil {
		return fail(err)
	}
	activity, err := audit.NewPostgresStore(pool, cfg.DBSchema)
	if err != nil {
		return fail(err)
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)

	return dbStore{pool: pool}, pool, true, storeSet{
		users:    users,
		devices:  devices,
		roster:   rosterStore,
		requests: requests,
		activity: activity,
	}, nil
}
