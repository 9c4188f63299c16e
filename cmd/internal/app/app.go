// Package app wires the Keyline server runtime: config, logging, the
// Postgres pool, the authentication HTTP surface, and the background
// session sweeper.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"keyline/cmd/identity"
	"keyline/cmd/internal/auth/api"
	"keyline/cmd/internal/auth/cleanup"
	"keyline/cmd/internal/auth/session"
	"keyline/cmd/security/password"
	"keyline/cmd/security/token"

	"github.com/jackc/pgx/v5/pgxpool"
)

// App is the server runtime. It owns the pool, the HTTP wiring, and the
// sweeper lifecycle.
type App struct {
	cfg Config
	log Logger

	pool    *pgxpool.Pool
	auth    *api.Handler
	sweeper *cleanup.Sweeper
	metrics *Metrics
}

// New constructs a fully wired App from config and logger. Postgres is
// the single durable store, so a missing database URL is a startup
// error rather than a degraded mode.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("KEYLINE_DATABASE_URL is required")
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a, err := wire(cfg, log, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

func wire(cfg Config, log Logger, pool *pgxpool.Pool) (*App, error) {
	accounts, err := identity.NewPostgresStore(pool)
	if err != nil {
		return nil, err
	}

	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	validator, err := identity.NewValidator(accounts, pwCfg, identity.DefaultLockoutPolicy())
	if err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	tokens, err := session.NewHS256Manager(sessCfg)
	if err != nil {
		return nil, err
	}
	sessStore, err := session.NewPostgresStore(pool)
	if err != nil {
		return nil, err
	}
	sessions := session.NewService(sessCfg, sessStore, tokens, token.HasherFromEnv(), api.NewDirectory(accounts))

	audit := api.NewPgAuditLog(pool, "", log)
	auth := api.NewHandler(api.LoadConfigFromEnv(), log, validator, accounts, sessions, audit, audit)

	metrics := NewMetrics()
	sweeper := cleanup.New(cleanup.DefaultConfig(), sessStore, log, cleanup.NewMetrics(metrics.Registry()))

	return &App{
		cfg:     cfg,
		log:     log,
		pool:    pool,
		auth:    auth,
		sweeper: sweeper,
		metrics: metrics,
	}, nil
}

// Run starts the sweeper and the HTTP server, then blocks until context
// cancellation or a fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.pool, a.auth, a.metrics)

	var handler http.Handler = WithMetrics(mux, a.metrics)
	handler = WithSecurityHeaders(handler)
	handler = WithCORS(handler, a.cfg, a.log)
	handler = WithRequestLogging(handler, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.sweeper.Run(sweepCtx)
	}()

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr)

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
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if runErr == nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			runErr = err
		}
	}

	stopSweeper()
	wg.Wait()

	a.pool.Close()

	a.log.Info("server.stopped")
	return runErr
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
