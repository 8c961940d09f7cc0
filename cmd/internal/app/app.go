// Package app wires the tekauth runtime: config, logging, Redis and Postgres
// handles, the session service with its collaborators, and the ops HTTP
// server (health, readiness, metrics).
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
	"github.com/redis/go-redis/v9"

	"tekauth/cmd/identity"
	authapi "tekauth/cmd/internal/auth/api"
	"tekauth/cmd/internal/auth/audit"
	"tekauth/cmd/internal/auth/session"
	"tekauth/cmd/security/password"
)

// App owns every long-lived handle of the runtime. Nothing is global: the
// Redis client and DB pool are created in New and released in Close.
type App struct {
	cfg Config
	log Logger

	rdb  *redis.Client
	pool *pgxpool.Pool

	metrics *prometheus.Registry

	directory identity.Directory
	auth      *identity.Authenticator
	sessions  *session.Service
	cookies   authapi.CookieConfig
}

// Deps lets tests and embedders inject pre-built handles. Zero fields are
// built from Config.
type Deps struct {
	Redis     *redis.Client
	Pool      *pgxpool.Pool
	Directory identity.Directory
}

// New constructs a fully wired App from config, logger and optional deps.
func New(ctx context.Context, cfg Config, log Logger, deps Deps) (_ *App, err error) {
	if log == nil {
		log = NewLogger(nil, cfg.LogLevel, cfg.LogFormat)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, rdb: deps.Redis, pool: deps.Pool}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	sessCfg, err := session.LoadConfig(cfg.SessionConfigFile)
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("app: password config: %w", err)
	}
	hasher, err := NewTokenHasher(cfg, log)
	if err != nil {
		return nil, err
	}

	if a.rdb == nil {
		if a.rdb, err = NewRedisClient(ctx, cfg, log); err != nil {
			return nil, err
		}
	}
	if a.pool == nil && cfg.DatabaseURL != "" {
		if a.pool, err = NewDBPool(ctx, cfg); err != nil {
			return nil, fmt.Errorf("app: postgres: %w", err)
		}
		log.Info("db.enabled", "schema", cfg.DBSchema)
	}

	a.directory = deps.Directory
	if a.directory == nil {
		if a.directory, err = a.newDirectory(pwCfg); err != nil {
			return nil, err
		}
	}
	throttle := identity.NewLoginThrottle(cfg.LoginMaxFailures, cfg.LoginFailureWindow)
	if a.auth, err = identity.NewAuthenticator(a.directory, pwCfg, log, identity.WithLoginThrottle(throttle)); err != nil {
		return nil, err
	}

	a.metrics = prometheus.NewRegistry()
	a.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	codec, err := session.NewCodec(sessCfg)
	if err != nil {
		return nil, err
	}
	registry := session.NewRedisRegistry(a.rdb, hasher, session.RedisOptions{
		KeyPrefix: sessCfg.KeyPrefix,
		OpTimeout: sessCfg.OpTimeout,
	})

	a.sessions, err = session.NewService(sessCfg, codec, registry, identity.LookupFunc(a.directory),
		session.WithLogger(log),
		session.WithMetrics(session.NewMetrics(a.metrics)),
		session.WithAuditor(a.newAuditor()),
	)
	if err != nil {
		return nil, err
	}

	a.cookies = authapi.LoadCookieConfigFromEnv(cfg.Env)

	log.Info("app.ready",
		"env", cfg.Env,
		"token_format", sessCfg.TokenFormat,
		"directory", fmt.Sprintf("%T", a.directory),
		"audit_sink", cfg.AuditSink,
		"token_hash_hmac", hasher.HMAC(),
	)
	return a, nil
}

func (a *App) newDirectory(pwCfg password.Config) (identity.Directory, error) {
	if a.pool == nil {
		a.log.Warn("directory.memory", "hint", "set TEKAUTH_DATABASE_URL; users are not persisted")
		return identity.NewMemoryDirectory(pwCfg), nil
	}
	return identity.NewPostgresDirectory(a.pool,
		identity.WithSchema(a.cfg.DBSchema),
		identity.WithPasswordConfig(pwCfg),
	)
}

func (a *App) newAuditor() session.Auditor {
	logSink := audit.NewLogSink(a.log)
	if a.pool == nil {
		return logSink
	}
	pgSink := audit.NewPostgresSink(a.pool, a.cfg.DBSchema, a.log)
	switch a.cfg.AuditSink {
	case "postgres":
		return pgSink
	case "both":
		return audit.Multi{logSink, pgSink}
	default:
		return logSink
	}
}

// Sessions returns the session service.
func (a *App) Sessions() *session.Service { return a.sessions }

// Authenticator returns the password authenticator.
func (a *App) Authenticator() *identity.Authenticator { return a.auth }

// Directory returns the user directory.
func (a *App) Directory() identity.Directory { return a.directory }

// Cookies returns the refresh-cookie settings.
func (a *App) Cookies() authapi.CookieConfig { return a.cookies }

// TrustProxy reports whether X-Forwarded-For may be used for client IPs.
func (a *App) TrustProxy() bool { return a.cfg.TrustProxy }

// Metadata derives session metadata from r under the configured proxy trust.
func (a *App) Metadata(r *http.Request) session.Metadata {
	return authapi.MetadataFromRequest(r, a.cfg.TrustProxy)
}

// Handler returns the ops handler wrapped in request logging.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerOps(mux, a.log, a.rdb, a.pool, a.metrics)
	return WithRequestLogging(mux, a.log)
}

// Run serves the ops endpoints until ctx is cancelled, then shuts down and
// releases every handle.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.pool != nil)

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
	a.log.Info("server.stopped")
	return nil
}

// Close releases the Redis client and DB pool. It is safe to call twice.
func (a *App) Close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			a.log.Error("redis.close.fail", "err", err)
		}
		a.rdb = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
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
