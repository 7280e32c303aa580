// Package app wires the auth stack together once at process start. The
// server and CLI take an *App explicitly; nothing here is a package level
// singleton.
package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jrsteele09/dentalization-auth/auth"
	"github.com/jrsteele09/dentalization-auth/backend"
	"github.com/jrsteele09/dentalization-auth/backend/mock"
	"github.com/jrsteele09/dentalization-auth/backend/realdb"
	"github.com/jrsteele09/dentalization-auth/backend/restapi"
	"github.com/jrsteele09/dentalization-auth/internal/config"
	"github.com/jrsteele09/dentalization-auth/internal/metrics"
	"github.com/jrsteele09/dentalization-auth/sessions"
	"github.com/jrsteele09/dentalization-auth/store"
	"github.com/jrsteele09/dentalization-auth/store/memstore"
	"github.com/jrsteele09/dentalization-auth/store/redisstore"
	"github.com/jrsteele09/dentalization-auth/store/sqlitestore"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// breakerFailures trips the REST API circuit breaker.
const breakerFailures = 5

type App struct {
	Config   config.Config
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Pool     *pgxpool.Pool // nil without DATABASE_URL
	RealDB   *realdb.Backend
	RESTAPI  *restapi.Backend // nil in mock mode
	Mock     *mock.Backend
	Selector *backend.Selector
	Auth     *auth.Service

	Store    store.Store
	Sessions *sessions.Manager
}

// New builds every component described by cfg.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{
		Config:   cfg,
		Registry: prometheus.NewRegistry(),
	}
	a.Metrics = metrics.New(a.Registry)

	if err := a.buildBackends(ctx); err != nil {
		a.Close()
		return nil, err
	}

	s, err := OpenStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = s

	a.Sessions, err = sessions.NewManager(a.Auth, a.Store,
		sessions.WithTokenExpiry(cfg.GetTokenExpiry()),
		sessions.WithRememberMeExpiry(cfg.GetRememberMeExpiry()),
		sessions.WithRefreshThreshold(cfg.GetRefreshThreshold()),
		sessions.WithMetrics(a.Metrics),
	)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "[app.New] session manager")
	}
	return a, nil
}

func (a *App) buildBackends(ctx context.Context) error {
	cfg := a.Config

	a.Mock = mock.New(mock.WithDelays(mock.Delays{
		Login:    cfg.GetMockLoginDelay(),
		Register: cfg.GetMockRegisterDelay(),
		API:      cfg.GetMockAPIDelay(),
	}))
	backends := auth.Backends{Mock: a.Mock}

	var realDBHealth backend.HealthChecker
	if dsn := cfg.GetDatabaseURL(); dsn != "" {
		pool, err := realdb.Connect(ctx, dsn, cfg.GetDatabaseMaxConns())
		if err != nil {
			return err
		}
		a.Pool = pool
		if err := realdb.EnsureSchema(ctx, pool); err != nil {
			log.Warn().Err(err).Msg("could not prepare database schema, the real database will be reported unhealthy until it is reachable")
		}

		a.RealDB, err = realdb.New(pool, realdb.Settings{
			TokenExpiry:        cfg.GetTokenExpiry(),
			RememberMeExpiry:   cfg.GetRememberMeExpiry(),
			RefreshTokenLength: cfg.GetRefreshTokenLength(),
			RefreshTokenExpiry: cfg.GetRefreshTokenExpiry(),
			PasswordMinLength:  cfg.GetPasswordMinLength(),
			Issuer:             cfg.GetIssuer(),
			JWTSecret:          cfg.GetJWTSecret(),
		})
		if err != nil {
			return errors.Wrap(err, "[app.New] real database backend")
		}
		backends.RealDatabase = a.RealDB
		realDBHealth = a.RealDB
	}

	if !cfg.GetUseMockService() {
		var err error
		a.RESTAPI, err = restapi.New(cfg.GetBaseURL(),
			restapi.WithTimeouts(restapi.Timeouts{
				Default: cfg.GetDefaultTimeout(),
				Login:   cfg.GetLoginTimeout(),
				Upload:  cfg.GetUploadTimeout(),
			}),
			restapi.WithBreaker(restapi.BreakerSettings{
				ConsecutiveFailures: breakerFailures,
				OpenTimeout:         cfg.GetBreakerTimeout(),
			}),
			restapi.WithMetrics(a.Metrics),
			restapi.WithLanguage(cfg.GetLanguage()),
		)
		if err != nil {
			return errors.Wrap(err, "[app.New] REST API backend")
		}
		backends.RESTAPI = a.RESTAPI
	}

	a.Selector = backend.NewSelector(cfg.GetUseMockService(), realDBHealth,
		backend.WithHealthCacheTTL(cfg.GetHealthCacheTTL()),
		backend.WithMetrics(a.Metrics),
	)

	var err error
	a.Auth, err = auth.NewService(backends, a.Selector,
		auth.WithMockFallback(cfg.GetMockFallback()),
		auth.WithMetrics(a.Metrics),
		auth.WithLanguage(cfg.GetLanguage()),
	)
	if err != nil {
		return errors.Wrap(err, "[app.New] auth service")
	}
	return nil
}

// ServerBackend is the backend the dev API serves: the real database when
// one is configured, the mock otherwise.
func (a *App) ServerBackend() backend.Backend {
	if a.RealDB != nil {
		return a.RealDB
	}
	return a.Mock
}

// OpenStore opens the session store selected by SESSION_STORE.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.GetStoreDriver() {
	case config.StoreDriverSQLite:
		s, err := sqlitestore.Open(cfg.GetStorePath())
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreDriverRedis:
		s, err := redisstore.Connect(ctx, cfg.GetRedisAddr(), cfg.GetRedisPassword(), cfg.GetRedisDB(), cfg.GetStoreKeyPrefix())
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreDriverMemory:
		return memstore.New(), nil
	}
	return nil, errors.Errorf("[app.OpenStore] unsupported store driver %q", cfg.GetStoreDriver())
}

// Close releases the store and the database pool.
func (a *App) Close() {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close session store")
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
