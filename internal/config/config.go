package config

import (
	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config interface {
	EnvConfig
	CorsConfig
	APIConfig
	AuthConfig
	StoreConfig
	DatabaseConfig
	MockConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetLanguage() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() []string
	GetAllowedHeaders() []string
}

type mainConfig struct {
	EnvVars
	Cors
	API
	Auth
	Store
	Database
	Mock
	Security
}

// Load reads configuration from the process environment, after merging any
// .env file found in the working directory.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := mainConfig{}
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Wrap(err, "[config.Load] parse environment")
	}
	return cfg, cfg.validate()
}

// FromMap builds a configuration from vars only, ignoring the process
// environment. Unset keys take their defaults.
func FromMap(vars map[string]string) (Config, error) {
	cfg := mainConfig{}
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return nil, errors.Wrap(err, "[config.FromMap] parse environment")
	}
	return cfg, cfg.validate()
}

// New loads the configuration and panics if the environment is malformed.
func New() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c mainConfig) validate() error {
	switch c.StoreDriver {
	case StoreDriverSQLite, StoreDriverRedis, StoreDriverMemory:
	default:
		return errors.Errorf("[config] unsupported SESSION_STORE %q", c.StoreDriver)
	}
	if c.RefreshThreshold <= 0 {
		return errors.New("[config] AUTH_REFRESH_THRESHOLD must be positive")
	}
	if c.GetEnv() != envDev && c.JWTSecret == defaultJWTSecret && c.DatabaseURL != "" {
		return errors.New("[config] JWT_SECRET must be set outside DEV when DATABASE_URL is configured")
	}
	return nil
}
