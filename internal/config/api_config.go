package config

import (
	"strings"
	"time"
)

const (
	devBaseURL  = "http://localhost:3001/api"
	prodBaseURL = "https://api.dentalization.com/api"
)

type APIConfig interface {
	GetUseMockService() bool
	GetBaseURL() string
	GetDefaultTimeout() time.Duration
	GetLoginTimeout() time.Duration
	GetUploadTimeout() time.Duration
	GetHealthCacheTTL() time.Duration
	GetMockFallback() bool
	GetBreakerTimeout() time.Duration
}

type API struct {
	UseMockService bool          `env:"USE_MOCK_SERVICE" envDefault:"true"`
	BaseURL        string        `env:"API_BASE_URL"`
	DefaultTimeout time.Duration `env:"API_TIMEOUT_DEFAULT" envDefault:"10s"`
	LoginTimeout   time.Duration `env:"API_TIMEOUT_LOGIN" envDefault:"15s"`
	UploadTimeout  time.Duration `env:"API_TIMEOUT_UPLOAD" envDefault:"30s"`
	HealthCacheTTL time.Duration `env:"API_HEALTH_CACHE_TTL" envDefault:"3s"`
	MockFallback   bool          `env:"AUTH_MOCK_FALLBACK" envDefault:"true"`
	BreakerTimeout time.Duration `env:"API_BREAKER_TIMEOUT" envDefault:"30s"`

	// Needed to pick the per-environment default base URL.
	Env string `env:"ENV" envDefault:"DEV"`
}

var _ APIConfig = API{}

// GetUseMockService reports whether every auth call should go straight to the
// in-memory mock backend.
func (a API) GetUseMockService() bool {
	return a.UseMockService
}

func (a API) GetBaseURL() string {
	if a.BaseURL != "" {
		return a.BaseURL
	}
	if a.Env == "" || strings.EqualFold(a.Env, envDev) {
		return devBaseURL
	}
	return prodBaseURL
}

func (a API) GetDefaultTimeout() time.Duration {
	return a.DefaultTimeout
}

func (a API) GetLoginTimeout() time.Duration {
	return a.LoginTimeout
}

func (a API) GetUploadTimeout() time.Duration {
	return a.UploadTimeout
}

// GetHealthCacheTTL is how long a health probe result is reused. Zero probes
// before every call.
func (a API) GetHealthCacheTTL() time.Duration {
	return a.HealthCacheTTL
}

// GetMockFallback reports whether login and register may fall through to the
// mock backend once the real backends are exhausted.
func (a API) GetMockFallback() bool {
	return a.MockFallback
}

func (a API) GetBreakerTimeout() time.Duration {
	return a.BreakerTimeout
}
