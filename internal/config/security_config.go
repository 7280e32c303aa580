package config

import "time"

type SecurityConfig interface {
	GetEnableRateLimiting() bool
	GetLoginRateLimit() float64
	GetLoginRateBurst() int
	GetMaxRequestBytes() int64
	GetVisitorTTL() time.Duration
}

type Security struct {
	EnableRateLimiting bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	LoginRateLimit     float64       `env:"RATE_LIMIT_LOGIN_RPS" envDefault:"1"`
	LoginRateBurst     int           `env:"RATE_LIMIT_LOGIN_BURST" envDefault:"5"`
	MaxRequestBytes    int64         `env:"MAX_REQUEST_BYTES" envDefault:"1048576"`
	VisitorTTL         time.Duration `env:"RATE_LIMIT_VISITOR_TTL" envDefault:"3m"`
}

var _ SecurityConfig = Security{}

func (s Security) GetEnableRateLimiting() bool {
	return s.EnableRateLimiting
}

// GetLoginRateLimit is the sustained login/register requests per second
// allowed per client IP on the dev API.
func (s Security) GetLoginRateLimit() float64 {
	return s.LoginRateLimit
}

func (s Security) GetLoginRateBurst() int {
	return s.LoginRateBurst
}

func (s Security) GetMaxRequestBytes() int64 {
	return s.MaxRequestBytes
}

func (s Security) GetVisitorTTL() time.Duration {
	return s.VisitorTTL
}
