package config

import "time"

const defaultJWTSecret = "dentalization-dev-secret"

type AuthConfig interface {
	GetTokenExpiry() time.Duration
	GetRememberMeExpiry() time.Duration
	GetRefreshThreshold() time.Duration
	GetMaxRetryAttempts() int
	GetRefreshTokenLength() int
	GetRefreshTokenExpiry() time.Duration
	GetJWTSecret() string
	GetIssuer() string
	GetPasswordMinLength() int
}

type Auth struct {
	TokenExpiry        time.Duration `env:"AUTH_TOKEN_EXPIRY" envDefault:"24h"`
	RememberMeExpiry   time.Duration `env:"AUTH_REMEMBER_ME_EXPIRY" envDefault:"720h"`
	RefreshThreshold   time.Duration `env:"AUTH_REFRESH_THRESHOLD" envDefault:"5m"`
	MaxRetryAttempts   int           `env:"AUTH_MAX_RETRY_ATTEMPTS" envDefault:"3"`
	RefreshTokenLength int           `env:"AUTH_REFRESH_TOKEN_LENGTH" envDefault:"32"`
	RefreshTokenExpiry time.Duration `env:"AUTH_REFRESH_TOKEN_EXPIRY" envDefault:"720h"`
	JWTSecret          string        `env:"JWT_SECRET" envDefault:"dentalization-dev-secret"`
	Issuer             string        `env:"JWT_ISSUER" envDefault:"dentalization"`
	PasswordMinLength  int           `env:"AUTH_PASSWORD_MIN_LENGTH" envDefault:"8"`
}

var _ AuthConfig = Auth{}

// GetTokenExpiry is the access token lifetime issued without remember me.
func (a Auth) GetTokenExpiry() time.Duration {
	return a.TokenExpiry
}

// GetRememberMeExpiry is the minimum session lifetime when remember me is set.
func (a Auth) GetRememberMeExpiry() time.Duration {
	return a.RememberMeExpiry
}

// GetRefreshThreshold is how close to expiry a token may get before it is
// refreshed.
func (a Auth) GetRefreshThreshold() time.Duration {
	return a.RefreshThreshold
}

func (a Auth) GetMaxRetryAttempts() int {
	return a.MaxRetryAttempts
}

func (a Auth) GetRefreshTokenLength() int {
	return a.RefreshTokenLength // bytes, hex encoded on the wire
}

func (a Auth) GetRefreshTokenExpiry() time.Duration {
	return a.RefreshTokenExpiry
}

func (a Auth) GetJWTSecret() string {
	return a.JWTSecret
}

func (a Auth) GetIssuer() string {
	return a.Issuer
}

func (a Auth) GetPasswordMinLength() int {
	return a.PasswordMinLength
}
