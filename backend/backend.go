// Package backend defines the contract shared by the interchangeable auth
// backends and the selector that picks one per call.
package backend

import (
	"context"
	"io"

	"github.com/jrsteele09/dentalization-auth/users"
)

// Strategy names one of the interchangeable backends.
type Strategy string

const (
	StrategyRealDatabase Strategy = "real-database"
	StrategyRESTAPI      Strategy = "rest-api"
	StrategyMock         Strategy = "mock"
)

// Priority lists the strategies from most to least preferred.
var Priority = []Strategy{StrategyRealDatabase, StrategyRESTAPI, StrategyMock}

func (s Strategy) String() string {
	return string(s)
}

// Credentials are passed to Login and never persisted.
type Credentials struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"rememberMe"`
}

// Registration is the sign-up payload. Profile fields are passed through to
// whichever backend is live; each backend applies its own validation.
type Registration struct {
	Email     string         `json:"email" validate:"required,email"`
	Password  string         `json:"password" validate:"required"`
	FirstName string         `json:"firstName" validate:"required"`
	LastName  string         `json:"lastName" validate:"required"`
	Phone     string         `json:"phone,omitempty"`
	Role      users.RoleType `json:"role" validate:"required"`

	users.Profile
}

// AuthResult is what every successful login, register or refresh returns.
// ExpiresIn is the access token lifetime in milliseconds.
type AuthResult struct {
	User         *users.User `json:"user"`
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresIn    int64       `json:"expiresIn"`
}

// Backend is one auth strategy. Failures are returned as *errors.Error with
// a Kind set by the adapter.
type Backend interface {
	Strategy() Strategy
	Login(ctx context.Context, creds Credentials) (*AuthResult, error)
	Register(ctx context.Context, reg Registration) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
	Health(ctx context.Context) error
}

// AccountRecovery is implemented by backends that support the email
// verification and password reset flows.
type AccountRecovery interface {
	VerifyEmail(ctx context.Context, token string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	UploadVerificationDocument(ctx context.Context, accessToken, filename string, r io.Reader) error
}

type accessTokenKey struct{}

// WithAccessToken attaches the caller's current access token to ctx so
// backends that authenticate logout or uploads can send it.
func WithAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessToken returns the token attached by WithAccessToken.
func AccessToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(accessTokenKey{}).(string)
	return token, ok && token != ""
}
