package jwt

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/dentalization-auth/users"
)

// Creator issues access tokens for the real-database backend
type Creator struct {
	issuer  string
	signer  Signer
	nowTime func() time.Time
}

type CreatorOption func(*Creator)

// WithNowFunc sets the clock used for iat/exp (primarily for testing)
func WithNowFunc(now func() time.Time) CreatorOption {
	return func(c *Creator) {
		c.nowTime = now
	}
}

// NewCreator creates a new JWT creator
func NewCreator(issuer string, signer Signer, options ...CreatorOption) *Creator {
	c := &Creator{
		issuer:  issuer,
		signer:  signer,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// CreateAccessToken signs an access token for user valid for ttl and returns
// it with its expiry time.
func (c *Creator) CreateAccessToken(user *users.User, ttl time.Duration) (string, time.Time, error) {
	now := c.nowTime()
	exp := now.Add(ttl)
	claims := jwtlib.MapClaims{
		"iss":   c.issuer,            // The issuer of the token
		"sub":   user.ID,             // The user the token was issued to
		"email": user.Email,          // Convenience for clients that decode the token
		"role":  string(user.Role),   // App role, drives client routing
		"iat":   now.Unix(),          // Issued At
		"exp":   exp.Unix(),          // Expiry
		"jti":   uuid.New().String(), // Unique token ID
	}

	signed, err := c.signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return signed, exp, nil
}
