package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/dentalization-auth/users"
)

// Claims is the verified content of an access token
type Claims struct {
	Subject string
	Email   string
	Role    users.RoleType
	Expiry  time.Time
}

// Verify checks signature, issuer and expiry of raw.
func Verify(raw, issuer string, signer Signer, now func() time.Time) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("empty token")
	}
	token, err := jwtlib.Parse(raw, signer.GetVerificationKey,
		jwtlib.WithValidMethods([]string{signer.GetSigningMethod().Alg()}),
		jwtlib.WithIssuer(issuer),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(now),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}

	mc, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("invalid access token claims")
	}
	claims := &Claims{}
	claims.Subject, _ = mc.GetSubject()
	claims.Email, _ = mc["email"].(string)
	if role, ok := mc["role"].(string); ok {
		claims.Role = users.ParseRole(role)
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.Expiry = exp.Time
	}
	return claims, nil
}

// UnverifiedExpiry reads the exp claim of raw without checking the signature.
// Opaque tokens report false.
func UnverifiedExpiry(raw string) (time.Time, bool) {
	token, _, err := jwtlib.NewParser().ParseUnverified(raw, jwtlib.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
