package refresh

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	autherrors "github.com/jrsteele09/dentalization-auth/internal/errors"
	"github.com/pkg/errors"
)

// Manager handles refresh token creation, validation, and rotation
type Manager struct {
	repo        Repo
	tokenLength int
	expiry      time.Duration
	nowTime     func() time.Time
}

type ManagerOption func(*Manager)

// WithNowFunc sets the clock used for issue and expiry checks (primarily for testing)
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = now
	}
}

// NewManager creates a refresh token manager issuing tokens of tokenLength
// random bytes that stay valid for expiry.
func NewManager(repo Repo, tokenLength int, expiry time.Duration, options ...ManagerOption) *Manager {
	m := &Manager{
		repo:        repo,
		tokenLength: tokenLength,
		expiry:      expiry,
		nowTime:     time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Create generates a new refresh token for userID and stores it. Any token the
// user already holds is revoked, so each user has at most one.
func (m *Manager) Create(ctx context.Context, userID string) (string, error) {
	if existing, err := m.repo.GetByUserID(ctx, userID); err == nil && existing != nil {
		if err := m.repo.Delete(ctx, existing.Token); err != nil {
			return "", errors.Wrap(err, "[Manager.Create] delete existing refresh token")
		}
	}

	tokenBytes := make([]byte, m.tokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", errors.Wrap(err, "[Manager.Create] generate random bytes")
	}

	tokenStr := hex.EncodeToString(tokenBytes)
	if err := m.repo.Upsert(ctx, &StoredRefreshToken{
		Token:  tokenStr,
		UserID: userID,
		Iat:    m.nowTime(),
	}); err != nil {
		return "", errors.Wrap(err, "[Manager.Create] store refresh token")
	}
	return tokenStr, nil
}

// Rotate validates token, revokes it and issues a replacement for the same
// user.
func (m *Manager) Rotate(ctx context.Context, token string) (*StoredRefreshToken, string, error) {
	stored, err := m.repo.Get(ctx, token)
	if err != nil || stored == nil {
		return nil, "", autherrors.WithOp(autherrors.ErrInvalidRefreshToken, "[Manager.Rotate]")
	}
	if m.IsExpired(stored) {
		_ = m.repo.Delete(ctx, token)
		return nil, "", autherrors.WithOp(autherrors.ErrRefreshTokenExpired, "[Manager.Rotate]")
	}
	next, err := m.Create(ctx, stored.UserID)
	if err != nil {
		return nil, "", err
	}
	return stored, next, nil
}

// Revoke removes token. Unknown tokens are ignored.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if _, err := m.repo.Get(ctx, token); err != nil {
		return nil
	}
	return m.repo.Delete(ctx, token)
}

// IsExpired checks if a refresh token is older than the configured expiry
func (m *Manager) IsExpired(rt *StoredRefreshToken) bool {
	return m.nowTime().Sub(rt.Iat) > m.expiry
}
