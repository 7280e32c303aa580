package sessions

import (
	"context"
	"time"

	autherrors "github.com/jrsteele09/dentalization-auth/internal/errors"
	"github.com/jrsteele09/dentalization-auth/store"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// CheckExpiry reads the stored expiry and refreshes the session once it is
// within the refresh threshold. It reports whether the session is usable
// afterwards. A missing expiry is reported as unusable.
func (m *Manager) CheckExpiry(ctx context.Context) bool {
	values, err := m.store.ReadAll(ctx, []store.Key{store.KeyTokenExpiry})
	if err != nil {
		log.Warn().Err(err).Msg("failed to read token expiry")
		return false
	}
	raw := values[store.KeyTokenExpiry]
	if raw == nil {
		return false
	}
	expiry, err := store.ParseTime(*raw)
	if err != nil {
		log.Warn().Err(err).Str("value", *raw).Msg("stored token expiry is malformed")
		return false
	}

	if m.nowTime().Add(m.refreshThreshold).Before(expiry) {
		return true
	}
	if _, err := m.Refresh(ctx); err != nil {
		log.Info().Err(err).Msg("token refresh failed, session cleared")
		return false
	}
	return true
}

// IsTokenValid reports whether an access token is held and the session is
// authenticated. It does not consult the expiry.
func (m *Manager) IsTokenValid() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.session.isAuthenticated()
}

// Watch runs CheckExpiry every interval while the session is authenticated,
// until ctx is done.
func (m *Manager) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if m.IsTokenValid() {
				m.CheckExpiry(ctx)
			}
		}
	}
}

// TokenSource returns an oauth2.TokenSource yielding the session's access
// token. Tokens are reused until they come within the refresh threshold, at
// which point the session is refreshed.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return oauth2.ReuseTokenSourceWithExpiry(nil, &tokenSource{ctx: ctx, manager: m}, m.refreshThreshold)
}

type tokenSource struct {
	ctx     context.Context
	manager *Manager
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	if !ts.manager.IsTokenValid() || !ts.manager.CheckExpiry(ts.ctx) {
		return nil, autherrors.ErrNotAuthenticated
	}
	snap := ts.manager.Snapshot()
	if !snap.IsAuthenticated {
		return nil, autherrors.ErrNotAuthenticated
	}
	tok := &oauth2.Token{
		AccessToken:  snap.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: snap.RefreshToken,
	}
	if snap.TokenExpiry != nil {
		tok.Expiry = *snap.TokenExpiry
	}
	return tok, nil
}
