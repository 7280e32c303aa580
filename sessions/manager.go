// Package sessions holds the client auth session. The Manager keeps the
// in-memory session and the persisted store consistent: every mutation is
// written to the store first and only then committed to memory, and a failed
// write clears both.
package sessions

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/jrsteele09/dentalization-auth/backend"
	autherrors "github.com/jrsteele09/dentalization-auth/internal/errors"
	"github.com/jrsteele09/dentalization-auth/internal/metrics"
	"github.com/jrsteele09/dentalization-auth/store"
	"github.com/jrsteele09/dentalization-auth/token/jwt"
	"github.com/jrsteele09/dentalization-auth/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Authenticator is the subset of auth.Service the manager drives.
type Authenticator interface {
	Login(ctx context.Context, creds backend.Credentials) (*backend.AuthResult, error)
	Register(ctx context.Context, reg backend.Registration) (*backend.AuthResult, error)
	RefreshToken(ctx context.Context, refreshToken string) (*backend.AuthResult, error)
	Logout(ctx context.Context, refreshToken string)
}

type Manager struct {
	auth             Authenticator
	store            store.Store
	tokenExpiry      time.Duration
	rememberMeExpiry time.Duration
	refreshThreshold time.Duration
	metrics          *metrics.Metrics
	nowTime          func() time.Time

	group     singleflight.Group
	writeLock sync.Mutex // serialises store writes with their memory commit

	lock     sync.RWMutex
	session  session
	hydrated bool
	inFlight int

	subsLock    sync.Mutex
	subscribers map[int]func(Snapshot)
	nextSubID   int
}

type Option func(*Manager)

// WithTokenExpiry is the session lifetime used when a backend reports no
// expiry and the access token carries no exp claim.
func WithTokenExpiry(d time.Duration) Option {
	return func(m *Manager) {
		m.tokenExpiry = d
	}
}

// WithRememberMeExpiry is the minimum lifetime of a remember me session,
// measured from the last login.
func WithRememberMeExpiry(d time.Duration) Option {
	return func(m *Manager) {
		m.rememberMeExpiry = d
	}
}

func WithRefreshThreshold(d time.Duration) Option {
	return func(m *Manager) {
		m.refreshThreshold = d
	}
}

func WithMetrics(recorder *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = recorder
	}
}

// WithNowFunc sets the clock used for expiry decisions (primarily for testing)
func WithNowFunc(now func() time.Time) Option {
	return func(m *Manager) {
		m.nowTime = now
	}
}

func NewManager(a Authenticator, s store.Store, options ...Option) (*Manager, error) {
	if a == nil {
		return nil, errors.New("[sessions.NewManager] authenticator is required")
	}
	if s == nil {
		return nil, errors.New("[sessions.NewManager] store is required")
	}

	m := &Manager{
		auth:             a,
		store:            s,
		tokenExpiry:      24 * time.Hour,
		rememberMeExpiry: 30 * 24 * time.Hour,
		refreshThreshold: 5 * time.Minute,
		nowTime:          time.Now,
		subscribers:      make(map[int]func(Snapshot)),
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Hydrate restores the session from the persisted store. An unexpired session
// becomes Authenticated. An expired one is refreshed first, and cleared if
// that fails. Anything incomplete or unreadable is cleared.
func (m *Manager) Hydrate(ctx context.Context) error {
	m.begin()
	defer m.end()

	values, err := m.store.ReadAll(ctx, store.SessionKeys)
	if err != nil {
		m.reset(ctx)
		return autherrors.Wrap(autherrors.KindStorage, "[Manager.Hydrate]", err)
	}

	restored, ok := m.decode(values)
	if !ok {
		m.reset(ctx)
		return nil
	}

	if !restored.tokenExpiry.IsZero() && m.nowTime().Before(restored.tokenExpiry) {
		m.lock.Lock()
		m.session = restored
		m.lock.Unlock()
		return nil
	}

	if restored.refreshToken == "" {
		m.reset(ctx)
		return nil
	}
	log.Debug().Msg("stored session expired, refreshing")
	if _, err := m.refresh(ctx, restored); err != nil {
		log.Info().Err(err).Msg("stored session could not be refreshed")
	}
	return nil
}

// decode rebuilds a session from stored values. It reports false when no
// usable user and token pair is stored.
func (m *Manager) decode(values map[store.Key]*string) (session, bool) {
	userJSON, token := values[store.KeyUser], values[store.KeyToken]
	if userJSON == nil || token == nil || *token == "" {
		return session{}, false
	}

	var user users.User
	if err := json.Unmarshal([]byte(*userJSON), &user); err != nil {
		log.Warn().Err(err).Msg("stored user is corrupt")
		return session{}, false
	}

	s := session{
		user:          &user,
		accessToken:   *token,
		authenticated: true,
		rememberMe:    store.ParseBool(values[store.KeyRememberMe]),
	}
	if v := values[store.KeyRefreshToken]; v != nil {
		s.refreshToken = *v
	}
	if v := values[store.KeyLastLogin]; v != nil {
		if t, err := store.ParseTime(*v); err == nil {
			s.lastLogin = t
		}
	}
	if v := values[store.KeyTokenExpiry]; v != nil {
		if t, err := store.ParseTime(*v); err == nil {
			s.tokenExpiry = t
		}
	}
	return s, true
}

// Login authenticates through the facade and persists the new session. A
// failed login leaves the current session untouched.
//
// Overlapping calls for the same email and remember me choice share one
// backend call: only the first submit's password counts and every caller
// gets its outcome.
func (m *Manager) Login(ctx context.Context, creds backend.Credentials) (Snapshot, error) {
	key := "login:" + users.NormalizeEmail(creds.Email) + ":" + strconv.FormatBool(creds.RememberMe)
	v, err, _ := m.group.Do(key, func() (any, error) {
		m.begin()
		defer m.end()

		res, err := m.auth.Login(ctx, creds)
		if err != nil {
			return nil, err
		}
		return m.commit(ctx, res, creds.RememberMe, m.nowTime())
	})
	if err != nil {
		return m.Snapshot(), err
	}
	return v.(Snapshot), nil
}

// Register creates an account and signs it in. Overlapping calls for the
// same email share the first call's outcome.
func (m *Manager) Register(ctx context.Context, reg backend.Registration) (Snapshot, error) {
	v, err, _ := m.group.Do("register:"+users.NormalizeEmail(reg.Email), func() (any, error) {
		m.begin()
		defer m.end()

		res, err := m.auth.Register(ctx, reg)
		if err != nil {
			return nil, err
		}
		return m.commit(ctx, res, false, m.nowTime())
	})
	if err != nil {
		return m.Snapshot(), err
	}
	return v.(Snapshot), nil
}

// Refresh exchanges the session's refresh token for new tokens. Any failure
// clears the session, leaving it Unauthenticated. Overlapping calls share a
// single exchange.
func (m *Manager) Refresh(ctx context.Context) (Snapshot, error) {
	m.lock.RLock()
	current := m.session
	m.lock.RUnlock()

	m.begin()
	defer m.end()
	return m.refresh(ctx, current)
}

func (m *Manager) refresh(ctx context.Context, current session) (Snapshot, error) {
	v, err, _ := m.group.Do("refresh", func() (any, error) {
		if current.refreshToken == "" {
			m.reset(ctx)
			return nil, &autherrors.Error{Kind: autherrors.KindInvalidToken, Op: "[Manager.Refresh]", Err: autherrors.ErrNoRefreshToken}
		}

		res, err := m.auth.RefreshToken(ctx, current.refreshToken)
		if err != nil {
			m.reset(ctx)
			return nil, err
		}
		if res.User == nil {
			res.User = current.user
		}
		loginAt := current.lastLogin
		if loginAt.IsZero() {
			loginAt = m.nowTime()
		}
		return m.commit(ctx, res, current.rememberMe, loginAt)
	})
	if err != nil {
		return m.Snapshot(), err
	}
	return v.(Snapshot), nil
}

// Logout revokes the session remotely on a best effort basis and always
// clears it locally.
func (m *Manager) Logout(ctx context.Context) {
	m.lock.RLock()
	accessToken, refreshToken := m.session.accessToken, m.session.refreshToken
	m.lock.RUnlock()

	m.begin()
	defer m.end()

	m.auth.Logout(backend.WithAccessToken(ctx, accessToken), refreshToken)
	m.reset(ctx)
}

// UpdateUser replaces the signed-in user's record.
func (m *Manager) UpdateUser(ctx context.Context, user *users.User) (Snapshot, error) {
	if user == nil {
		return m.Snapshot(), errors.New("[Manager.UpdateUser] user is required")
	}
	if !m.IsTokenValid() {
		return m.Snapshot(), autherrors.ErrNotAuthenticated
	}

	m.begin()
	defer m.end()

	updated := *user
	updated.PasswordHash = ""
	data, err := json.Marshal(&updated)
	if err != nil {
		return m.Snapshot(), errors.Wrap(err, "[Manager.UpdateUser] marshal user")
	}

	m.writeLock.Lock()
	defer m.writeLock.Unlock()
	if err := m.store.Write(ctx, map[store.Key]string{store.KeyUser: string(data)}); err != nil {
		return m.Snapshot(), autherrors.Wrap(autherrors.KindStorage, "[Manager.UpdateUser]", err)
	}
	m.lock.Lock()
	m.session.user = &updated
	snap := m.session.snapshot(StateAuthenticated, false)
	m.lock.Unlock()
	return snap, nil
}

// commit persists an auth result, then mirrors it in memory. loginAt anchors
// the remember me window.
func (m *Manager) commit(ctx context.Context, res *backend.AuthResult, rememberMe bool, loginAt time.Time) (Snapshot, error) {
	if res == nil || res.User == nil || res.Token == "" {
		m.reset(ctx)
		return Snapshot{}, autherrors.New(autherrors.KindInternal, "[Manager.commit]", "backend returned an incomplete session")
	}

	user := *res.User
	user.PasswordHash = ""
	next := session{
		user:          &user,
		accessToken:   res.Token,
		refreshToken:  res.RefreshToken,
		authenticated: true,
		rememberMe:    rememberMe,
		lastLogin:     loginAt,
		tokenExpiry:   m.expiryFor(res, rememberMe, loginAt),
	}

	data, err := json.Marshal(next.user)
	if err != nil {
		m.reset(ctx)
		return Snapshot{}, errors.Wrap(err, "[Manager.commit] marshal user")
	}
	entries := map[store.Key]string{
		store.KeyUser:         string(data),
		store.KeyToken:        next.accessToken,
		store.KeyRefreshToken: next.refreshToken,
		store.KeyRememberMe:   store.FormatBool(next.rememberMe),
		store.KeyLastLogin:    store.FormatTime(next.lastLogin),
		store.KeyTokenExpiry:  store.FormatTime(next.tokenExpiry),
	}

	m.writeLock.Lock()
	if err := m.store.Write(ctx, entries); err != nil {
		m.writeLock.Unlock()
		m.reset(ctx)
		return Snapshot{}, autherrors.Wrap(autherrors.KindStorage, "[Manager.commit]", err)
	}
	m.lock.Lock()
	m.session = next
	snap := m.session.snapshot(StateAuthenticated, false)
	m.lock.Unlock()
	m.writeLock.Unlock()
	return snap, nil
}

// expiryFor is when the session stops being usable without a refresh: the
// backend's expiresIn, else the token's exp claim, else the configured
// lifetime. Remember me extends it to at least loginAt plus the remember me
// window.
func (m *Manager) expiryFor(res *backend.AuthResult, rememberMe bool, loginAt time.Time) time.Time {
	now := m.nowTime()
	var expiry time.Time
	switch {
	case res.ExpiresIn > 0:
		expiry = now.Add(time.Duration(res.ExpiresIn) * time.Millisecond)
	default:
		if exp, ok := jwt.UnverifiedExpiry(res.Token); ok {
			expiry = exp
		} else {
			expiry = now.Add(m.tokenExpiry)
		}
	}
	if rememberMe {
		if long := loginAt.Add(m.rememberMeExpiry); long.After(expiry) {
			expiry = long
		}
	}
	return expiry.UTC()
}

// reset clears the persisted session and the in-memory one.
func (m *Manager) reset(ctx context.Context) {
	m.writeLock.Lock()
	defer m.writeLock.Unlock()
	if err := m.store.Clear(ctx, store.SessionKeys); err != nil {
		log.Error().Err(err).Msg("failed to clear persisted session")
	}
	m.lock.Lock()
	m.session = session{}
	m.lock.Unlock()
}

func (m *Manager) Snapshot() Snapshot {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.session.snapshot(m.stateLocked(), m.inFlight > 0)
}

func (m *Manager) State() State {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.stateLocked()
}

// Role is the signed-in user's role, or empty when signed out.
func (m *Manager) Role() users.RoleType {
	return m.Snapshot().Role()
}

func (m *Manager) stateLocked() State {
	switch {
	case !m.hydrated && m.inFlight == 0:
		return StateUninitialized
	case m.inFlight > 0:
		return StateLoading
	case m.session.isAuthenticated():
		return StateAuthenticated
	default:
		return StateUnauthenticated
	}
}

// Subscribe registers fn to receive a snapshot after every completed
// transition. The returned func removes it.
func (m *Manager) Subscribe(fn func(Snapshot)) func() {
	m.subsLock.Lock()
	defer m.subsLock.Unlock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	return func() {
		m.subsLock.Lock()
		defer m.subsLock.Unlock()
		delete(m.subscribers, id)
	}
}

// begin enters Loading.
func (m *Manager) begin() {
	m.lock.Lock()
	m.inFlight++
	first := m.inFlight == 1
	m.lock.Unlock()
	if first {
		m.transitioned(StateLoading)
	}
}

// end leaves Loading once the last in-flight operation completes.
func (m *Manager) end() {
	m.lock.Lock()
	m.inFlight--
	m.hydrated = true
	state := m.stateLocked()
	m.lock.Unlock()
	if state != StateLoading {
		m.transitioned(state)
	}
}

func (m *Manager) transitioned(state State) {
	log.Debug().Str("state", state.String()).Msg("session transition")
	m.metrics.Transition(state.String())

	snap := m.Snapshot()
	m.subsLock.Lock()
	subs := make([]func(Snapshot), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.subsLock.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}
