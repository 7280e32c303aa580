// Package auth is the single entry point for auth operations. It asks the
// selector which backend to use and falls through to the lower-priority
// backends when an attempt fails.
package auth

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/jrsteele09/dentalization-auth/backend"
	autherrors "github.com/jrsteele09/dentalization-auth/internal/errors"
	"github.com/jrsteele09/dentalization-auth/internal/metrics"
	"github.com/jrsteele09/dentalization-auth/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Backends holds the strategy implementations. RealDatabase and RESTAPI may
// be nil when they are not configured.
type Backends struct {
	RealDatabase backend.Backend
	RESTAPI      backend.Backend
	Mock         backend.Backend
}

// HealthReport is the reachability of each remote backend.
type HealthReport struct {
	Strategy     backend.Strategy `json:"strategy"`
	RealDatabase bool             `json:"realDatabase"`
	RESTAPI      bool             `json:"restApi"`
}

// Healthy reports whether either remote backend is reachable.
func (h HealthReport) Healthy() bool {
	return h.RealDatabase || h.RESTAPI
}

// Service runs auth operations across the configured backends.
type Service struct {
	backends     map[backend.Strategy]backend.Backend
	selector     *backend.Selector
	mockFallback bool
	metrics      *metrics.Metrics
	language     string
	probeTimeout time.Duration
	nowTime      func() time.Time
}

type ServiceOption func(*Service)

// WithMockFallback controls whether login and register fall back to the mock
// backend when every remote backend failed.
func WithMockFallback(enabled bool) ServiceOption {
	return func(s *Service) {
		s.mockFallback = enabled
	}
}

func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLanguage sets the language of UserMessage.
func WithLanguage(lang string) ServiceOption {
	return func(s *Service) {
		s.language = lang
	}
}

// WithProbeTimeout bounds the REST API health probe.
func WithProbeTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		s.probeTimeout = timeout
	}
}

// WithNowTime sets the clock used for attempt timings (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func NewService(backends Backends, selector *backend.Selector, options ...ServiceOption) (*Service, error) {
	if selector == nil {
		return nil, errors.New("[NewService] selector is required")
	}

	s := &Service{
		backends:     make(map[backend.Strategy]backend.Backend, 3),
		selector:     selector,
		mockFallback: true,
		language:     autherrors.LangEnglish,
		probeTimeout: 2 * time.Second,
		nowTime:      time.Now,
	}
	for _, opt := range options {
		opt(s)
	}

	for strategy, b := range map[backend.Strategy]backend.Backend{
		backend.StrategyRealDatabase: backends.RealDatabase,
		backend.StrategyRESTAPI:      backends.RESTAPI,
		backend.StrategyMock:         backends.Mock,
	} {
		if b != nil {
			s.backends[strategy] = b
		}
	}

	if backends.Mock == nil && (selector.UseMock() || s.mockFallback) {
		return nil, errors.New("[NewService] mock backend is required when mock mode or mock fallback is enabled")
	}
	return s, nil
}

// Strategy returns the backend the next call would start with.
func (s *Service) Strategy(ctx context.Context) backend.Strategy {
	return s.selector.Resolve(ctx)
}

// chain lists the backends to try for a fallthrough operation: the resolved
// strategy, then every lower-priority one. Mock is only included when it was
// resolved or mock fallback is enabled.
func (s *Service) chain(ctx context.Context) []backend.Backend {
	resolved := s.selector.Resolve(ctx)

	var chain []backend.Backend
	started := false
	for _, strategy := range backend.Priority {
		if strategy == resolved {
			started = true
		}
		if !started {
			continue
		}
		if strategy == backend.StrategyMock && resolved != backend.StrategyMock && !s.mockFallback {
			continue
		}
		if b, ok := s.backends[strategy]; ok {
			chain = append(chain, b)
		}
	}
	return chain
}

// run tries call against each backend in chain in order until one succeeds.
// When all fail, the error from the highest-priority backend that actually
// answered is returned, or the last transport error if none did. A cancelled
// caller context stops the chain.
func (s *Service) run(ctx context.Context, op string, chain []backend.Backend, call func(backend.Backend) error) error {
	if len(chain) == 0 {
		return autherrors.WithOp(ErrNoBackend, "[Service."+op+"]")
	}

	var surfaced, last error
	for i, b := range chain {
		start := s.nowTime()
		err := call(b)
		s.metrics.ObserveAttempt(b.Strategy().String(), op, err, s.nowTime().Sub(start))
		if err == nil {
			if i > 0 {
				log.Info().Str("strategy", b.Strategy().String()).Str("operation", op).Msg("served by fallback backend")
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		last = err
		if surfaced == nil && !autherrors.KindOf(err).Transport() {
			surfaced = err
		}
		if i < len(chain)-1 {
			log.Warn().Err(err).Str("strategy", b.Strategy().String()).Str("operation", op).Msg("auth backend failed, falling through")
			s.metrics.Fallthrough(b.Strategy().String(), op)
		}
	}

	if surfaced != nil {
		return surfaced
	}
	return last
}

func (s *Service) Login(ctx context.Context, creds backend.Credentials) (*backend.AuthResult, error) {
	creds.Email = users.NormalizeEmail(creds.Email)

	var result *backend.AuthResult
	err := s.run(ctx, "login", s.chain(ctx), func(b backend.Backend) error {
		res, err := b.Login(ctx, creds)
		result = res
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) Register(ctx context.Context, reg backend.Registration) (*backend.AuthResult, error) {
	reg.Email = users.NormalizeEmail(reg.Email)
	reg.FirstName = strings.TrimSpace(reg.FirstName)
	reg.LastName = strings.TrimSpace(reg.LastName)
	reg.Phone = strings.TrimSpace(reg.Phone)
	if reg.Role == "" {
		reg.Role = users.RolePatient
	}

	var result *backend.AuthResult
	err := s.run(ctx, "register", s.chain(ctx), func(b backend.Backend) error {
		res, err := b.Register(ctx, reg)
		result = res
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RefreshToken refreshes through the resolved backend only. It never falls
// back to mock, so a session cannot silently become a mock session.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*backend.AuthResult, error) {
	if refreshToken == "" {
		return nil, &autherrors.Error{Kind: autherrors.KindInvalidToken, Op: "[Service.RefreshToken]", Err: autherrors.ErrNoRefreshToken}
	}
	strategy := s.selector.Resolve(ctx)
	b, ok := s.backends[strategy]
	if !ok {
		return nil, autherrors.WithOp(ErrNoBackend, "[Service.RefreshToken]")
	}

	start := s.nowTime()
	res, err := b.Refresh(ctx, refreshToken)
	s.metrics.ObserveAttempt(strategy.String(), "refresh", err, s.nowTime().Sub(start))
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Logout revokes refreshToken on the resolved backend. Failures are logged
// and otherwise ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) {
	strategy := s.selector.Resolve(ctx)
	b, ok := s.backends[strategy]
	if !ok {
		return
	}
	start := s.nowTime()
	err := b.Logout(ctx, refreshToken)
	s.metrics.ObserveAttempt(strategy.String(), "logout", err, s.nowTime().Sub(start))
	if err != nil {
		log.Warn().Err(err).Str("strategy", strategy.String()).Msg("logout failed")
	}
}

// HealthCheck reports whether the real database or the REST API is
// reachable. It is diagnostic only and does not affect strategy selection.
func (s *Service) HealthCheck(ctx context.Context) bool {
	return s.Health(ctx).Healthy()
}

func (s *Service) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Strategy:     s.selector.Resolve(ctx),
		RealDatabase: s.selector.RealDatabaseHealthy(ctx),
	}
	if b, ok := s.backends[backend.StrategyRESTAPI]; ok {
		probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
		defer cancel()
		if err := b.Health(probeCtx); err != nil {
			log.Debug().Err(err).Msg("REST API health probe failed")
		} else {
			report.RESTAPI = true
		}
	}
	return report
}

// UserMessage returns the localized message for an error returned by the
// service.
func (s *Service) UserMessage(err error) string {
	return autherrors.UserMessage(err, s.language)
}

// recoveryChain is the fallthrough chain restricted to backends with
// account recovery flows.
func (s *Service) recoveryChain(ctx context.Context) []backend.Backend {
	var chain []backend.Backend
	for _, b := range s.chain(ctx) {
		if _, ok := b.(backend.AccountRecovery); ok {
			chain = append(chain, b)
		}
	}
	return chain
}

func (s *Service) recoverAccount(ctx context.Context, op string, call func(backend.AccountRecovery) error) error {
	chain := s.recoveryChain(ctx)
	if len(chain) == 0 {
		return autherrors.WithOp(ErrRecoveryUnsupported, "[Service."+op+"]")
	}
	return s.run(ctx, op, chain, func(b backend.Backend) error {
		return call(b.(backend.AccountRecovery))
	})
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	return s.recoverAccount(ctx, "verify_email", func(r backend.AccountRecovery) error {
		return r.VerifyEmail(ctx, token)
	})
}

func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = users.NormalizeEmail(email)
	return s.recoverAccount(ctx, "forgot_password", func(r backend.AccountRecovery) error {
		return r.ForgotPassword(ctx, email)
	})
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	return s.recoverAccount(ctx, "reset_password", func(r backend.AccountRecovery) error {
		return r.ResetPassword(ctx, token, newPassword)
	})
}

// UploadVerificationDocument buffers r so a fallback attempt resends the
// whole document.
func (s *Service) UploadVerificationDocument(ctx context.Context, accessToken, filename string, r io.Reader) error {
	doc, err := io.ReadAll(r)
	if err != nil {
		return autherrors.Wrap(autherrors.KindInternal, "[Service.UploadVerificationDocument]", err)
	}
	return s.recoverAccount(ctx, "upload_document", func(rec backend.AccountRecovery) error {
		return rec.UploadVerificationDocument(ctx, accessToken, filename, bytes.NewReader(doc))
	})
}
