package backend

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/dentalization-auth/internal/metrics"
	"github.com/rs/zerolog/log"
)

// HealthChecker is the part of a Backend the selector probes.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Selector decides which strategy serves the next auth operation.
type Selector struct {
	useMock  bool
	realDB   HealthChecker
	cacheTTL time.Duration
	probeTTL time.Duration
	metrics  *metrics.Metrics
	nowTime  func() time.Time

	lock      sync.Mutex
	healthy   bool
	checkedAt time.Time
}

type SelectorOption func(*Selector)

// WithHealthCacheTTL reuses a probe result for ttl. Zero probes on every call.
func WithHealthCacheTTL(ttl time.Duration) SelectorOption {
	return func(s *Selector) {
		s.cacheTTL = ttl
	}
}

// WithProbeTimeout bounds each health probe.
func WithProbeTimeout(timeout time.Duration) SelectorOption {
	return func(s *Selector) {
		s.probeTTL = timeout
	}
}

func WithMetrics(m *metrics.Metrics) SelectorOption {
	return func(s *Selector) {
		s.metrics = m
	}
}

// WithNowFunc sets the clock used for the health cache (primarily for testing)
func WithNowFunc(now func() time.Time) SelectorOption {
	return func(s *Selector) {
		s.nowTime = now
	}
}

// NewSelector creates a selector. realDB may be nil when no database is
// configured, in which case it is always treated as unhealthy.
func NewSelector(useMock bool, realDB HealthChecker, options ...SelectorOption) *Selector {
	s := &Selector{
		useMock:  useMock,
		realDB:   realDB,
		probeTTL: 2 * time.Second,
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// UseMock reports whether every call is pinned to the mock backend.
func (s *Selector) UseMock() bool {
	return s.useMock
}

// Resolve returns StrategyMock when the mock flag is set, StrategyRealDatabase
// when its probe succeeds and StrategyRESTAPI otherwise. The REST API is not
// probed; it is assumed reachable.
func (s *Selector) Resolve(ctx context.Context) Strategy {
	strategy := s.resolve(ctx)
	s.metrics.Resolved(strategy.String())
	return strategy
}

func (s *Selector) resolve(ctx context.Context) Strategy {
	if s.useMock {
		return StrategyMock
	}
	if s.RealDatabaseHealthy(ctx) {
		return StrategyRealDatabase
	}
	return StrategyRESTAPI
}

// RealDatabaseHealthy probes the real database, reusing a recent result when
// a cache TTL is configured. Probe errors mean unhealthy and are not returned.
func (s *Selector) RealDatabaseHealthy(ctx context.Context) bool {
	if s.realDB == nil {
		return false
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	now := s.nowTime()
	if s.cacheTTL > 0 && !s.checkedAt.IsZero() && now.Sub(s.checkedAt) < s.cacheTTL {
		return s.healthy
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.probeTTL)
	defer cancel()
	err := s.realDB.Health(probeCtx)
	if err != nil {
		log.Debug().Err(err).Msg("real database health probe failed")
	}
	s.healthy = err == nil
	s.checkedAt = now
	return s.healthy
}

// Invalidate drops the cached probe result so the next call probes again.
func (s *Selector) Invalidate() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.checkedAt = time.Time{}
}
