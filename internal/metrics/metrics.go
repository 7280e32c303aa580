package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors for the auth lifecycle. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	attempts     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	fallthroughs *prometheus.CounterVec
	resolutions  *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_backend_attempts_total",
				Help: "Total auth backend calls by strategy, operation and outcome",
			},
			[]string{"strategy", "operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "auth_backend_duration_seconds",
				Help:    "Latency of auth backend calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"strategy", "operation"},
		),
		fallthroughs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_fallthrough_total",
				Help: "Total times an operation fell through to a lower priority backend",
			},
			[]string{"from", "operation"},
		),
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_strategy_resolutions_total",
				Help: "Total backend strategy resolutions by chosen strategy",
			},
			[]string{"strategy"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_session_transitions_total",
				Help: "Total session state machine transitions by target state",
			},
			[]string{"state"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
	}
	reg.MustRegister(m.attempts, m.duration, m.fallthroughs, m.resolutions, m.transitions, m.breakerState)
	return m
}

// ObserveAttempt records one backend call.
func (m *Metrics) ObserveAttempt(strategy, operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.attempts.WithLabelValues(strategy, operation, outcome).Inc()
	m.duration.WithLabelValues(strategy, operation).Observe(elapsed.Seconds())
}

func (m *Metrics) Fallthrough(from, operation string) {
	if m == nil {
		return
	}
	m.fallthroughs.WithLabelValues(from, operation).Inc()
}

func (m *Metrics) Resolved(strategy string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(strategy).Inc()
}

func (m *Metrics) Transition(state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
}

// BreakerState sets the gauge for a named circuit breaker.
func (m *Metrics) BreakerState(name string, value float64) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(value)
}
