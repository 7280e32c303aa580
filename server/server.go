// Package server is a development implementation of the Dentalization auth
// HTTP API. It serves the same contract the restapi backend consumes, backed
// by any backend.Backend.
package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jrsteele09/dentalization-auth/backend"
	"github.com/jrsteele09/dentalization-auth/internal/config"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	router   chi.Router
	routes   []string
	config   config.Config
	backend  backend.Backend
	recovery backend.AccountRecovery // nil when the backend has no recovery flows
	validate *validator.Validate
	visitors *visitorStore
	gatherer prometheus.Gatherer
}

type Option func(*Server)

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

func New(cfg config.Config, b backend.Backend, options ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[server.New] config is required")
	}
	if b == nil {
		return nil, errors.New("[server.New] backend is required")
	}

	s := &Server{
		env:      cfg.GetEnv(),
		router:   chi.NewRouter(),
		config:   cfg,
		backend:  b,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		gatherer: prometheus.DefaultGatherer,
	}
	if r, ok := b.(backend.AccountRecovery); ok {
		s.recovery = r
	}
	if cfg.GetEnableRateLimiting() {
		s.visitors = newVisitorStore(cfg.GetLoginRateLimit(), cfg.GetLoginRateBurst(), cfg.GetVisitorTTL())
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the rate limiter's cleanup loop.
func (s *Server) Close() {
	if s.visitors != nil {
		s.visitors.stop()
	}
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Info().Msgf("[%-19s] %s", displayMethod, path)
}
