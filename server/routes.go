package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(s.LoggingMiddleware)
	s.router.Use(s.RecoverMiddleware)
	s.router.Use(s.CorsMiddleware())

	s.register(http.MethodGet, RouteMetrics, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.router.Route(RouteAPI, func(r chi.Router) {
		r.Use(s.BodyLimitMiddleware)

		s.registerIn(r, http.MethodGet, RouteHealth, s.HealthHandler())

		// Session routes, rate limited per client IP
		r.Group(func(r chi.Router) {
			r.Use(s.RateLimitMiddleware)
			s.registerIn(r, http.MethodPost, RouteAuthLogin, s.LoginHandler())
			s.registerIn(r, http.MethodPost, RouteAuthRegister, s.RegisterHandler())
		})
		s.registerIn(r, http.MethodPost, RouteAuthRefresh, s.RefreshHandler())
		s.registerIn(r, http.MethodPost, RouteAuthLogout, s.LogoutHandler())

		// Account recovery
		s.registerIn(r, http.MethodPost, RouteVerifyEmail, s.VerifyEmailHandler())
		s.registerIn(r, http.MethodPost, RouteForgotPassword, s.ForgotPasswordHandler())
		s.registerIn(r, http.MethodPost, RouteResetPassword, s.ResetPasswordHandler())
		s.registerIn(r, http.MethodPost, RouteUploadDocument, s.UploadDocumentHandler())
	})
}

func (s *Server) register(method, pattern string, handler http.Handler) {
	s.routes = append(s.routes, method+" "+pattern)
	s.router.Method(method, pattern, handler)
}

func (s *Server) registerIn(r chi.Router, method, pattern string, handler http.HandlerFunc) {
	s.routes = append(s.routes, method+" "+RouteAPI+pattern)
	r.Method(method, pattern, handler)
}
