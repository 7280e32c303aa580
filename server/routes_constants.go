package server

// Route path constants. Auth and health routes are mounted under RouteAPI.
const (
	RouteAPI     = "/api"
	RouteMetrics = "/metrics"
	RouteHealth  = "/health"

	// Auth Routes - Session
	RouteAuthLogin    = "/auth/login"
	RouteAuthRegister = "/auth/register"
	RouteAuthRefresh  = "/auth/refresh"
	RouteAuthLogout   = "/auth/logout"

	// Auth Routes - Account recovery
	RouteVerifyEmail    = "/auth/verify-email"
	RouteForgotPassword = "/auth/forgot-password"
	RouteResetPassword  = "/auth/reset-password"
	RouteUploadDocument = "/auth/upload-document"
)
