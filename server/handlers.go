package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jrsteele09/dentalization-auth/backend"
	autherrors "github.com/jrsteele09/dentalization-auth/internal/errors"
	"github.com/jrsteele09/dentalization-auth/users"
	"github.com/rs/zerolog/log"
)

// envelope is the wrapper every auth response uses.
type envelope struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Message string       `json:"message,omitempty"`
	Errors  []fieldError `json:"errors,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// userResponse is the user as the API exposes it: upper-case role and status.
type userResponse struct {
	users.User
	Role   string `json:"role"`
	Status string `json:"status"`
}

type authResponse struct {
	User         userResponse `json:"user"`
	Token        string       `json:"token"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresIn"`
}

func newAuthResponse(res *backend.AuthResult) authResponse {
	u := *res.User
	u.PasswordHash = ""
	status := u.Status
	if status == "" {
		status = users.StatusActive
	}
	return authResponse{
		User: userResponse{
			User:   u,
			Role:   u.Role.BackendName(),
			Status: strings.ToUpper(string(status)),
		},
		Token:        res.Token,
		RefreshToken: res.RefreshToken,
		ExpiresIn:    res.ExpiresIn,
	}
}

type registerRequest struct {
	backend.Registration
	Role string `json:"role"`
}

type tokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type verifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var creds backend.Credentials
		if !s.decodeAndValidate(w, r, &creds) {
			return
		}
		res, err := s.backend.Login(r.Context(), creds)
		if err != nil {
			switch autherrors.KindOf(err) {
			// Unknown emails are not disclosed.
			case autherrors.KindInvalidCredentials, autherrors.KindUserNotFound:
				writeFailure(w, http.StatusUnauthorized, "Invalid email or password", nil)
			default:
				s.writeError(w, r, err)
			}
			return
		}
		writeSuccess(w, http.StatusOK, newAuthResponse(res), "Login successful")
	}
}

func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if !s.decode(w, r, &req) {
			return
		}
		reg := req.Registration
		reg.Role = users.ParseRole(req.Role)
		if !s.validateRequest(w, &reg) {
			return
		}

		res, err := s.backend.Register(r.Context(), reg)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusCreated, newAuthResponse(res), "Registration successful")
	}
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		if !s.decodeAndValidate(w, r, &req) {
			return
		}
		res, err := s.backend.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, newAuthResponse(res), "")
	}
}

// LogoutHandler always succeeds. Revocation failures are only logged.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RefreshToken string `json:"refreshToken"`
		}
		if r.ContentLength != 0 {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		ctx := r.Context()
		if token, ok := bearerToken(r); ok {
			ctx = backend.WithAccessToken(ctx, token)
		}
		if err := s.backend.Logout(ctx, req.RefreshToken); err != nil {
			log.Warn().Err(err).Msg("logout revocation failed")
		}
		writeSuccess(w, http.StatusOK, nil, "Logged out")
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.backend.Health(r.Context()); err != nil {
			log.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) VerifyEmailHandler() http.HandlerFunc {
	return s.recoveryHandler(func(w http.ResponseWriter, r *http.Request) error {
		var req verifyEmailRequest
		if !s.decodeAndValidate(w, r, &req) {
			return nil
		}
		if err := s.recovery.VerifyEmail(r.Context(), req.Token); err != nil {
			return err
		}
		writeSuccess(w, http.StatusOK, nil, "Email verified")
		return nil
	})
}

// ForgotPasswordHandler answers the same way whether or not the email is
// registered.
func (s *Server) ForgotPasswordHandler() http.HandlerFunc {
	return s.recoveryHandler(func(w http.ResponseWriter, r *http.Request) error {
		var req forgotPasswordRequest
		if !s.decodeAndValidate(w, r, &req) {
			return nil
		}
		if err := s.recovery.ForgotPassword(r.Context(), users.NormalizeEmail(req.Email)); err != nil {
			if autherrors.KindOf(err) != autherrors.KindUserNotFound {
				return err
			}
		}
		writeSuccess(w, http.StatusOK, nil, "If the email is registered, a reset link has been sent")
		return nil
	})
}

func (s *Server) ResetPasswordHandler() http.HandlerFunc {
	return s.recoveryHandler(func(w http.ResponseWriter, r *http.Request) error {
		var req resetPasswordRequest
		if !s.decodeAndValidate(w, r, &req) {
			return nil
		}
		if err := s.recovery.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
			return err
		}
		writeSuccess(w, http.StatusOK, nil, "Password updated")
		return nil
	})
}

func (s *Server) UploadDocumentHandler() http.HandlerFunc {
	return s.recoveryHandler(func(w http.ResponseWriter, r *http.Request) error {
		token, ok := bearerToken(r)
		if !ok {
			writeFailure(w, http.StatusUnauthorized, "missing bearer token", nil)
			return nil
		}
		file, header, err := r.FormFile("document")
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "document is required", nil)
			return nil
		}
		defer file.Close()

		if err := s.recovery.UploadVerificationDocument(r.Context(), token, header.Filename, file); err != nil {
			return err
		}
		writeSuccess(w, http.StatusOK, nil, "Document uploaded")
		return nil
	})
}

// recoveryHandler rejects the request when the backend has no recovery
// flows and writes any error fn returns.
func (s *Server) recoveryHandler(fn func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.recovery == nil {
			writeFailure(w, http.StatusNotImplemented, "account recovery is not supported", nil)
			return
		}
		if err := fn(w, r); err != nil {
			s.writeError(w, r, err)
		}
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return token, token != ""
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeFailure(w, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return false
		}
		writeFailure(w, http.StatusBadRequest, "invalid request body", nil)
		return false
	}
	return true
}

func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	return s.decode(w, r, dst) && s.validateRequest(w, dst)
}

func (s *Server) validateRequest(w http.ResponseWriter, v any) bool {
	err := s.validate.Struct(v)
	if err == nil {
		return true
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		writeFailure(w, http.StatusBadRequest, "invalid request", nil)
		return false
	}
	fields := make([]fieldError, 0, len(ve))
	for _, fe := range ve {
		fields = append(fields, fieldError{Field: jsonFieldName(fe.Field()), Message: msgForTag(fe)})
	}
	writeFailure(w, http.StatusBadRequest, "Validation failed", fields)
	return false
}

func jsonFieldName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func msgForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "datetime":
		return fmt.Sprintf("must be a date formatted as %s", fe.Param())
	default:
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
}

// writeError maps a classified backend error to its HTTP status.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForKind(autherrors.KindOf(err))
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	message := http.StatusText(status)
	var ae *autherrors.Error
	if errors.As(err, &ae) && ae.Message != "" && status < http.StatusInternalServerError {
		message = ae.Message
	}
	writeFailure(w, status, message, nil)
}

func statusForKind(kind autherrors.Kind) int {
	switch kind {
	case autherrors.KindValidation:
		return http.StatusBadRequest
	case autherrors.KindInvalidCredentials, autherrors.KindInvalidToken:
		return http.StatusUnauthorized
	case autherrors.KindForbidden, autherrors.KindAccountInactive:
		return http.StatusForbidden
	case autherrors.KindUserNotFound:
		return http.StatusNotFound
	case autherrors.KindAlreadyExists:
		return http.StatusConflict
	case autherrors.KindTimeout:
		return http.StatusGatewayTimeout
	case autherrors.KindNetwork, autherrors.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeSuccess(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, envelope{Success: true, Data: data, Message: message})
}

func writeFailure(w http.ResponseWriter, status int, message string, fields []fieldError) {
	writeJSON(w, status, envelope{Success: false, Message: message, Errors: fields})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
