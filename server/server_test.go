package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jrsteele09/dentalization-auth/backend"
	"github.com/jrsteele09/dentalization-auth/backend/mock"
	"github.com/jrsteele09/dentalization-auth/internal/config"
	autherrors "github.com/jrsteele09/dentalization-auth/internal/errors"
	"github.com/jrsteele09/dentalization-auth/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	server  *server.Server
	backend *mock.Backend
}

func setupTestFixture(t *testing.T, vars map[string]string) *testFixture {
	t.Helper()
	if vars == nil {
		vars = map[string]string{"RATE_LIMIT_ENABLED": "false"}
	}
	cfg, err := config.FromMap(vars)
	require.NoError(t, err)

	b := mock.New()
	s, err := server.New(cfg, b, server.WithGatherer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return &testFixture{server: s, backend: b}
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (f *testFixture) post(t *testing.T, path string, body any) (*httptest.ResponseRecorder, response) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	var resp response
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestLogin(t *testing.T) {
	f := setupTestFixture(t, nil)

	t.Run("Seeded account", func(t *testing.T) {
		rec, resp := f.post(t, "/api/auth/login", map[string]any{"email": "dentist@test.com", "password": "password"})
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, resp.Success)

		var data struct {
			User struct {
				Role   string `json:"role"`
				Status string `json:"status"`
			} `json:"user"`
			Token     string `json:"token"`
			ExpiresIn int64  `json:"expiresIn"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &data))
		require.Equal(t, "DENTIST", data.User.Role)
		require.Equal(t, "ACTIVE", data.User.Status)
		require.True(t, strings.HasPrefix(data.Token, mock.TokenPrefix))
		require.Equal(t, int64(86400000), data.ExpiresIn)
		require.NotContains(t, rec.Body.String(), "passwordHash")
	})

	t.Run("Unknown email", func(t *testing.T) {
		rec, resp := f.post(t, "/api/auth/login", map[string]any{"email": "nobody@test.com", "password": "password"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.False(t, resp.Success)
		require.Equal(t, "Invalid email or password", resp.Message)
	})

	t.Run("Missing password", func(t *testing.T) {
		rec, resp := f.post(t, "/api/auth/login", map[string]any{"email": "test@example.com"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Len(t, resp.Errors, 1)
		require.Equal(t, "password", resp.Errors[0].Field)
	})

	t.Run("Malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRegister(t *testing.T) {
	f := setupTestFixture(t, nil)
	body := map[string]any{
		"email":     "budi@test.com",
		"password":  "password123",
		"firstName": "Budi",
		"lastName":  "Santoso",
		"role":      "PATIENT",
	}

	rec, resp := f.post(t, "/api/auth/register", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, resp.Success)

	rec, resp = f.post(t, "/api/auth/register", body)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.False(t, resp.Success)

	rec, _ = f.post(t, "/api/auth/register", map[string]any{"email": "x@test.com"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshAndLogout(t *testing.T) {
	f := setupTestFixture(t, nil)

	rec, _ := f.post(t, "/api/auth/refresh", map[string]any{"refreshToken": "garbage"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, resp := f.post(t, "/api/auth/refresh", map[string]any{"refreshToken": mock.RefreshTokenPrefix + "1"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)

	rec, resp = f.post(t, "/api/auth/logout", map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)
}

func TestHealth(t *testing.T) {
	t.Run("Healthy", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("Unhealthy", func(t *testing.T) {
		cfg, err := config.FromMap(map[string]string{})
		require.NoError(t, err)
		s, err := server.New(cfg, &downBackend{Backend: mock.New()}, server.WithGatherer(prometheus.NewRegistry()))
		require.NoError(t, err)
		defer s.Close()

		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

// downBackend only exposes backend.Backend, so it has no recovery flows.
type downBackend struct {
	backend.Backend
}

func (d *downBackend) Health(context.Context) error {
	return autherrors.WithOp(autherrors.ErrUnavailable, "[downBackend.Health]")
}

func TestRecovery(t *testing.T) {
	t.Run("Forgot password", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		rec, resp := f.post(t, "/api/auth/forgot-password", map[string]any{"email": "someone@test.com"})
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, resp.Success)
	})

	t.Run("Reset password too short", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		rec, _ := f.post(t, "/api/auth/reset-password", map[string]any{"token": "t", "password": "short"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Unsupported backend", func(t *testing.T) {
		cfg, err := config.FromMap(map[string]string{})
		require.NoError(t, err)
		s, err := server.New(cfg, &downBackend{Backend: mock.New()}, server.WithGatherer(prometheus.NewRegistry()))
		require.NoError(t, err)
		defer s.Close()

		req := httptest.NewRequest(http.MethodPost, "/api/auth/verify-email", strings.NewReader(`{"token":"x"}`))
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNotImplemented, rec.Code)
	})

	t.Run("Upload document", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("document", "str.pdf")
		require.NoError(t, err)
		_, _ = part.Write([]byte("%PDF-1.4"))
		require.NoError(t, mw.Close())

		send := func(token string) int {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/upload-document", bytes.NewReader(buf.Bytes()))
			req.Header.Set("Content-Type", mw.FormDataContentType())
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			rec := httptest.NewRecorder()
			f.server.ServeHTTP(rec, req)
			return rec.Code
		}
		require.Equal(t, http.StatusUnauthorized, send(""))
		require.Equal(t, http.StatusForbidden, send("not-a-mock-token"))
		require.Equal(t, http.StatusOK, send(mock.TokenPrefix+"1"))
	})
}

func TestRateLimit(t *testing.T) {
	f := setupTestFixture(t, map[string]string{
		"RATE_LIMIT_ENABLED":     "true",
		"RATE_LIMIT_LOGIN_RPS":   "0.001",
		"RATE_LIMIT_LOGIN_BURST": "2",
	})
	creds := map[string]any{"email": "test@example.com", "password": "password"}

	for i := 0; i < 2; i++ {
		rec, _ := f.post(t, "/api/auth/login", creds)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, _ := f.post(t, "/api/auth/login", creds)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Refresh is not rate limited.
	rec, _ = f.post(t, "/api/auth/refresh", map[string]any{"refreshToken": mock.RefreshTokenPrefix + "1"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := setupTestFixture(t, nil)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS(t *testing.T) {
	f := setupTestFixture(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:8081")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	require.Equal(t, "http://localhost:8081", rec.Header().Get("Access-Control-Allow-Origin"))
}
