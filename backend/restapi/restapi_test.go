package restapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/dentalization-auth/backend"
	"github.com/jrsteele09/dentalization-auth/backend/mock"
	"github.com/jrsteele09/dentalization-auth/backend/restapi"
	"github.com/jrsteele09/dentalization-auth/internal/config"
	autherrors "github.com/jrsteele09/dentalization-auth/internal/errors"
	"github.com/jrsteele09/dentalization-auth/internal/metrics"
	"github.com/jrsteele09/dentalization-auth/server"
	"github.com/jrsteele09/dentalization-auth/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	api     *httptest.Server
	mock    *mock.Backend
	backend *restapi.Backend
}

// setupTestFixture runs the dev auth server over the mock backend and points
// a REST client at it.
func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	cfg, err := config.FromMap(map[string]string{"RATE_LIMIT_ENABLED": "false"})
	require.NoError(t, err)

	f := &testFixture{mock: mock.New()}
	srv, err := server.New(cfg, f.mock, server.WithGatherer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	f.api = httptest.NewServer(srv)
	t.Cleanup(f.api.Close)

	f.backend, err = restapi.New(f.api.URL + "/api")
	require.NoError(t, err)
	return f
}

func TestNew(t *testing.T) {
	_, err := restapi.New("  ")
	require.Error(t, err)
}

func TestAgainstDevServer(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	t.Run("Login maps backend roles", func(t *testing.T) {
		res, err := f.backend.Login(ctx, backend.Credentials{Email: "dentist@test.com", Password: "password", RememberMe: true})
		require.NoError(t, err)
		require.Equal(t, users.RoleDentist, res.User.Role)
		require.Equal(t, users.StatusActive, res.User.Status)
		require.True(t, res.User.IsActive)
		require.Equal(t, "id", res.User.Language)
		require.Equal(t, int64(30*24*60*60*1000), res.ExpiresIn)
		require.True(t, strings.HasPrefix(res.Token, mock.TokenPrefix))
	})

	t.Run("Unknown email is invalid credentials", func(t *testing.T) {
		_, err := f.backend.Login(ctx, backend.Credentials{Email: "nobody@test.com", Password: "password"})
		require.Equal(t, autherrors.KindInvalidCredentials, autherrors.KindOf(err))
		require.Contains(t, err.Error(), "Invalid email or password")
	})

	t.Run("Register then duplicate", func(t *testing.T) {
		reg := backend.Registration{
			Email:     "ani@test.com",
			Password:  "password123",
			FirstName: "Ani",
			LastName:  "Rahma",
			Role:      users.RoleDentist,
			Profile:   users.Profile{LicenseNumber: "STR-9"},
		}
		res, err := f.backend.Register(ctx, reg)
		require.NoError(t, err)
		require.Equal(t, users.RoleDentist, res.User.Role)
		require.Equal(t, "STR-9", res.User.LicenseNumber)

		_, err = f.backend.Register(ctx, reg)
		require.Equal(t, autherrors.KindAlreadyExists, autherrors.KindOf(err))
	})

	t.Run("Refresh", func(t *testing.T) {
		res, err := f.backend.Refresh(ctx, mock.RefreshTokenPrefix+"42")
		require.NoError(t, err)
		require.NotEmpty(t, res.Token)

		_, err = f.backend.Refresh(ctx, "not-a-refresh-token")
		require.ErrorIs(t, err, autherrors.ErrInvalidRefreshToken)
	})

	t.Run("Logout", func(t *testing.T) {
		require.NoError(t, f.backend.Logout(backend.WithAccessToken(ctx, mock.TokenPrefix+"1"), mock.RefreshTokenPrefix+"1"))
	})

	t.Run("Health", func(t *testing.T) {
		require.NoError(t, f.backend.Health(ctx))
	})

	t.Run("Account recovery", func(t *testing.T) {
		require.NoError(t, f.backend.ForgotPassword(ctx, "test@example.com"))
		require.NoError(t, f.backend.VerifyEmail(ctx, "verify_test@example.com"))
		err := f.backend.ResetPassword(ctx, "reset", "short")
		require.Equal(t, autherrors.KindValidation, autherrors.KindOf(err))

		require.NoError(t, f.backend.UploadVerificationDocument(ctx, mock.TokenPrefix+"1", "str.pdf", strings.NewReader("%PDF-1.4")))
		err = f.backend.UploadVerificationDocument(ctx, "other", "str.pdf", strings.NewReader("%PDF-1.4"))
		require.Equal(t, autherrors.KindForbidden, autherrors.KindOf(err))
	})
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func TestStatusMapping(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name   string
		status int
		kind   autherrors.Kind
	}{
		{"Bad request", http.StatusBadRequest, autherrors.KindValidation},
		{"Unprocessable", http.StatusUnprocessableEntity, autherrors.KindValidation},
		{"Unauthorized", http.StatusUnauthorized, autherrors.KindInvalidCredentials},
		{"Forbidden", http.StatusForbidden, autherrors.KindForbidden},
		{"Not found", http.StatusNotFound, autherrors.KindUserNotFound},
		{"Conflict", http.StatusConflict, autherrors.KindAlreadyExists},
		{"Server error", http.StatusInternalServerError, autherrors.KindUnavailable},
		{"Gateway timeout", http.StatusGatewayTimeout, autherrors.KindTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := httptest.NewServer(jsonHandler(tc.status, `{"success":false,"message":"nope"}`))
			defer api.Close()
			b, err := restapi.New(api.URL)
			require.NoError(t, err)

			_, err = b.Login(ctx, backend.Credentials{Email: "a@test.com", Password: "x"})
			require.Equal(t, tc.kind, autherrors.KindOf(err))
			require.Contains(t, err.Error(), "nope")
		})
	}

	t.Run("Login message distinguishes unknown email only on 404", func(t *testing.T) {
		for status, want := range map[int]string{
			http.StatusNotFound:     "Email is not registered. Please sign up first.",
			http.StatusUnauthorized: autherrors.UserMessage(autherrors.ErrInvalidCredentials, "en"),
		} {
			api := httptest.NewServer(jsonHandler(status, `{"success":false,"message":"Invalid email or password"}`))
			b, err := restapi.New(api.URL)
			require.NoError(t, err)

			_, err = b.Login(ctx, backend.Credentials{Email: "a@test.com", Password: "x"})
			require.Equal(t, want, autherrors.UserMessage(err, "en"), status)
			api.Close()
		}
	})

	t.Run("Success flag false on 200", func(t *testing.T) {
		api := httptest.NewServer(jsonHandler(http.StatusOK, `{"success":false,"message":"rejected"}`))
		defer api.Close()
		b, err := restapi.New(api.URL)
		require.NoError(t, err)

		_, err = b.Login(ctx, backend.Credentials{Email: "a@test.com", Password: "x"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "rejected")
	})

	t.Run("Unknown status values", func(t *testing.T) {
		body := `{"success":true,"data":{"user":{"id":"u1","email":"a@test.com","role":"SUPERUSER","status":"PENDING"},"token":"t","refreshToken":"r","expiresIn":1000}}`
		api := httptest.NewServer(jsonHandler(http.StatusOK, body))
		defer api.Close()
		b, err := restapi.New(api.URL)
		require.NoError(t, err)

		res, err := b.Login(ctx, backend.Credentials{Email: "a@test.com", Password: "x"})
		require.NoError(t, err)
		require.Equal(t, users.RolePatient, res.User.Role)
		require.Equal(t, users.StatusInactive, res.User.Status)
		require.False(t, res.User.IsActive)
	})
}

func TestTransportFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("Timeout", func(t *testing.T) {
		release := make(chan struct{})
		api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer api.Close()
		defer close(release)

		b, err := restapi.New(api.URL, restapi.WithTimeouts(restapi.Timeouts{Default: 50 * time.Millisecond, Login: 50 * time.Millisecond, Upload: 50 * time.Millisecond}))
		require.NoError(t, err)

		_, err = b.Login(ctx, backend.Credentials{Email: "a@test.com", Password: "x"})
		require.ErrorIs(t, err, autherrors.ErrRequestTimeout)
		require.True(t, autherrors.KindOf(err).Transport())
	})

	t.Run("Connection refused", func(t *testing.T) {
		api := httptest.NewServer(http.NotFoundHandler())
		url := api.URL
		api.Close()

		b, err := restapi.New(url)
		require.NoError(t, err)
		_, err = b.Login(ctx, backend.Credentials{Email: "a@test.com", Password: "x"})
		require.Equal(t, autherrors.KindNetwork, autherrors.KindOf(err))
		require.Error(t, b.Health(ctx))
	})

	t.Run("Cancelled caller", func(t *testing.T) {
		api := httptest.NewServer(jsonHandler(http.StatusOK, `{"success":true}`))
		defer api.Close()
		b, err := restapi.New(api.URL)
		require.NoError(t, err)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = b.Login(cctx, backend.Credentials{Email: "a@test.com", Password: "x"})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestCircuitBreaker(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		jsonHandler(http.StatusServiceUnavailable, `{"success":false,"message":"down"}`)(w, r)
	}))
	defer api.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	b, err := restapi.New(api.URL,
		restapi.WithBreaker(restapi.BreakerSettings{ConsecutiveFailures: 3, OpenTimeout: time.Minute}),
		restapi.WithMetrics(m),
	)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := b.Login(ctx, backend.Credentials{Email: "a@test.com", Password: "x"})
		require.Equal(t, autherrors.KindUnavailable, autherrors.KindOf(err))
	}
	require.True(t, b.BreakerOpen())
	require.Equal(t, "open", b.BreakerState())

	_, err = b.Login(ctx, backend.Credentials{Email: "a@test.com", Password: "x"})
	require.Equal(t, autherrors.KindUnavailable, autherrors.KindOf(err))
	require.Equal(t, int32(3), calls.Load(), "open breaker must not reach the API")

	require.NoError(t, testutil.CollectAndCompare(reg, strings.NewReader(`
# HELP circuit_breaker_state Current state of the circuit breaker (0=closed, 1=half-open, 2=open)
# TYPE circuit_breaker_state gauge
circuit_breaker_state{name="rest-api"} 2
`), "circuit_breaker_state"))
}

func TestRequestShape(t *testing.T) {
	ctx := context.Background()
	type captured struct {
		Path   string
		Auth   string
		Lang   string
		Fields map[string]any
	}
	requests := make(chan captured, 2)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := captured{
			Path: r.URL.Path,
			Auth: r.Header.Get("Authorization"),
			Lang: r.Header.Get("Accept-Language"),
		}
		_ = json.NewDecoder(r.Body).Decode(&c.Fields)
		requests <- c
		jsonHandler(http.StatusOK, `{"success":true}`)(w, r)
	}))
	defer api.Close()

	b, err := restapi.New(api.URL+"/api/", restapi.WithLanguage("id"))
	require.NoError(t, err)

	require.NoError(t, b.Logout(backend.WithAccessToken(ctx, "access-1"), "refresh-1"))
	got := <-requests
	require.Equal(t, "/api/auth/logout", got.Path)
	require.Equal(t, "Bearer access-1", got.Auth)
	require.Equal(t, "id", got.Lang)
	require.Equal(t, "refresh-1", got.Fields["refreshToken"])

	_, err = b.Register(ctx, backend.Registration{Email: "a@test.com", Password: "p", FirstName: "A", LastName: "B", Role: users.RoleClinicStaff})
	require.Error(t, err, "a response without a token is rejected")
	got = <-requests
	require.Equal(t, "/api/auth/register", got.Path)
	require.Equal(t, "CLINIC_STAFF", got.Fields["role"])
}
