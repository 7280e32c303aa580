package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/dentalization-auth/backend"
	autherrors "github.com/jrsteele09/dentalization-auth/internal/errors"
	"github.com/jrsteele09/dentalization-auth/internal/metrics"
	"github.com/jrsteele09/dentalization-auth/users"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker/v2"
)

var (
	_ backend.Backend         = (*Backend)(nil)
	_ backend.AccountRecovery = (*Backend)(nil)
)

// Backend is the REST API auth strategy.
type Backend struct {
	client  *client
	breaker BreakerSettings
}

type Option func(*Backend)

func WithHTTPClient(hc *http.Client) Option {
	return func(b *Backend) {
		b.client.http = hc
	}
}

func WithTimeouts(t Timeouts) Option {
	return func(b *Backend) {
		b.client.timeouts = t
	}
}

func WithBreaker(settings BreakerSettings) Option {
	return func(b *Backend) {
		b.breaker = settings
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Backend) {
		b.client.metrics = m
	}
}

// WithLanguage sets the Accept-Language header sent with every request.
func WithLanguage(lang string) Option {
	return func(b *Backend) {
		b.client.language = lang
	}
}

// New creates a REST API backend rooted at baseURL, e.g.
// "http://localhost:3001/api".
func New(baseURL string, options ...Option) (*Backend, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("[restapi.New] base URL is required")
	}
	b := &Backend{
		client: &client{
			baseURL:  baseURL,
			http:     &http.Client{},
			timeouts: DefaultTimeouts,
		},
		breaker: BreakerSettings{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second},
	}
	for _, opt := range options {
		opt(b)
	}
	b.client.breaker = newBreaker(b.breaker, b.client.metrics)
	return b, nil
}

func (b *Backend) Strategy() backend.Strategy {
	return backend.StrategyRESTAPI
}

// BreakerState reports the circuit breaker state, e.g. "closed" or "open".
func (b *Backend) BreakerState() string {
	return b.client.breaker.State().String()
}

// BreakerOpen reports whether requests are currently being rejected.
func (b *Backend) BreakerOpen() bool {
	return b.client.breaker.State() == gobreaker.StateOpen
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type registerRequest struct {
	backend.Registration
	Role string `json:"role"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

// wireUser is the user as the API sends it: upper-case role and status.
type wireUser struct {
	users.User
	Role     string `json:"role"`
	Status   string `json:"status"`
	IsActive *bool  `json:"isActive"`
}

type wireAuthResult struct {
	User         wireUser `json:"user"`
	Token        string   `json:"token"`
	RefreshToken string   `json:"refreshToken"`
	ExpiresIn    int64    `json:"expiresIn"`
}

func (w *wireAuthResult) toResult() *backend.AuthResult {
	u := w.User.User
	u.Role = users.ParseRole(w.User.Role)
	switch {
	case w.User.Status != "":
		u.Status = users.ParseStatus(w.User.Status)
	case w.User.IsActive != nil && !*w.User.IsActive:
		u.Status = users.StatusInactive
	default:
		u.Status = users.StatusActive
	}
	u.IsActive = u.Status == users.StatusActive
	if u.Language == "" {
		u.Language = users.DefaultLanguage
	}
	u.PasswordHash = ""
	return &backend.AuthResult{
		User:         &u,
		Token:        w.Token,
		RefreshToken: w.RefreshToken,
		ExpiresIn:    w.ExpiresIn,
	}
}

func (b *Backend) authCall(ctx context.Context, op, path string, timeout time.Duration, body any) (*backend.AuthResult, error) {
	var out wireAuthResult
	if err := b.client.postJSON(ctx, op, path, timeout, "", body, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, autherrors.New(autherrors.KindInternal, op, "response carried no token")
	}
	return out.toResult(), nil
}

func (b *Backend) Login(ctx context.Context, creds backend.Credentials) (*backend.AuthResult, error) {
	return b.authCall(ctx, "[restapi.Login]", "/auth/login", b.client.timeouts.Login, loginRequest{
		Email:      creds.Email,
		Password:   creds.Password,
		RememberMe: creds.RememberMe,
	})
}

func (b *Backend) Register(ctx context.Context, reg backend.Registration) (*backend.AuthResult, error) {
	return b.authCall(ctx, "[restapi.Register]", "/auth/register", b.client.timeouts.Default, registerRequest{
		Registration: reg,
		Role:         reg.Role.BackendName(),
	})
}

func (b *Backend) Refresh(ctx context.Context, refreshToken string) (*backend.AuthResult, error) {
	res, err := b.authCall(ctx, "[restapi.Refresh]", "/auth/refresh", b.client.timeouts.Default, refreshRequest{RefreshToken: refreshToken})
	if err != nil && autherrors.KindOf(err) == autherrors.KindInvalidCredentials {
		// The API answers 401 for a refresh token it no longer accepts.
		return nil, autherrors.WithOp(autherrors.ErrInvalidRefreshToken, "[restapi.Refresh]")
	}
	return res, err
}

// Logout revokes refreshToken server side, authenticating with the access
// token attached to ctx when there is one.
func (b *Backend) Logout(ctx context.Context, refreshToken string) error {
	bearer, _ := backend.AccessToken(ctx)
	return b.client.postJSON(ctx, "[restapi.Logout]", "/auth/logout", b.client.timeouts.Default, bearer, logoutRequest{RefreshToken: refreshToken}, nil)
}

type healthResponse struct {
	Status string `json:"status"`
}

// Health calls GET /health. It bypasses the circuit breaker so a probe can
// observe recovery.
func (b *Backend) Health(ctx context.Context) error {
	const op = "[restapi.Health]"
	reqCtx, cancel := context.WithTimeout(ctx, b.client.timeouts.Default)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, b.client.baseURL+"/health", http.NoBody)
	if err != nil {
		return autherrors.Wrap(autherrors.KindInternal, op, err)
	}
	resp, err := b.client.http.Do(req)
	if err != nil {
		return classify(ctx, op, err)
	}
	defer resp.Body.Close()

	var hr healthResponse
	if resp.StatusCode != http.StatusOK {
		return statusError(op, resp.StatusCode, "")
	}
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil || hr.Status != "ok" {
		return autherrors.New(autherrors.KindUnavailable, op, "unexpected health response")
	}
	return nil
}

func (b *Backend) VerifyEmail(ctx context.Context, token string) error {
	return b.client.postJSON(ctx, "[restapi.VerifyEmail]", "/auth/verify-email", b.client.timeouts.Default, "",
		map[string]string{"token": token}, nil)
}

func (b *Backend) ForgotPassword(ctx context.Context, email string) error {
	return b.client.postJSON(ctx, "[restapi.ForgotPassword]", "/auth/forgot-password", b.client.timeouts.Default, "",
		map[string]string{"email": email}, nil)
}

func (b *Backend) ResetPassword(ctx context.Context, token, newPassword string) error {
	return b.client.postJSON(ctx, "[restapi.ResetPassword]", "/auth/reset-password", b.client.timeouts.Default, "",
		map[string]string{"token": token, "password": newPassword}, nil)
}

// UploadVerificationDocument sends r as the "document" part of a multipart
// POST under the upload timeout.
func (b *Backend) UploadVerificationDocument(ctx context.Context, accessToken, filename string, r io.Reader) error {
	const op = "[restapi.UploadVerificationDocument]"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("document", filename)
	if err != nil {
		return autherrors.Wrap(autherrors.KindInternal, op, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return autherrors.Wrap(autherrors.KindInternal, op, err)
	}
	if err := mw.Close(); err != nil {
		return autherrors.Wrap(autherrors.KindInternal, op, err)
	}

	return b.client.do(ctx, op, http.MethodPost, "/auth/upload-document", b.client.timeouts.Upload, func(req *http.Request) {
		req.Header.Set("Content-Type", mw.FormDataContentType())
		if accessToken != "" {
			req.Header.Set("Authorization", "Bearer "+accessToken)
		}
	}, buf.Bytes(), nil)
}
