// Package mock is the in-memory auth backend used in development and as the
// last resort for login and register.
//
// Validation contract: registration only rejects a duplicate email. Role
// specific professional fields such as a dentist's license number are
// optional here even though the real database requires them.
package mock

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/dentalization-auth/backend"
	autherrors "github.com/jrsteele09/dentalization-auth/internal/errors"
	"github.com/jrsteele09/dentalization-auth/users"
	fakeuserrepo "github.com/jrsteele09/dentalization-auth/users/repofake"
	"github.com/rs/zerolog/log"
)

const (
	TokenPrefix        = "mock_token_"
	RefreshTokenPrefix = "mock_refresh_"

	dayMillis = int64(24 * time.Hour / time.Millisecond)
)

// Seeded test accounts. They accept any non-empty password.
var seededAccounts = []users.User{
	{ID: "mock-test-user", Email: "test@example.com", FirstName: "Test", LastName: "User", Role: users.RolePatient},
	{ID: "mock-patient-user", Email: "patient@test.com", FirstName: "Test", LastName: "User", Role: users.RolePatient},
	{ID: "mock-dentist-user", Email: "dentist@test.com", FirstName: "Dr. Test", LastName: "User", Role: users.RoleDentist},
}

var (
	_ backend.Backend         = (*Backend)(nil)
	_ backend.AccountRecovery = (*Backend)(nil)
)

// Delays simulates network latency per call type.
type Delays struct {
	Login    time.Duration
	Register time.Duration
	API      time.Duration
}

// Backend is the mock auth strategy.
type Backend struct {
	repo    *fakeuserrepo.FakeUserRepo
	delays  Delays
	nowTime func() time.Time

	lock          sync.Mutex
	seeded        map[string]bool
	refreshTokens map[string]string // refresh token to user id
}

type Option func(*Backend)

func WithDelays(d Delays) Option {
	return func(b *Backend) {
		b.delays = d
	}
}

// WithNowFunc sets the clock used for token stamps (primarily for testing)
func WithNowFunc(now func() time.Time) Option {
	return func(b *Backend) {
		b.nowTime = now
	}
}

func New(options ...Option) *Backend {
	b := &Backend{
		repo:          fakeuserrepo.NewFakeUserRepo(),
		nowTime:       time.Now,
		seeded:        make(map[string]bool),
		refreshTokens: make(map[string]string),
	}
	for _, opt := range options {
		opt(b)
	}

	for _, account := range seededAccounts {
		u := account
		u.Status = users.StatusActive
		u.IsActive = true
		u.Language = users.DefaultLanguage
		u.CreatedAt = b.nowTime()
		u.UpdatedAt = u.CreatedAt
		_ = b.repo.Create(context.Background(), &u)
		b.seeded[u.Email] = true
	}
	return b
}

func (b *Backend) Strategy() backend.Strategy {
	return backend.StrategyMock
}

// UserCount returns the number of known accounts, seeded ones included.
func (b *Backend) UserCount() int {
	return b.repo.Len()
}

func (b *Backend) Login(ctx context.Context, creds backend.Credentials) (*backend.AuthResult, error) {
	if err := sleep(ctx, b.delays.Login); err != nil {
		return nil, err
	}
	email := users.NormalizeEmail(creds.Email)
	log.Debug().Str("email", email).Msg("mock login")

	user, err := b.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, autherrors.WithOp(autherrors.ErrUserNotFound, "[mock.Login]")
	}
	if creds.Password == "" {
		return nil, autherrors.WithOp(autherrors.ErrInvalidCredentials, "[mock.Login]")
	}
	if !b.isSeeded(email) && !users.CheckPasswordHash(creds.Password, user.PasswordHash) {
		return nil, autherrors.WithOp(autherrors.ErrInvalidCredentials, "[mock.Login]")
	}

	expiresIn := dayMillis
	if creds.RememberMe {
		expiresIn = 30 * dayMillis
	}
	return b.issue(user, expiresIn), nil
}

func (b *Backend) Register(ctx context.Context, reg backend.Registration) (*backend.AuthResult, error) {
	if err := sleep(ctx, b.delays.Register); err != nil {
		return nil, err
	}
	email := users.NormalizeEmail(reg.Email)
	log.Debug().Str("email", email).Str("role", string(reg.Role)).Msg("mock register")

	hash, err := users.HashPassword(reg.Password)
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindInternal, "[mock.Register]", err)
	}

	now := b.nowTime()
	user := &users.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(reg.FirstName),
		LastName:     strings.TrimSpace(reg.LastName),
		Phone:        reg.Phone,
		Role:         users.ParseRole(string(reg.Role)),
		Status:       users.StatusActive,
		IsActive:     true,
		Language:     users.DefaultLanguage,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	switch user.Role {
	case users.RolePatient:
		user.DateOfBirth = reg.DateOfBirth
		user.Gender = reg.Gender
		user.Address = reg.Address
		user.EmergencyContactName = reg.EmergencyContactName
		user.EmergencyContactPhone = reg.EmergencyContactPhone
		user.Allergies = reg.Allergies
		user.MedicalHistory = reg.MedicalHistory
	case users.RoleDentist:
		user.LicenseNumber = reg.LicenseNumber
		user.Specialization = reg.Specialization
		user.YearsOfExperience = reg.YearsOfExperience
		user.ClinicName = reg.ClinicName
		user.ClinicAddress = reg.ClinicAddress
	}

	if err := b.repo.Create(ctx, user); err != nil {
		return nil, autherrors.WithOp(autherrors.ErrUserExists, "[mock.Register]")
	}
	return b.issue(user, dayMillis), nil
}

// Refresh accepts any token carrying the mock refresh prefix. Tokens this
// backend issued resolve to their owner, others to the default test account.
func (b *Backend) Refresh(ctx context.Context, refreshToken string) (*backend.AuthResult, error) {
	if err := sleep(ctx, b.delays.API); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(refreshToken, RefreshTokenPrefix) {
		return nil, autherrors.WithOp(autherrors.ErrInvalidRefreshToken, "[mock.Refresh]")
	}

	b.lock.Lock()
	userID, ok := b.refreshTokens[refreshToken]
	delete(b.refreshTokens, refreshToken)
	b.lock.Unlock()
	if !ok {
		userID = seededAccounts[0].ID
	}

	user, err := b.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, autherrors.WithOp(autherrors.ErrInvalidRefreshToken, "[mock.Refresh]")
	}
	return b.issue(user, dayMillis), nil
}

func (b *Backend) Logout(_ context.Context, refreshToken string) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	delete(b.refreshTokens, refreshToken)
	return nil
}

// Health always succeeds.
func (b *Backend) Health(context.Context) error {
	return nil
}

// VerifyEmail marks the account owning token as verified. Mock verification
// tokens have the form "verify_<email>"; any other non-empty token succeeds
// without side effects.
func (b *Backend) VerifyEmail(ctx context.Context, token string) error {
	if err := sleep(ctx, b.delays.API); err != nil {
		return err
	}
	if token == "" {
		return autherrors.New(autherrors.KindInvalidToken, "[mock.VerifyEmail]", "verification token is required")
	}
	if email, ok := strings.CutPrefix(token, "verify_"); ok {
		if user, err := b.repo.GetByEmail(ctx, users.NormalizeEmail(email)); err == nil {
			user.IsVerified = true
			return b.repo.Update(ctx, user)
		}
	}
	return nil
}

// ForgotPassword always succeeds so callers cannot probe for accounts.
func (b *Backend) ForgotPassword(ctx context.Context, email string) error {
	if err := sleep(ctx, b.delays.API); err != nil {
		return err
	}
	log.Debug().Str("email", users.NormalizeEmail(email)).Msg("mock password reset requested")
	return nil
}

func (b *Backend) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := sleep(ctx, b.delays.API); err != nil {
		return err
	}
	if token == "" {
		return autherrors.New(autherrors.KindInvalidToken, "[mock.ResetPassword]", "reset token is required")
	}
	if len(newPassword) < 8 {
		return autherrors.New(autherrors.KindValidation, "[mock.ResetPassword]", "password must be at least 8 characters long")
	}
	return nil
}

func (b *Backend) UploadVerificationDocument(ctx context.Context, accessToken, filename string, r io.Reader) error {
	if err := sleep(ctx, b.delays.API); err != nil {
		return err
	}
	if !strings.HasPrefix(accessToken, TokenPrefix) {
		return autherrors.WithOp(autherrors.ErrAccessDenied, "[mock.UploadVerificationDocument]")
	}
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return autherrors.Wrap(autherrors.KindInternal, "[mock.UploadVerificationDocument]", err)
	}
	log.Debug().Str("filename", filename).Int64("bytes", n).Msg("mock document uploaded")
	return nil
}

// issue mints a token pair for user. Tokens keep the mock prefixes and carry a
// random suffix so logins within the same millisecond never share a key.
func (b *Backend) issue(user *users.User, expiresIn int64) *backend.AuthResult {
	stamp := b.nowTime().UnixMilli()
	public := *user
	public.PasswordHash = ""
	result := &backend.AuthResult{
		User:         &public,
		Token:        fmt.Sprintf("%s%d_%s", TokenPrefix, stamp, uuid.NewString()),
		RefreshToken: fmt.Sprintf("%s%d_%s", RefreshTokenPrefix, stamp, uuid.NewString()),
		ExpiresIn:    expiresIn,
	}
	b.lock.Lock()
	b.refreshTokens[result.RefreshToken] = user.ID
	b.lock.Unlock()
	return result
}

func (b *Backend) isSeeded(email string) bool {
	return b.seeded[email]
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
