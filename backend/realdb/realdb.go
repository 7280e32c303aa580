// Package realdb is the PostgreSQL auth backend.
//
// Validation contract: registrations are checked with validator tags plus
// role rules before anything is written. A dentist must supply a license
// number and the password must meet the configured minimum length.
package realdb

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jrsteele09/dentalization-auth/backend"
	autherrors "github.com/jrsteele09/dentalization-auth/internal/errors"
	"github.com/jrsteele09/dentalization-auth/token/jwt"
	"github.com/jrsteele09/dentalization-auth/token/refresh"
	"github.com/jrsteele09/dentalization-auth/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var _ backend.Backend = (*Backend)(nil)

// Settings are the token lifetimes and policy knobs the backend needs.
type Settings struct {
	TokenExpiry        time.Duration
	RememberMeExpiry   time.Duration
	RefreshTokenLength int
	RefreshTokenExpiry time.Duration
	PasswordMinLength  int
	Issuer             string
	JWTSecret          string
}

// Backend is the real-database auth strategy.
type Backend struct {
	db       DBTX
	users    users.Repo
	refresh  *refresh.Manager
	tokens   *jwt.Creator
	validate *validator.Validate
	settings Settings
	nowTime  func() time.Time
}

type Option func(*Backend)

// WithNowFunc sets the clock used for tokens and timestamps (primarily for testing)
func WithNowFunc(now func() time.Time) Option {
	return func(b *Backend) {
		b.nowTime = now
	}
}

func New(db DBTX, settings Settings, options ...Option) (*Backend, error) {
	if db == nil {
		return nil, errors.New("[realdb.New] db is required")
	}
	if settings.JWTSecret == "" {
		return nil, errors.New("[realdb.New] JWT secret is required")
	}

	b := &Backend{
		db:       db,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		settings: settings,
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(b)
	}

	b.users = NewUserRepo(db, b.nowTime)
	b.refresh = refresh.NewManager(NewRefreshTokenRepo(db), settings.RefreshTokenLength, settings.RefreshTokenExpiry, refresh.WithNowFunc(b.nowTime))
	b.tokens = jwt.NewCreator(settings.Issuer, jwt.NewHMACSigner(settings.JWTSecret), jwt.WithNowFunc(b.nowTime))
	return b, nil
}

func (b *Backend) Strategy() backend.Strategy {
	return backend.StrategyRealDatabase
}

func (b *Backend) Login(ctx context.Context, creds backend.Credentials) (*backend.AuthResult, error) {
	email := users.NormalizeEmail(creds.Email)
	user, err := b.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !users.CheckPasswordHash(creds.Password, user.PasswordHash) {
		return nil, autherrors.WithOp(autherrors.ErrInvalidCredentials, "[realdb.Login]")
	}
	if !user.Active() {
		return nil, autherrors.WithOp(autherrors.ErrAccountInactive, "[realdb.Login]")
	}

	ttl := b.settings.TokenExpiry
	if creds.RememberMe {
		ttl = b.settings.RememberMeExpiry
	}
	return b.issue(ctx, "[realdb.Login]", user, ttl)
}

func (b *Backend) Register(ctx context.Context, reg backend.Registration) (*backend.AuthResult, error) {
	reg.Email = users.NormalizeEmail(reg.Email)
	reg.FirstName = strings.TrimSpace(reg.FirstName)
	reg.LastName = strings.TrimSpace(reg.LastName)
	if err := b.validateRegistration(reg); err != nil {
		return nil, err
	}

	hash, err := users.HashPassword(reg.Password)
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindInternal, "[realdb.Register]", err)
	}

	now := b.nowTime().UTC()
	user := &users.User{
		ID:           uuid.New().String(),
		Email:        reg.Email,
		PasswordHash: hash,
		FirstName:    reg.FirstName,
		LastName:     reg.LastName,
		Phone:        strings.TrimSpace(reg.Phone),
		Role:         reg.Role,
		Status:       users.StatusActive,
		IsActive:     true,
		Language:     users.DefaultLanguage,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	switch reg.Role {
	case users.RolePatient:
		user.DateOfBirth = reg.DateOfBirth
		user.Gender = reg.Gender
		user.Address = reg.Address
		user.EmergencyContactName = reg.EmergencyContactName
		user.EmergencyContactPhone = reg.EmergencyContactPhone
		user.Allergies = reg.Allergies
		user.MedicalHistory = reg.MedicalHistory
	case users.RoleDentist:
		user.LicenseNumber = strings.TrimSpace(reg.LicenseNumber)
		user.Specialization = reg.Specialization
		user.YearsOfExperience = reg.YearsOfExperience
		user.ClinicName = reg.ClinicName
		user.ClinicAddress = reg.ClinicAddress
	}

	if err := b.users.Create(ctx, user); err != nil {
		return nil, err
	}
	log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("user registered")
	return b.issue(ctx, "[realdb.Register]", user, b.settings.TokenExpiry)
}

func (b *Backend) validateRegistration(reg backend.Registration) error {
	if err := b.validate.Struct(reg); err != nil {
		return autherrors.Wrap(autherrors.KindValidation, "[realdb.Register]", err)
	}
	if !reg.Role.Valid() {
		return autherrors.New(autherrors.KindValidation, "[realdb.Register]", "unknown role "+string(reg.Role))
	}
	if err := users.ValidatePasswordStrength(reg.Password, b.settings.PasswordMinLength); err != nil {
		return autherrors.Wrap(autherrors.KindValidation, "[realdb.Register]", err)
	}
	if reg.Role == users.RoleDentist && strings.TrimSpace(reg.LicenseNumber) == "" {
		return autherrors.New(autherrors.KindValidation, "[realdb.Register]", "license number is required for dentists")
	}
	return nil
}

// Refresh rotates refreshToken and issues a new access token for its owner.
func (b *Backend) Refresh(ctx context.Context, refreshToken string) (*backend.AuthResult, error) {
	stored, next, err := b.refresh.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	user, err := b.users.GetByID(ctx, stored.UserID)
	if err != nil {
		return nil, err
	}
	if !user.Active() {
		return nil, autherrors.WithOp(autherrors.ErrAccountInactive, "[realdb.Refresh]")
	}

	token, exp, err := b.tokens.CreateAccessToken(user, b.settings.TokenExpiry)
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindInternal, "[realdb.Refresh]", err)
	}
	return b.result(user, token, next, exp), nil
}

// Logout revokes refreshToken. An empty token is a no-op.
func (b *Backend) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return b.refresh.Revoke(ctx, refreshToken)
}

// Health pings the database.
func (b *Backend) Health(ctx context.Context) error {
	if err := b.db.Ping(ctx); err != nil {
		return autherrors.Wrap(autherrors.KindUnavailable, "[realdb.Health]", err)
	}
	return nil
}

// VerifyAccessToken checks an access token issued by this backend.
func (b *Backend) VerifyAccessToken(token string) (*jwt.Claims, error) {
	claims, err := jwt.Verify(token, b.settings.Issuer, jwt.NewHMACSigner(b.settings.JWTSecret), b.nowTime)
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindInvalidToken, "[realdb.VerifyAccessToken]", err)
	}
	return claims, nil
}

func (b *Backend) issue(ctx context.Context, op string, user *users.User, ttl time.Duration) (*backend.AuthResult, error) {
	token, exp, err := b.tokens.CreateAccessToken(user, ttl)
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindInternal, op, err)
	}
	refreshToken, err := b.refresh.Create(ctx, user.ID)
	if err != nil {
		if autherrors.KindOf(err) != autherrors.KindUnknown {
			return nil, err
		}
		return nil, classify(op, err)
	}
	return b.result(user, token, refreshToken, exp), nil
}

func (b *Backend) result(user *users.User, token, refreshToken string, exp time.Time) *backend.AuthResult {
	public := *user
	public.PasswordHash = ""
	return &backend.AuthResult{
		User:         &public,
		Token:        token,
		RefreshToken: refreshToken,
		ExpiresIn:    exp.Sub(b.nowTime()).Milliseconds(),
	}
}
