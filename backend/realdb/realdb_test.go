package realdb_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jrsteele09/dentalization-auth/backend"
	"github.com/jrsteele09/dentalization-auth/backend/realdb"
	autherrors "github.com/jrsteele09/dentalization-auth/internal/errors"
	"github.com/jrsteele09/dentalization-auth/users"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	mock    pgxmock.PgxPoolIface
	backend *realdb.Backend
	now     time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	f := &testFixture{
		mock: mock,
		now:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.backend, err = realdb.New(mock, realdb.Settings{
		TokenExpiry:        24 * time.Hour,
		RememberMeExpiry:   30 * 24 * time.Hour,
		RefreshTokenLength: 32,
		RefreshTokenExpiry: 30 * 24 * time.Hour,
		PasswordMinLength:  8,
		Issuer:             "dentalization",
		JWTSecret:          "test-secret",
	}, realdb.WithNowFunc(func() time.Time { return f.now }))
	require.NoError(t, err)
	return f
}

func userColumns() []string {
	return []string{
		"id", "email", "password_hash", "first_name", "last_name", "phone", "role", "status",
		"is_verified", "preferred_language", "created_at", "updated_at",
		"date_of_birth", "gender", "address", "emergency_contact_name", "emergency_contact_phone",
		"allergies", "medical_history",
		"license_number", "specialization", "years_of_experience", "clinic_name", "clinic_address",
	}
}

func userRow(t *testing.T, id, email, password, role, status string) *pgxmock.Rows {
	t.Helper()
	hash, err := users.HashPassword(password)
	require.NoError(t, err)
	created := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	years := 0
	return pgxmock.NewRows(userColumns()).AddRow(
		id, email, hash, "Sari", "Wijaya", "+62811000", role, status,
		true, "id", created, created,
		"1990-04-01", "female", "Jl. Merdeka 1", "", "", "", "",
		"", "", &years, "", "",
	)
}

func refreshColumns() []string {
	return []string{"token", "user_id", "issued_at"}
}

func TestNew(t *testing.T) {
	_, err := realdb.New(nil, realdb.Settings{JWTSecret: "x"})
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = realdb.New(mock, realdb.Settings{})
	require.Error(t, err)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("Valid credentials", func(t *testing.T) {
		f := setupTestFixture(t)
		f.mock.ExpectQuery("FROM users u .+ WHERE u.email =").
			WithArgs("sari@test.com").
			WillReturnRows(userRow(t, "u-1", "sari@test.com", "secret123", "PATIENT", "ACTIVE"))
		f.mock.ExpectQuery("FROM refresh_tokens WHERE user_id =").
			WithArgs("u-1").
			WillReturnError(pgx.ErrNoRows)
		f.mock.ExpectExec("INSERT INTO refresh_tokens").
			WithArgs(pgxmock.AnyArg(), "u-1", f.now).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		res, err := f.backend.Login(ctx, backend.Credentials{Email: " Sari@Test.com", Password: "secret123"})
		require.NoError(t, err)
		require.Equal(t, users.RolePatient, res.User.Role)
		require.True(t, res.User.IsActive)
		require.Empty(t, res.User.PasswordHash)
		require.Len(t, res.RefreshToken, 64)
		require.Equal(t, (24 * time.Hour).Milliseconds(), res.ExpiresIn)

		claims, err := f.backend.VerifyAccessToken(res.Token)
		require.NoError(t, err)
		require.Equal(t, "u-1", claims.Subject)
		require.Equal(t, users.RolePatient, claims.Role)
		require.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("Remember me extends the access token", func(t *testing.T) {
		f := setupTestFixture(t)
		f.mock.ExpectQuery("FROM users u .+ WHERE u.email =").
			WillReturnRows(userRow(t, "u-1", "sari@test.com", "secret123", "DENTIST", "ACTIVE"))
		f.mock.ExpectQuery("FROM refresh_tokens WHERE user_id =").WillReturnError(pgx.ErrNoRows)
		f.mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(pgxmock.NewResult("INSERT", 1))

		res, err := f.backend.Login(ctx, backend.Credentials{Email: "sari@test.com", Password: "secret123", RememberMe: true})
		require.NoError(t, err)
		require.Equal(t, users.RoleDentist, res.User.Role)
		require.Equal(t, (30 * 24 * time.Hour).Milliseconds(), res.ExpiresIn)
	})

	t.Run("Wrong password", func(t *testing.T) {
		f := setupTestFixture(t)
		f.mock.ExpectQuery("FROM users u .+ WHERE u.email =").
			WillReturnRows(userRow(t, "u-1", "sari@test.com", "secret123", "PATIENT", "ACTIVE"))

		_, err := f.backend.Login(ctx, backend.Credentials{Email: "sari@test.com", Password: "wrong"})
		require.ErrorIs(t, err, autherrors.ErrInvalidCredentials)
		require.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("Unknown email", func(t *testing.T) {
		f := setupTestFixture(t)
		f.mock.ExpectQuery("FROM users u .+ WHERE u.email =").WillReturnError(pgx.ErrNoRows)

		_, err := f.backend.Login(ctx, backend.Credentials{Email: "nobody@test.com", Password: "secret123"})
		require.ErrorIs(t, err, autherrors.ErrUserNotFound)
	})

	t.Run("Suspended account", func(t *testing.T) {
		f := setupTestFixture(t)
		f.mock.ExpectQuery("FROM users u .+ WHERE u.email =").
			WillReturnRows(userRow(t, "u-1", "sari@test.com", "secret123", "PATIENT", "SUSPENDED"))

		_, err := f.backend.Login(ctx, backend.Credentials{Email: "sari@test.com", Password: "secret123"})
		require.ErrorIs(t, err, autherrors.ErrAccountInactive)
	})

	t.Run("Unreachable database", func(t *testing.T) {
		f := setupTestFixture(t)
		f.mock.ExpectQuery("FROM users u .+ WHERE u.email =").WillReturnError(errors.New("dial tcp: connection refused"))

		_, err := f.backend.Login(ctx, backend.Credentials{Email: "sari@test.com", Password: "secret123"})
		require.Equal(t, autherrors.KindUnavailable, autherrors.KindOf(err))
	})
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	patient := backend.Registration{
		Email:     "New.Patient@Test.com",
		Password:  "password123",
		FirstName: " Budi ",
		LastName:  "Santoso",
		Role:      users.RolePatient,
	}

	t.Run("Patient", func(t *testing.T) {
		f := setupTestFixture(t)
		f.mock.ExpectBegin()
		f.mock.ExpectExec("INSERT INTO users").
			WithArgs(pgxmock.AnyArg(), "new.patient@test.com", pgxmock.AnyArg(), "Budi", "Santoso", "",
				"PATIENT", "ACTIVE", false, users.DefaultLanguage, f.now, f.now).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		f.mock.ExpectExec("INSERT INTO patients").WillReturnResult(pgxmock.NewResult("INSERT", 1))
		f.mock.ExpectCommit()
		f.mock.ExpectQuery("FROM refresh_tokens WHERE user_id =").WillReturnError(pgx.ErrNoRows)
		f.mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(pgxmock.NewResult("INSERT", 1))

		res, err := f.backend.Register(ctx, patient)
		require.NoError(t, err)
		require.Equal(t, "new.patient@test.com", res.User.Email)
		require.Equal(t, users.StatusActive, res.User.Status)
		require.NotEmpty(t, res.User.ID)
		require.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("Duplicate email", func(t *testing.T) {
		f := setupTestFixture(t)
		f.mock.ExpectBegin()
		f.mock.ExpectExec("INSERT INTO users").
			WillReturnError(errors.New("ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)"))
		f.mock.ExpectRollback()

		_, err := f.backend.Register(ctx, patient)
		require.ErrorIs(t, err, autherrors.ErrUserExists)
		require.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("Dentist without license is rejected before any write", func(t *testing.T) {
		f := setupTestFixture(t)
		reg := patient
		reg.Role = users.RoleDentist

		_, err := f.backend.Register(ctx, reg)
		require.Equal(t, autherrors.KindValidation, autherrors.KindOf(err))
		require.Contains(t, err.Error(), "license number")
		require.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("Weak password", func(t *testing.T) {
		f := setupTestFixture(t)
		reg := patient
		reg.Password = "short1"

		_, err := f.backend.Register(ctx, reg)
		require.Equal(t, autherrors.KindValidation, autherrors.KindOf(err))
	})

	t.Run("Missing names", func(t *testing.T) {
		f := setupTestFixture(t)
		reg := patient
		reg.FirstName = "   "

		_, err := f.backend.Register(ctx, reg)
		require.Equal(t, autherrors.KindValidation, autherrors.KindOf(err))
	})

	t.Run("Malformed email", func(t *testing.T) {
		f := setupTestFixture(t)
		reg := patient
		reg.Email = "not-an-email"

		_, err := f.backend.Register(ctx, reg)
		require.Equal(t, autherrors.KindValidation, autherrors.KindOf(err))
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	oldToken := strings.Repeat("ab", 32)

	t.Run("Rotates the refresh token", func(t *testing.T) {
		f := setupTestFixture(t)
		issued := f.now.Add(-time.Hour)
		f.mock.ExpectQuery("FROM refresh_tokens WHERE token =").
			WithArgs(oldToken).
			WillReturnRows(pgxmock.NewRows(refreshColumns()).AddRow(oldToken, "u-1", issued))
		f.mock.ExpectQuery("FROM refresh_tokens WHERE user_id =").
			WithArgs("u-1").
			WillReturnRows(pgxmock.NewRows(refreshColumns()).AddRow(oldToken, "u-1", issued))
		f.mock.ExpectExec("DELETE FROM refresh_tokens").
			WithArgs(oldToken).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		f.mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(pgxmock.NewResult("INSERT", 1))
		f.mock.ExpectQuery("FROM users u .+ WHERE u.id =").
			WithArgs("u-1").
			WillReturnRows(userRow(t, "u-1", "sari@test.com", "secret123", "PATIENT", "ACTIVE"))

		res, err := f.backend.Refresh(ctx, oldToken)
		require.NoError(t, err)
		require.NotEqual(t, oldToken, res.RefreshToken)
		require.Equal(t, "u-1", res.User.ID)
		require.Equal(t, (24 * time.Hour).Milliseconds(), res.ExpiresIn)
		require.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("Unknown token", func(t *testing.T) {
		f := setupTestFixture(t)
		f.mock.ExpectQuery("FROM refresh_tokens WHERE token =").WillReturnError(pgx.ErrNoRows)

		_, err := f.backend.Refresh(ctx, "missing")
		require.ErrorIs(t, err, autherrors.ErrInvalidRefreshToken)
	})

	t.Run("Expired token is deleted", func(t *testing.T) {
		f := setupTestFixture(t)
		f.mock.ExpectQuery("FROM refresh_tokens WHERE token =").
			WillReturnRows(pgxmock.NewRows(refreshColumns()).AddRow(oldToken, "u-1", f.now.Add(-31*24*time.Hour)))
		f.mock.ExpectExec("DELETE FROM refresh_tokens").
			WithArgs(oldToken).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		_, err := f.backend.Refresh(ctx, oldToken)
		require.ErrorIs(t, err, autherrors.ErrRefreshTokenExpired)
		require.NoError(t, f.mock.ExpectationsWereMet())
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()

	t.Run("Revokes a known token", func(t *testing.T) {
		f := setupTestFixture(t)
		f.mock.ExpectQuery("FROM refresh_tokens WHERE token =").
			WillReturnRows(pgxmock.NewRows(refreshColumns()).AddRow("tok", "u-1", f.now))
		f.mock.ExpectExec("DELETE FROM refresh_tokens").
			WithArgs("tok").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		require.NoError(t, f.backend.Logout(ctx, "tok"))
		require.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("Empty token is a no-op", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.backend.Logout(ctx, ""))
		require.NoError(t, f.mock.ExpectationsWereMet())
	})
}

func TestHealth(t *testing.T) {
	ctx := context.Background()

	t.Run("Healthy", func(t *testing.T) {
		f := setupTestFixture(t)
		f.mock.ExpectPing()
		require.NoError(t, f.backend.Health(ctx))
	})

	t.Run("Ping fails", func(t *testing.T) {
		f := setupTestFixture(t)
		f.mock.ExpectPing().WillReturnError(errors.New("connection refused"))
		err := f.backend.Health(ctx)
		require.Equal(t, autherrors.KindUnavailable, autherrors.KindOf(err))
	})
}
