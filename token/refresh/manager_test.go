package refresh_test

import (
	"context"
	"testing"
	"time"

	autherrors "github.com/jrsteele09/dentalization-auth/internal/errors"
	"github.com/jrsteele09/dentalization-auth/token/refresh"
	refreshrepofake "github.com/jrsteele09/dentalization-auth/token/refresh/repofake"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	repo    *refreshrepofake.FakeRefreshTokenRepo
	manager *refresh.Manager
	now     time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		repo: refreshrepofake.NewFakeRefreshTokenRepo(),
		now:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f.manager = refresh.NewManager(f.repo, 32, 30*24*time.Hour, refresh.WithNowFunc(func() time.Time { return f.now }))
	return f
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	first, err := f.manager.Create(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, first, 64)

	second, err := f.manager.Create(ctx, "user-1")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.Equal(t, 1, f.repo.Len(), "a user holds a single refresh token")

	_, err = f.repo.Get(ctx, first)
	require.Error(t, err)
}

func TestRotate(t *testing.T) {
	ctx := context.Background()

	t.Run("Valid token", func(t *testing.T) {
		f := setupTestFixture(t)
		token, err := f.manager.Create(ctx, "user-1")
		require.NoError(t, err)

		stored, next, err := f.manager.Rotate(ctx, token)
		require.NoError(t, err)
		require.Equal(t, "user-1", stored.UserID)
		require.NotEqual(t, token, next)

		_, _, err = f.manager.Rotate(ctx, token)
		require.ErrorIs(t, err, autherrors.ErrInvalidRefreshToken, "old token is single use")
	})

	t.Run("Unknown token", func(t *testing.T) {
		f := setupTestFixture(t)
		_, _, err := f.manager.Rotate(ctx, "nope")
		require.Equal(t, autherrors.KindInvalidToken, autherrors.KindOf(err))
	})

	t.Run("Expired token", func(t *testing.T) {
		f := setupTestFixture(t)
		token, err := f.manager.Create(ctx, "user-1")
		require.NoError(t, err)

		f.now = f.now.Add(31 * 24 * time.Hour)
		_, _, err = f.manager.Rotate(ctx, token)
		require.ErrorIs(t, err, autherrors.ErrRefreshTokenExpired)
		require.Equal(t, 0, f.repo.Len())
	})
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	token, err := f.manager.Create(ctx, "user-1")
	require.NoError(t, err)
	require.NoError(t, f.manager.Revoke(ctx, token))
	require.NoError(t, f.manager.Revoke(ctx, token))
	require.Equal(t, 0, f.repo.Len())
}
