// Package storetest holds the behaviour every store.Store implementation
// must share.
package storetest

import (
	"context"
	"testing"

	"github.com/jrsteele09/dentalization-auth/store"
	"github.com/stretchr/testify/require"
)

// Run exercises s against the store.Store contract. s must start empty.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("Missing keys read as nil", func(t *testing.T) {
		values, err := s.ReadAll(ctx, store.SessionKeys)
		require.NoError(t, err)
		require.Len(t, values, len(store.SessionKeys))
		for _, k := range store.SessionKeys {
			require.Nil(t, values[k], k)
		}
	})

	t.Run("Write then read", func(t *testing.T) {
		require.NoError(t, s.Write(ctx, map[store.Key]string{
			store.KeyUser:       `{"id":"u-1","email":"test@example.com"}`,
			store.KeyToken:      "mock_token_1",
			store.KeyRememberMe: "true",
		}))

		values, err := s.ReadAll(ctx, []store.Key{store.KeyUser, store.KeyToken, store.KeyRememberMe, store.KeyTokenExpiry})
		require.NoError(t, err)
		require.Equal(t, `{"id":"u-1","email":"test@example.com"}`, *values[store.KeyUser])
		require.Equal(t, "mock_token_1", *values[store.KeyToken])
		require.Equal(t, "true", *values[store.KeyRememberMe])
		require.Nil(t, values[store.KeyTokenExpiry])
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, s.Write(ctx, map[store.Key]string{store.KeyToken: "mock_token_2"}))
		values, err := s.ReadAll(ctx, []store.Key{store.KeyToken})
		require.NoError(t, err)
		require.Equal(t, "mock_token_2", *values[store.KeyToken])
	})

	t.Run("Empty batches", func(t *testing.T) {
		require.NoError(t, s.Write(ctx, map[store.Key]string{}))
		values, err := s.ReadAll(ctx, nil)
		require.NoError(t, err)
		require.Empty(t, values)
		require.NoError(t, s.Clear(ctx, nil))
	})

	t.Run("Clear is idempotent", func(t *testing.T) {
		require.NoError(t, s.Clear(ctx, store.SessionKeys))
		require.NoError(t, s.Clear(ctx, store.SessionKeys))

		values, err := s.ReadAll(ctx, store.SessionKeys)
		require.NoError(t, err)
		for _, k := range store.SessionKeys {
			require.Nil(t, values[k], k)
		}
	})

	t.Run("Clear leaves other keys", func(t *testing.T) {
		require.NoError(t, s.Write(ctx, map[store.Key]string{
			store.KeyToken:     "t",
			store.KeyLastLogin: "2026-01-01T00:00:00.000Z",
		}))
		require.NoError(t, s.Clear(ctx, []store.Key{store.KeyToken}))

		values, err := s.ReadAll(ctx, []store.Key{store.KeyToken, store.KeyLastLogin})
		require.NoError(t, err)
		require.Nil(t, values[store.KeyToken])
		require.Equal(t, "2026-01-01T00:00:00.000Z", *values[store.KeyLastLogin])
		require.NoError(t, s.Clear(ctx, store.SessionKeys))
	})
}
