package sqlitestore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/dentalization-auth/store"
	"github.com/jrsteele09/dentalization-auth/store/sqlitestore"
	"github.com/jrsteele09/dentalization-auth/store/storetest"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	s, err := sqlitestore.Open(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	storetest.Run(t, s)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.db")

	s, err := sqlitestore.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, map[store.Key]string{
		store.KeyToken:       "api_token_1",
		store.KeyTokenExpiry: "2026-01-31T00:00:00.000Z",
	}))
	require.NoError(t, s.Close())

	reopened, err := sqlitestore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	values, err := reopened.ReadAll(ctx, []store.Key{store.KeyToken, store.KeyTokenExpiry, store.KeyUser})
	require.NoError(t, err)
	require.Equal(t, "api_token_1", *values[store.KeyToken])
	require.Equal(t, "2026-01-31T00:00:00.000Z", *values[store.KeyTokenExpiry])
	require.Nil(t, values[store.KeyUser])
}

func TestSQLiteStoreClosed(t *testing.T) {
	s, err := sqlitestore.Open(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Write(context.Background(), map[store.Key]string{store.KeyToken: "x"})
	require.Error(t, err)
}
