package storage

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/decentstore/internal/kvstore"
	"github.com/florianilch/decentstore/internal/provider"
	"github.com/florianilch/decentstore/internal/providers"
)

func newStorage(t *testing.T, store kvstore.Store) (*Storage, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	s, err := New(Options{
		Store:  store,
		Logger: slog.New(slog.NewTextHandler(&logs, nil)),
	})
	require.NoError(t, err)
	return s, &logs
}

func TestNew(t *testing.T) {
	t.Run("requires a store", func(t *testing.T) {
		_, err := New(Options{})
		assert.Error(t, err)
	})

	t.Run("default providers are registered", func(t *testing.T) {
		s, _ := newStorage(t, kvstore.NewMemoryStore())
		for _, name := range []string{providers.DropboxName, providers.GoogleDriveName, providers.FileSystemName} {
			_, ok := s.Registry().Lookup(name)
			assert.True(t, ok, name)
		}
		assert.Empty(t, s.Registry().Active())
	})

	t.Run("namespaces", func(t *testing.T) {
		s, _ := newStorage(t, kvstore.NewMemoryStore())
		assert.Equal(t, "dS.", s.AuthStore().RootPrefix())
		assert.Equal(t, "dS.auth.", s.AuthStore().Prefix())
		assert.Equal(t, "dS.", s.SessionStore().Prefix())
		assert.IsType(t, &kvstore.MemoryStore{}, s.SessionStore().Store())
	})
}

func TestStorage_DataOperations(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	require.NoError(t, store.SetItem(ctx, "unrelated", "x"))
	s, _ := newStorage(t, store)

	require.NoError(t, s.Set(ctx, "note", "hello"))

	raw, ok, err := store.GetItem(ctx, "dS.note")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", raw)

	got, ok, err := s.Get(ctx, "note")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", got)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "len counts the whole store")

	key, ok, err := s.Key(ctx, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dS.note", key)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"note"}, keys)

	require.NoError(t, s.Remove(ctx, "note"))
	_, ok, err = s.Get(ctx, "note")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStorage_Clear(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	s, _ := newStorage(t, store)

	require.NoError(t, s.Set(ctx, "a", "1"))
	require.NoError(t, s.AuthStore().Set(ctx, "dropbox.access_token", "tok"))
	require.NoError(t, store.SetItem(ctx, "other", "keep"))

	require.NoError(t, s.Clear(ctx))

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	v, ok, err := store.GetItem(ctx, "other")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "keep", v)
}

func TestStorage_KeysSkipsTokens(t *testing.T) {
	ctx := context.Background()

	t.Run("shared store", func(t *testing.T) {
		s, _ := newStorage(t, kvstore.NewMemoryStore())
		require.NoError(t, s.Set(ctx, "note", "x"))
		require.NoError(t, s.AuthStore().Set(ctx, "dropbox.access_token", "tok"))
		require.NoError(t, s.AuthStore().Set(ctx, "dropbox.refresh_token", "ref"))

		keys, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"note"}, keys)
	})

	t.Run("separate auth store", func(t *testing.T) {
		s, err := New(Options{Store: kvstore.NewMemoryStore(), AuthStore: kvstore.NewMemoryStore()})
		require.NoError(t, err)
		require.NoError(t, s.Set(ctx, "auth.note", "x"))
		require.NoError(t, s.AuthStore().Set(ctx, "dropbox.access_token", "tok"))

		keys, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"auth.note"}, keys)
	})
}

func TestStorage_WarnsWithoutProvider(t *testing.T) {
	ctx := context.Background()
	s, logs := newStorage(t, kvstore.NewMemoryStore())

	require.NoError(t, s.Set(ctx, "a", "1"))
	assert.Contains(t, logs.String(), "no provider has been activated")

	_, err := s.Activate(ctx, providers.FileSystemName, provider.Options{"root": t.TempDir()})
	require.NoError(t, err)
	logs.Reset()

	require.NoError(t, s.Set(ctx, "a", "2"))
	assert.NotContains(t, logs.String(), "no provider has been activated")
}

func TestStorage_Activate(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown provider", func(t *testing.T) {
		s, _ := newStorage(t, kvstore.NewMemoryStore())
		_, err := s.Activate(ctx, "ftp", nil)
		assert.ErrorIs(t, err, provider.ErrInvalidProvider)
	})

	t.Run("single active provider", func(t *testing.T) {
		s, _ := newStorage(t, kvstore.NewMemoryStore())
		_, err := s.Activate(ctx, providers.FileSystemName, provider.Options{"root": t.TempDir()})
		require.NoError(t, err)

		_, err = s.Activate(ctx, providers.DropboxName, provider.Options{"client_id": "abc"})
		assert.ErrorIs(t, err, provider.ErrMultipleProviders)
		assert.Len(t, s.Registry().Active(), 1)
	})
}

func TestStorage_Authenticate(t *testing.T) {
	ctx := context.Background()
	s, _ := newStorage(t, kvstore.NewMemoryStore())

	assert.False(t, s.Authenticated(), "no provider")
	require.NoError(t, s.HandleAuth(ctx), "nothing to do without providers")

	root := filepath.Join(t.TempDir(), "sync")
	_, err := s.Activate(ctx, providers.FileSystemName, provider.Options{"root": root})
	require.NoError(t, err)

	require.NoError(t, s.HandleAuth(ctx))
	assert.False(t, s.Authenticated())

	require.NoError(t, s.Authenticate(ctx))
	assert.True(t, s.Authenticated())
	assert.DirExists(t, root)
}
