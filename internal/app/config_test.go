package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/decentstore/internal/kvstore"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, LogFormatText, cfg.LogFormat)
	assert.Equal(t, "dS", cfg.Prefix)
	assert.Equal(t, StoreBackendFile, cfg.Store.Backend)
	assert.Equal(t, "data.json", filepath.Base(cfg.Store.File))
	assert.Equal(t, "auth.json", filepath.Base(cfg.AuthStore.File))
	assert.Equal(t, "decentstore", filepath.Base(filepath.Dir(cfg.Store.File)))
	assert.Equal(t, "http://127.0.0.1:8765/callback", cfg.Callback.RedirectURL())
	assert.Equal(t, DefaultConfigShutdownTimeout, cfg.Shutdown.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_BackendDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := &Config{
		Store:     StoreConfig{Backend: StoreBackendSQLite},
		AuthStore: StoreConfig{Backend: StoreBackendKeyring},
	}
	require.NoError(t, cfg.ApplyDefaults())

	assert.Equal(t, "data.db", filepath.Base(cfg.Store.SQLite))
	assert.Empty(t, cfg.Store.File)
	assert.Equal(t, DefaultConfigKeyringService, cfg.AuthStore.KeyringService)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "unknown log format", mutate: func(c *Config) { c.LogFormat = "xml" }, want: "LogFormat"},
		{name: "prefix with separator", mutate: func(c *Config) { c.Prefix = "d.S" }, want: "Prefix"},
		{name: "unknown backend", mutate: func(c *Config) { c.Store.Backend = "s3" }, want: "Backend"},
		{name: "unknown provider", mutate: func(c *Config) { c.Provider.Type = "ftp" }, want: "Type"},
		{name: "relative callback path", mutate: func(c *Config) { c.Callback.Path = "callback" }, want: "Path"},
		{name: "file backend without path", mutate: func(c *Config) { c.AuthStore.File = "" }, want: "auth_store: file path required"},
		{name: "sqlite backend without path", mutate: func(c *Config) { c.Store = StoreConfig{Backend: StoreBackendSQLite} }, want: "store: database path required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Store:     StoreConfig{Backend: StoreBackendMemory},
				AuthStore: StoreConfig{Backend: StoreBackendFile, File: filepath.Join(t.TempDir(), "auth.json")},
			}
			require.NoError(t, cfg.ApplyDefaults())
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}

func TestStoreConfig_NewStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		cfg  StoreConfig
		want kvstore.Store
	}{
		{cfg: StoreConfig{Backend: StoreBackendMemory}, want: &kvstore.MemoryStore{}},
		{cfg: StoreConfig{Backend: StoreBackendFile, File: filepath.Join(dir, "nested", "data.json")}, want: &kvstore.FileStore{}},
		{cfg: StoreConfig{Backend: StoreBackendSQLite, SQLite: filepath.Join(dir, "nested", "data.db")}, want: &kvstore.SQLiteStore{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.cfg.Backend), func(t *testing.T) {
			s, err := tt.cfg.NewStore(ctx)
			require.NoError(t, err)
			assert.IsType(t, tt.want, s)
			require.NoError(t, s.SetItem(ctx, "dS.k", "v"))
			if sq, ok := s.(*kvstore.SQLiteStore); ok {
				require.NoError(t, sq.Close())
			}
		})
	}

	_, err := (&StoreConfig{Backend: "s3"}).NewStore(ctx)
	assert.Error(t, err)
}
