package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/decentstore/internal/kvstore"
	"github.com/florianilch/decentstore/internal/storage"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
	LogFormatOTel LogFormat = "otel"
)

// StoreBackend represents the different backends supported for local storage.
type StoreBackend string

const (
	StoreBackendFile    StoreBackend = "file"
	StoreBackendSQLite  StoreBackend = "sqlite"
	StoreBackendKeyring StoreBackend = "keyring"
	StoreBackendMemory  StoreBackend = "memory"
)

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigPrefix          = storage.DefaultPrefix
	DefaultConfigStoreBackend    = StoreBackendFile
	DefaultConfigAuthBackend     = StoreBackendFile
	DefaultConfigKeyringService  = "decentstore"
	DefaultConfigCallbackHost    = "127.0.0.1"
	DefaultConfigCallbackPort    = 8765
	DefaultConfigCallbackPath    = "/callback"
	DefaultConfigShutdownTimeout = 5 * time.Second
	DefaultConfigLoginTimeout    = 5 * time.Minute
)

// StoreConfig describes how to construct a kvstore.Store.
type StoreConfig struct {
	Backend StoreBackend `json:"backend" validate:"required,oneof=file sqlite keyring memory"`

	// Backend-specific settings (mutually exclusive based on Backend)
	File           string `json:"file,omitempty"`            // For file backend: path to JSON document
	SQLite         string `json:"sqlite,omitempty"`          // For sqlite backend: database path
	KeyringService string `json:"keyring_service,omitempty"` // For keyring backend: service name
}

// NewStore creates a Store from the configuration.
func (s *StoreConfig) NewStore(ctx context.Context) (kvstore.Store, error) {
	switch s.Backend {
	case StoreBackendFile:
		return kvstore.NewFileStore(s.File)
	case StoreBackendSQLite:
		if err := os.MkdirAll(filepath.Dir(s.SQLite), 0700); err != nil {
			return nil, err
		}
		return kvstore.NewSQLiteStore(ctx, s.SQLite)
	case StoreBackendKeyring:
		return kvstore.NewKeyringStore(s.KeyringService)
	case StoreBackendMemory:
		return kvstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", s.Backend)
	}
}

// applyDefaults fills backend-specific settings; name is the file stem under dir.
func (s *StoreConfig) applyDefaults(backend StoreBackend, dir func() (string, error), name string) error {
	if s.Backend == "" {
		s.Backend = backend
	}

	switch s.Backend {
	case StoreBackendFile:
		if s.File == "" {
			d, err := dir()
			if err != nil {
				return fmt.Errorf("file required (auto-detect failed: %w)", err)
			}
			s.File = filepath.Join(d, name+".json")
		}
	case StoreBackendSQLite:
		if s.SQLite == "" {
			d, err := dir()
			if err != nil {
				return fmt.Errorf("sqlite required (auto-detect failed: %w)", err)
			}
			s.SQLite = filepath.Join(d, name+".db")
		}
	case StoreBackendKeyring:
		if s.KeyringService == "" {
			s.KeyringService = DefaultConfigKeyringService
		}
	case StoreBackendMemory:
		// nothing to configure
	}
	return nil
}

func (s *StoreConfig) validate() error {
	switch s.Backend {
	case StoreBackendFile:
		if s.File == "" {
			return errors.New("file path required for file backend")
		}
	case StoreBackendSQLite:
		if s.SQLite == "" {
			return errors.New("database path required for sqlite backend")
		}
	case StoreBackendKeyring:
		if s.KeyringService == "" {
			return errors.New("keyring_service required for keyring backend")
		}
	}
	return nil
}

// ProviderConfig selects the provider activated at startup.
type ProviderConfig struct {
	// Type is a registered provider type name. Empty means local-only storage.
	Type    string         `json:"type" validate:"omitempty,oneof=dropbox google_drive file_system"`
	Options map[string]any `json:"options,omitempty"`
}

// CallbackConfig holds the loopback server that receives OAuth redirects.
type CallbackConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
	Path string `json:"path" validate:"startswith=/"`

	// LoginTimeout bounds how long login waits for the redirect.
	LoginTimeout time.Duration `json:"login_timeout"`
}

// Address returns the listen address of the callback server.
func (c *CallbackConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.FormatUint(uint64(c.Port), 10))
}

// RedirectURL returns the redirect URI registered with providers.
func (c *CallbackConfig) RedirectURL() string {
	u := url.URL{Scheme: "http", Host: c.Address(), Path: c.Path}
	return u.String()
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level `json:"log_level"`
	LogFormat LogFormat  `json:"log_format" validate:"oneof=text json otel"`

	// Prefix is the root namespace of every stored key.
	Prefix string `json:"prefix" validate:"required,excludes=."`

	Store     StoreConfig    `json:"store"`
	AuthStore StoreConfig    `json:"auth_store"`
	Provider  ProviderConfig `json:"provider"`
	Callback  CallbackConfig `json:"callback"`
	Shutdown  ShutdownConfig `json:"shutdown"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Prefix == "" {
		c.Prefix = DefaultConfigPrefix
	}
	if c.Callback.Host == "" {
		c.Callback.Host = DefaultConfigCallbackHost
	}
	if c.Callback.Port == 0 {
		c.Callback.Port = DefaultConfigCallbackPort
	}
	if c.Callback.Path == "" {
		c.Callback.Path = DefaultConfigCallbackPath
	}
	if c.Callback.LoginTimeout == 0 {
		c.Callback.LoginTimeout = DefaultConfigLoginTimeout
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}

	// Dynamic defaults based on backend
	if err := c.Store.applyDefaults(DefaultConfigStoreBackend, configDir, "data"); err != nil {
		return fmt.Errorf("store.%w", err)
	}
	if err := c.AuthStore.applyDefaults(DefaultConfigAuthBackend, configDir, "auth"); err != nil {
		return fmt.Errorf("auth_store.%w", err)
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if err := c.Store.validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.AuthStore.validate(); err != nil {
		return fmt.Errorf("auth_store: %w", err)
	}

	return nil
}

func configDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "decentstore"), nil
}
