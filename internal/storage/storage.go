// Package storage is the facade consumers use: a prefixed key-value store
// that caches data locally and defers authorization to the active provider.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/florianilch/decentstore/internal/authflow"
	"github.com/florianilch/decentstore/internal/kvstore"
	"github.com/florianilch/decentstore/internal/provider"
	"github.com/florianilch/decentstore/internal/providers"
)

// DefaultPrefix is the root namespace of every key written by Storage.
const DefaultPrefix = "dS"

// authNamespace separates tokens from cached data under the same root.
const authNamespace = "auth"

// Options configures a Storage instance.
type Options struct {
	// Prefix is the root namespace. Defaults to DefaultPrefix.
	Prefix string

	// Store caches data for offline access. Required.
	Store kvstore.Store

	// AuthStore keeps provider tokens. Defaults to Store.
	AuthStore kvstore.Store

	// SessionStore keeps handshake state for the lifetime of the process.
	// Defaults to a fresh MemoryStore.
	SessionStore kvstore.Store

	// Environment drives redirect-based handshakes. Required for remote providers.
	Environment authflow.Environment

	// Providers are the known provider types. Defaults to providers.Defaults().
	Providers []provider.Type

	Logger *slog.Logger
}

// Storage exposes get/set/remove/clear/len/key over the configured store and
// manages provider activation and authorization.
type Storage struct {
	data     *kvstore.Prefixed
	auth     *kvstore.Prefixed
	session  *kvstore.Prefixed
	env      authflow.Environment
	logger   *slog.Logger
	registry *provider.Registry
}

// Compile-time check to ensure Storage can host providers
var _ provider.Host = (*Storage)(nil)

// New creates a Storage instance from opts.
func New(opts Options) (*Storage, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("missing store")
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.AuthStore == nil {
		opts.AuthStore = opts.Store
	}
	if opts.SessionStore == nil {
		opts.SessionStore = kvstore.NewMemoryStore()
	}
	if opts.Providers == nil {
		opts.Providers = providers.Defaults()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	data, err := kvstore.NewPrefixed(opts.Store, opts.Prefix, "")
	if err != nil {
		return nil, fmt.Errorf("data store: %w", err)
	}
	auth, err := kvstore.NewPrefixed(opts.AuthStore, opts.Prefix, authNamespace)
	if err != nil {
		return nil, fmt.Errorf("auth store: %w", err)
	}
	session, err := kvstore.NewPrefixed(opts.SessionStore, opts.Prefix, "")
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}

	s := &Storage{
		data:    data,
		auth:    auth,
		session: session,
		env:     opts.Environment,
		logger:  opts.Logger,
	}

	s.registry, err = provider.NewRegistry(s, opts.Providers...)
	if err != nil {
		return nil, fmt.Errorf("registering providers: %w", err)
	}
	return s, nil
}

func (s *Storage) SessionStore() *kvstore.Prefixed { return s.session }

func (s *Storage) AuthStore() *kvstore.Prefixed { return s.auth }

func (s *Storage) Environment() authflow.Environment { return s.env }

func (s *Storage) Logger() *slog.Logger { return s.logger }

// Registry returns the provider registry.
func (s *Storage) Registry() *provider.Registry {
	return s.registry
}

// Activate activates the provider type called name with opts.
func (s *Storage) Activate(ctx context.Context, name string, opts provider.Options) (provider.Provider, error) {
	t, ok := s.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q: %w", name, provider.ErrInvalidProvider)
	}
	return s.registry.Activate(ctx, t, opts)
}

// Authenticate starts the handshake of every active provider.
func (s *Storage) Authenticate(ctx context.Context) error {
	var errs []error
	for _, p := range s.registry.Active() {
		if err := p.Authenticate(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleAuth lets every active provider complete or resume its handshake.
func (s *Storage) HandleAuth(ctx context.Context) error {
	var errs []error
	for _, p := range s.registry.Active() {
		if err := p.HandleAuthCallback(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Authenticated reports whether a provider is active and holds usable credentials.
func (s *Storage) Authenticated() bool {
	active := s.registry.Active()
	if len(active) == 0 {
		return false
	}
	for _, p := range active {
		if status, ok := p.(provider.AuthStatus); ok && !status.Authenticated() {
			return false
		}
	}
	return true
}

func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	s.checkProviders(ctx)
	return s.data.Get(ctx, key)
}

func (s *Storage) Set(ctx context.Context, key, value string) error {
	s.checkProviders(ctx)
	return s.data.Set(ctx, key, value)
}

func (s *Storage) Remove(ctx context.Context, key string) error {
	s.checkProviders(ctx)
	return s.data.Remove(ctx, key)
}

// Clear removes every key under the root prefix, including stored tokens
// when they share the data store.
func (s *Storage) Clear(ctx context.Context) error {
	s.checkProviders(ctx)
	return s.data.Clear(ctx)
}

// Len returns the number of keys in the underlying data store.
func (s *Storage) Len(ctx context.Context) (int, error) {
	return s.data.Store().Len(ctx)
}

// Key returns the key at index in the underlying data store.
func (s *Storage) Key(ctx context.Context, index int) (string, bool, error) {
	return s.data.Store().Key(ctx, index)
}

// Keys returns the data keys under the root prefix, without the prefix.
// Tokens are left out when they share the data store.
func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.data.Keys(ctx)
	if err != nil || s.auth.Store() != s.data.Store() {
		return keys, err
	}
	return slices.DeleteFunc(keys, func(k string) bool {
		return strings.HasPrefix(k, authNamespace+".")
	}), nil
}

// checkProviders warns when data operations run without a provider to sync with.
func (s *Storage) checkProviders(ctx context.Context) {
	if len(s.registry.Active()) == 0 {
		s.logger.WarnContext(ctx, "no provider has been activated, data will not be synced")
	}
}
