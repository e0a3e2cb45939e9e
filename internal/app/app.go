package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/decentstore/internal/callback"
	"github.com/florianilch/decentstore/internal/kvstore"
	"github.com/florianilch/decentstore/internal/provider"
	"github.com/florianilch/decentstore/internal/storage"
)

// ErrNoProvider is returned when an operation needs a configured provider.
var ErrNoProvider = errors.New("no provider configured")

// App wires configuration, stores, the callback environment, and storage.
type App struct {
	cfg     *Config
	env     *callback.Environment
	storage *storage.Storage
	closers []io.Closer
}

// Option configures an App.
type Option func(*options)

type options struct {
	envOpts []callback.EnvironmentOption
}

// WithEnvironmentOptions configures the callback environment, mainly for tests.
func WithEnvironmentOptions(opts ...callback.EnvironmentOption) Option {
	return func(o *options) {
		o.envOpts = append(o.envOpts, opts...)
	}
}

// New creates a new App instance and activates the configured provider.
func New(ctx context.Context, cfg *Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{cfg: cfg}

	data, err := a.openStore(ctx, &cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	auth, err := a.openStore(ctx, &cfg.AuthStore)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to open auth store: %w", err)
	}

	a.env, err = callback.NewEnvironment(cfg.Callback.RedirectURL(), o.envOpts...)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create callback environment: %w", err)
	}

	a.storage, err = storage.New(storage.Options{
		Prefix:      cfg.Prefix,
		Store:       data,
		AuthStore:   auth,
		Environment: a.env,
		Logger:      slog.Default(),
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	if cfg.Provider.Type != "" {
		if _, err := a.storage.Activate(ctx, cfg.Provider.Type, provider.Options(cfg.Provider.Options)); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to activate provider %s: %w", cfg.Provider.Type, err)
		}
	}

	return a, nil
}

// Storage returns the storage facade.
func (a *App) Storage() *storage.Storage {
	return a.storage
}

// Provider returns the configured provider type name.
func (a *App) Provider() string {
	return a.cfg.Provider.Type
}

// Resume restores the provider session from stored tokens.
func (a *App) Resume(ctx context.Context) error {
	if a.cfg.Provider.Type == "" {
		return ErrNoProvider
	}
	return a.storage.HandleAuth(ctx)
}

// Login runs the authorization handshake and blocks until the redirect has
// been handled, the login times out, or ctx is cancelled.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Login(ctx context.Context) error {
	if a.cfg.Provider.Type == "" {
		return ErrNoProvider
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Callback.LoginTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)
	loginCtx, finish := context.WithCancel(gCtx)
	defer finish()

	address := a.cfg.Callback.Address()
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	server := callback.New(a.env, a.storage.HandleAuth, slog.Default())
	slog.DebugContext(ctx, "starting callback server", "address", address)
	serverErrCh, err := server.Start(loginCtx, address)
	if err != nil {
		return fmt.Errorf("callback server startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, server.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-serverErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "callback server runtime error", "error", err)
				return fmt.Errorf("callback server: %w", err)
			}
			return nil
		case <-loginCtx.Done():
			return nil
		}
	})

	g.Go(func() error {
		defer finish()

		if err := a.storage.Authenticate(loginCtx); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}
		// Providers without a redirect step are done already.
		if a.storage.Authenticated() {
			return nil
		}

		slog.InfoContext(loginCtx, "waiting for authorization", "redirect_url", a.cfg.Callback.RedirectURL())
		select {
		case err := <-server.Done():
			return err
		case <-loginCtx.Done():
			return fmt.Errorf("login aborted: %w", context.Cause(loginCtx))
		}
	})

	runtimeErr := g.Wait()

	// Shutdown phase: Stop all services
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancelShutdown()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, runtimeErr)
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.InfoContext(ctx, "login complete", "provider", a.cfg.Provider.Type)
	return nil
}

// Close releases stores that hold open resources.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openStore(ctx context.Context, cfg *StoreConfig) (kvstore.Store, error) {
	s, err := cfg.NewStore(ctx)
	if err != nil {
		return nil, err
	}
	if c, ok := s.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	return s, nil
}
