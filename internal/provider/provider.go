package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"github.com/florianilch/decentstore/internal/authflow"
	"github.com/florianilch/decentstore/internal/kvstore"
)

// Provider is a storage backend that may need an authorization handshake
// before it can be used.
type Provider interface {
	// Authenticate starts the handshake. It may navigate away from the
	// current environment, in which case the handshake resumes through a
	// later HandleAuthCallback.
	Authenticate(ctx context.Context) error

	// HandleAuthCallback inspects the environment and completes or resumes
	// the handshake, updating stored tokens. It must be safe to call when
	// there is nothing to do.
	HandleAuthCallback(ctx context.Context) error
}

// AuthStatus is implemented by providers that can report whether they hold
// usable credentials.
type AuthStatus interface {
	Authenticated() bool
}

// Host gives providers access to the stores and environment of the
// storage instance that activated them.
type Host interface {
	// SessionStore holds transient handshake state.
	SessionStore() *kvstore.Prefixed
	// AuthStore holds durable tokens.
	AuthStore() *kvstore.Prefixed
	Environment() authflow.Environment
	Logger() *slog.Logger
}

// Options are the provider-specific settings passed on activation.
type Options map[string]any

// Factory creates a provider instance.
type Factory func(host Host, opts Options) (Provider, error)

// Type identifies a kind of provider. Types are compared by Name.
type Type struct {
	Name string
	New  Factory
}

func (t Type) String() string {
	return t.Name
}

// validate checks that t satisfies the provider contract.
func (t Type) validate() error {
	if t.Name == "" || t.New == nil {
		return fmt.Errorf("%q: %w", t.Name, ErrInvalidProvider)
	}
	return nil
}

// Unimplemented is the abstract base contract. Embed it to inherit a no-op
// HandleAuthCallback; Authenticate fails until overridden.
type Unimplemented struct {
	Name string
}

func (u Unimplemented) Authenticate(context.Context) error {
	return fmt.Errorf("%s %w: Authenticate", u.Name, ErrNotImplemented)
}

func (u Unimplemented) HandleAuthCallback(context.Context) error {
	return nil
}

// DecodeOptions decodes opts into target using its json tags and validates
// the result with its validate tags. Failures are reported as a
// *ConfigurationError for the named provider.
func DecodeOptions(name string, opts Options, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return &ConfigurationError{Provider: name, Err: err}
	}
	if err := decoder.Decode(map[string]any(opts)); err != nil {
		return &ConfigurationError{Provider: name, Err: err}
	}
	if err := validator.New().Struct(target); err != nil {
		return &ConfigurationError{Provider: name, Err: err}
	}
	return nil
}
