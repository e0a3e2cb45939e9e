package provider

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/decentstore/internal/authflow"
	"github.com/florianilch/decentstore/internal/kvstore"
)

type fakeHost struct{}

func (fakeHost) SessionStore() *kvstore.Prefixed { return nil }
func (fakeHost) AuthStore() *kvstore.Prefixed { return nil }
func (fakeHost) Environment() authflow.Environment { return nil }
func (fakeHost) Logger() *slog.Logger { return slog.Default() }

// stubProvider overrides Authenticate and records the options it was built with.
type stubProvider struct {
	Unimplemented
	opts Options
}

func (s *stubProvider) Authenticate(context.Context) error { return nil }

func stubType(name string) Type {
	return Type{
		Name: name,
		New: func(_ Host, opts Options) (Provider, error) {
			return &stubProvider{Unimplemented: Unimplemented{Name: name}, opts: opts}, nil
		},
	}
}

func newRegistry(t *testing.T, types ...Type) *Registry {
	t.Helper()
	r, err := NewRegistry(fakeHost{}, types...)
	require.NoError(t, err)
	return r
}

func TestRegistry_AddType(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		wantErr bool
	}{
		{name: "valid", typ: stubType("remote")},
		{name: "missing name", typ: Type{New: stubType("x").New}, wantErr: true},
		{name: "missing factory", typ: Type{Name: "remote"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRegistry(t)
			err := r.AddType(tt.typ)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidProvider)
				assert.Empty(t, r.Types())
				return
			}
			require.NoError(t, err)
			require.NoError(t, r.AddType(tt.typ), "adding twice is a no-op")
			assert.Len(t, r.Types(), 1)
		})
	}

	t.Run("constructor rejects invalid types", func(t *testing.T) {
		_, err := NewRegistry(fakeHost{}, Type{Name: "broken"})
		assert.ErrorIs(t, err, ErrInvalidProvider)
	})
}

func TestRegistry_Activate(t *testing.T) {
	ctx := context.Background()
	remote := stubType("remote")

	r := newRegistry(t)
	p, err := r.Activate(ctx, remote, Options{"client_id": "abc"})
	require.NoError(t, err)

	assert.Equal(t, Options{"client_id": "abc"}, p.(*stubProvider).opts)
	_, known := r.Lookup("remote")
	assert.True(t, known, "unknown types are registered on activation")

	found, ok := r.FindActive(remote)
	require.True(t, ok)
	assert.Same(t, p, found)

	_, err = r.Activate(ctx, remote, nil)
	assert.ErrorIs(t, err, ErrAlreadyActive)
	assert.Len(t, r.Active(), 1)
}

func TestRegistry_SingleActiveProvider(t *testing.T) {
	ctx := context.Background()
	first := stubType("dropbox")

	for _, second := range []Type{stubType("google_drive"), stubType("file_system"), stubType("custom")} {
		t.Run(second.Name, func(t *testing.T) {
			r := newRegistry(t, first)
			original, err := r.Activate(ctx, first, nil)
			require.NoError(t, err)

			_, err = r.Activate(ctx, second, nil)
			assert.ErrorIs(t, err, ErrMultipleProviders)

			active, ok := r.FindActive(first)
			require.True(t, ok, "original provider stays active")
			assert.Same(t, original, active)
			_, ok = r.FindActive(second)
			assert.False(t, ok)
			assert.Len(t, r.Active(), 1)
		})
	}
}

func TestRegistry_ActivateFactoryError(t *testing.T) {
	cfgErr := &ConfigurationError{Provider: "remote", Err: errors.New("client_id is required")}
	failing := Type{
		Name: "remote",
		New:  func(Host, Options) (Provider, error) { return nil, cfgErr },
	}

	r := newRegistry(t)
	_, err := r.Activate(context.Background(), failing, nil)

	var target *ConfigurationError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "remote", target.Provider)
	assert.Empty(t, r.Active())
}

func TestRegistry_Deactivate(t *testing.T) {
	ctx := context.Background()
	remote := stubType("remote")
	r := newRegistry(t)

	r.Deactivate(remote) // no-op when inactive

	_, err := r.Activate(ctx, remote, nil)
	require.NoError(t, err)
	r.Deactivate(remote)

	_, ok := r.FindActive(remote)
	assert.False(t, ok)
	assert.Len(t, r.Types(), 1, "deactivation keeps the type known")

	_, err = r.Activate(ctx, remote, nil)
	assert.NoError(t, err, "can be activated again")
}

func TestRegistry_RemoveType(t *testing.T) {
	ctx := context.Background()
	remote := stubType("remote")
	r := newRegistry(t, remote)

	_, err := r.Activate(ctx, remote, nil)
	require.NoError(t, err)

	r.RemoveType(remote)
	r.RemoveType(remote) // idempotent

	_, ok := r.FindActive(remote)
	assert.False(t, ok)
	assert.Empty(t, r.Types())
	assert.Empty(t, r.Active())
}

func TestUnimplemented(t *testing.T) {
	base := Unimplemented{Name: "BareProvider"}

	err := base.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrNotImplemented)
	assert.ErrorContains(t, err, "BareProvider")
	assert.NoError(t, base.HandleAuthCallback(context.Background()))
}

func TestDecodeOptions(t *testing.T) {
	type options struct {
		ClientID string `json:"client_id" validate:"required"`
		Port     int    `json:"port"`
	}

	t.Run("decodes json tags with weak typing", func(t *testing.T) {
		var got options
		require.NoError(t, DecodeOptions("remote", Options{"client_id": "abc", "port": "8080"}, &got))
		assert.Equal(t, options{ClientID: "abc", Port: 8080}, got)
	})

	t.Run("missing required option", func(t *testing.T) {
		var got options
		err := DecodeOptions("remote", nil, &got)

		var cfgErr *ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "remote", cfgErr.Provider)
		assert.ErrorContains(t, err, "ClientID")
	})
}
