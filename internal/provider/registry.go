package provider

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// activeProvider is an instance together with the type that created it.
type activeProvider struct {
	typ      Type
	instance Provider
}

// Registry tracks known provider types and the active provider instance.
type Registry struct {
	host Host

	mu     sync.Mutex
	types  []Type
	active []activeProvider
}

// NewRegistry creates a registry whose factories receive host. The given
// types are registered up front.
func NewRegistry(host Host, types ...Type) (*Registry, error) {
	r := &Registry{host: host}
	for _, t := range types {
		if err := r.AddType(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// AddType registers t. Registering a known type again is a no-op.
func (r *Registry) AddType(t Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addType(t)
}

// RemoveType forgets t, deactivating its instance first if it is active.
func (r *Registry) RemoveType(t Type) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.types = slices.DeleteFunc(r.types, func(known Type) bool { return known.Name == t.Name })
	r.deactivate(t)
}

// Types returns the registered provider types.
func (r *Registry) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.types)
}

// Lookup returns the registered type called name.
func (r *Registry) Lookup(name string) (Type, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := slices.IndexFunc(r.types, func(t Type) bool { return t.Name == name })
	if i < 0 {
		return Type{}, false
	}
	return r.types[i], true
}

// Activate creates and tracks an instance of t configured with opts. Unknown
// types are registered on the way. Only one provider may be active at a time.
func (r *Registry) Activate(ctx context.Context, t Type, opts Options) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.find(t); ok {
		return nil, fmt.Errorf("%s: %w", t.Name, ErrAlreadyActive)
	}

	if err := r.addType(t); err != nil {
		return nil, err
	}

	if len(r.active) > 0 {
		return nil, fmt.Errorf("cannot activate %s while %s is active: %w", t.Name, r.active[0].typ.Name, ErrMultipleProviders)
	}

	instance, err := t.New(r.host, opts)
	if err != nil {
		return nil, err
	}

	r.active = append(r.active, activeProvider{typ: t, instance: instance})
	if r.host != nil && r.host.Logger() != nil {
		r.host.Logger().InfoContext(ctx, "provider activated", "provider", t.Name)
	}
	return instance, nil
}

// Deactivate drops the active instance of t, if any.
func (r *Registry) Deactivate(t Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deactivate(t)
}

// FindActive returns the active instance of t.
func (r *Registry) FindActive(t Type) (Provider, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(t)
}

// Active returns all active instances.
func (r *Registry) Active() []Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	instances := make([]Provider, 0, len(r.active))
	for _, a := range r.active {
		instances = append(instances, a.instance)
	}
	return instances
}

func (r *Registry) addType(t Type) error {
	if err := t.validate(); err != nil {
		return err
	}
	if !slices.ContainsFunc(r.types, func(known Type) bool { return known.Name == t.Name }) {
		r.types = append(r.types, t)
	}
	return nil
}

func (r *Registry) deactivate(t Type) {
	r.active = slices.DeleteFunc(r.active, func(a activeProvider) bool { return a.typ.Name == t.Name })
}

func (r *Registry) find(t Type) (Provider, bool) {
	for _, a := range r.active {
		if a.typ.Name == t.Name {
			return a.instance, true
		}
	}
	return nil, false
}
