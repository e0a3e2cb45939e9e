package kvstore

import (
	"context"
	"fmt"
	"strings"
)

// Prefixed is a namespaced view of a Store. Keys are stored as
// "<root>.<sub>.<key>", or "<root>.<key>" when sub is empty.
//
// Several views over one store share a root. Clear on any of them removes the
// whole root family, so any view can act as a reset handle.
type Prefixed struct {
	store Store
	root  string
	sub   string
}

// NewPrefixed creates a view of store under root and the optional sub prefix.
func NewPrefixed(store Store, root, sub string) (*Prefixed, error) {
	if store == nil {
		return nil, fmt.Errorf("missing store")
	}
	if root == "" {
		return nil, fmt.Errorf("root prefix cannot be empty")
	}

	return &Prefixed{
		store: store,
		root:  root,
		sub:   sub,
	}, nil
}

// RootPrefix returns "<root>.", the prefix shared by every view with the same root.
func (p *Prefixed) RootPrefix() string {
	return p.root + "."
}

// Prefix returns the full prefix prepended to keys of this view.
func (p *Prefixed) Prefix() string {
	if p.sub == "" {
		return p.RootPrefix()
	}
	return p.RootPrefix() + p.sub + "."
}

// Store returns the underlying store.
func (p *Prefixed) Store() Store {
	return p.store
}

func (p *Prefixed) Set(ctx context.Context, key, value string) error {
	return p.store.SetItem(ctx, p.Prefix()+key, value)
}

func (p *Prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.store.GetItem(ctx, p.Prefix()+key)
}

func (p *Prefixed) Remove(ctx context.Context, key string) error {
	return p.store.RemoveItem(ctx, p.Prefix()+key)
}

// Clear removes every key of the underlying store that starts with the root
// prefix, including keys of sibling namespaces. Keys outside the root are kept.
func (p *Prefixed) Clear(ctx context.Context) error {
	all, err := AllKeys(ctx, p.store)
	if err != nil {
		return err
	}

	root := p.RootPrefix()
	for _, key := range all {
		if !strings.HasPrefix(key, root) {
			continue
		}
		if err := p.store.RemoveItem(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Keys returns the keys of this view with the view prefix stripped.
func (p *Prefixed) Keys(ctx context.Context) ([]string, error) {
	all, err := AllKeys(ctx, p.store)
	if err != nil {
		return nil, err
	}

	prefix := p.Prefix()
	var keys []string
	for _, key := range all {
		if rest, found := strings.CutPrefix(key, prefix); found {
			keys = append(keys, rest)
		}
	}
	return keys, nil
}
