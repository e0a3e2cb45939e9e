package kvstore

import "context"

// Store is a flat string-keyed key-value store with full enumeration.
//
// Keys are enumerated in ascending lexical order so Key(i) is stable between
// writes.
type Store interface {
	// SetItem stores value under key, overwriting any existing value.
	SetItem(ctx context.Context, key, value string) error

	// GetItem returns the value stored under key. The boolean is false if the
	// key does not exist.
	GetItem(ctx context.Context, key string) (string, bool, error)

	// RemoveItem deletes key. Removing a missing key is not an error.
	RemoveItem(ctx context.Context, key string) error

	// Clear removes every key in the store.
	Clear(ctx context.Context) error

	// Len returns the number of stored keys.
	Len(ctx context.Context) (int, error)

	// Key returns the key at index in enumeration order. The boolean is false
	// if index is out of range.
	Key(ctx context.Context, index int) (string, bool, error)
}

// Lister is implemented by stores that can return every key in one read.
// Callers enumerating the whole store should prefer it over Len and Key.
type Lister interface {
	// Keys returns every stored key in ascending lexical order.
	Keys(ctx context.Context) ([]string, error)
}

// AllKeys returns every key of store in ascending lexical order, using a
// single Keys call when store is a Lister.
func AllKeys(ctx context.Context, store Store) ([]string, error) {
	if l, ok := store.(Lister); ok {
		return l.Keys(ctx)
	}

	n, err := store.Len(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, n)
	for i := range n {
		key, ok, err := store.Key(ctx, i)
		if err != nil {
			return nil, err
		}
		if ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
