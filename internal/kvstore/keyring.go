package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/zalando/go-keyring"
)

// The OS keyring APIs cannot enumerate entries, so the store tracks its keys
// as a JSON list in a sibling service. Item keys never share a namespace with it.
const (
	keyringIndexSuffix = ".index"
	keyringIndexUser   = "keys"
)

// KeyringStore provides OS-native secure credential storage.
// Uses macOS Keychain, Windows Credential Manager, or Linux Secret Service.
// Each item is one keyring entry under the store's service name.
type KeyringStore struct {
	service      string
	indexService string
	mu           sync.Mutex
}

// Compile-time check to ensure KeyringStore implements Store
var (
	_ Store  = (*KeyringStore)(nil)
	_ Lister = (*KeyringStore)(nil)
)

// NewKeyringStore creates a KeyringStore that keeps its entries under the given service.
func NewKeyringStore(service string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}

	return &KeyringStore{
		service:      service,
		indexService: service + keyringIndexSuffix,
	}, nil
}

func (k *KeyringStore) SetItem(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := keyring.Set(k.service, key, value); err != nil {
		return fmt.Errorf("keyring set %q: %w", key, err)
	}

	index, err := k.index()
	if err != nil {
		return err
	}
	if i, found := slices.BinarySearch(index, key); !found {
		return k.writeIndex(slices.Insert(index, i, key))
	}
	return nil
}

func (k *KeyringStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	value, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("keyring get %q: %w", key, err)
	}
	return value, true, nil
}

func (k *KeyringStore) RemoveItem(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	return k.remove(key)
}

func (k *KeyringStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	index, err := k.index()
	if err != nil {
		return err
	}
	for _, key := range index {
		if err := keyring.Delete(k.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("keyring delete %q: %w", key, err)
		}
	}
	return k.writeIndex(nil)
}

func (k *KeyringStore) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	index, err := k.index()
	if err != nil {
		return 0, err
	}
	return len(index), nil
}

func (k *KeyringStore) Key(ctx context.Context, i int) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	index, err := k.index()
	if err != nil {
		return "", false, err
	}
	if i < 0 || i >= len(index) {
		return "", false, nil
	}
	return index[i], true, nil
}

func (k *KeyringStore) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	return k.index()
}

// remove deletes one entry and drops it from the index. Caller holds k.mu.
func (k *KeyringStore) remove(key string) error {
	if err := keyring.Delete(k.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete %q: %w", key, err)
	}

	index, err := k.index()
	if err != nil {
		return err
	}
	if i, found := slices.BinarySearch(index, key); found {
		return k.writeIndex(slices.Delete(index, i, i+1))
	}
	return nil
}

// index returns the sorted list of stored keys. Caller holds k.mu.
func (k *KeyringStore) index() ([]string, error) {
	raw, err := keyring.Get(k.indexService, keyringIndexUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keyring index: %w", err)
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, fmt.Errorf("parsing keyring index: %w", err)
	}
	slices.Sort(keys)
	return keys, nil
}

// writeIndex persists the key list, deleting the index entry when it is empty.
func (k *KeyringStore) writeIndex(keys []string) error {
	if len(keys) == 0 {
		if err := keyring.Delete(k.indexService, keyringIndexUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("keyring index: %w", err)
		}
		return nil
	}

	raw, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("encoding keyring index: %w", err)
	}
	if err := keyring.Set(k.indexService, keyringIndexUser, string(raw)); err != nil {
		return fmt.Errorf("keyring index: %w", err)
	}
	return nil
}
