package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps all items in a single JSON document on disk.
// Writes use temp file + rename for crash safety.
type FileStore struct {
	filePath string
	mu       sync.Mutex
}

// Compile-time check to ensure FileStore implements Store
var (
	_ Store  = (*FileStore)(nil)
	_ Lister = (*FileStore)(nil)
)

// NewFileStore creates a FileStore for the given path, creating parent directories
// with 0700 permissions if they don't exist. The file itself is created on first write.
func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	return &FileStore{
		filePath: filePath,
	}, nil
}

func (f *FileStore) SetItem(ctx context.Context, key, value string) error {
	return f.update(ctx, func(items map[string]string) bool {
		items[key] = value
		return true
	})
}

func (f *FileStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	items, err := f.snapshot(ctx)
	if err != nil {
		return "", false, err
	}
	value, ok := items[key]
	return value, ok, nil
}

func (f *FileStore) RemoveItem(ctx context.Context, key string) error {
	return f.update(ctx, func(items map[string]string) bool {
		if _, ok := items[key]; !ok {
			return false
		}
		delete(items, key)
		return true
	})
}

func (f *FileStore) Clear(ctx context.Context) error {
	return f.update(ctx, func(items map[string]string) bool {
		if len(items) == 0 {
			return false
		}
		clear(items)
		return true
	})
}

func (f *FileStore) Len(ctx context.Context) (int, error) {
	items, err := f.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// Key reads and sorts the whole document on every call. Use Keys to
// enumerate the store.
func (f *FileStore) Key(ctx context.Context, index int) (string, bool, error) {
	items, err := f.snapshot(ctx)
	if err != nil {
		return "", false, err
	}
	return keyAt(items, index)
}

func (f *FileStore) Keys(ctx context.Context) ([]string, error) {
	items, err := f.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return sortedKeys(items), nil
}

// snapshot reads the current document under the store lock.
func (f *FileStore) snapshot(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

// update applies fn to the current document and writes it back if fn reports a change.
func (f *FileStore) update(ctx context.Context, fn func(items map[string]string) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	items, err := f.read()
	if err != nil {
		return err
	}
	if !fn(items) {
		return nil
	}
	return f.write(ctx, items)
}

// read loads the document. A missing file is an empty store; a file readable
// by anyone but the owner is rejected.
func (f *FileStore) read() (map[string]string, error) {
	info, err := os.Stat(f.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, err
	}
	if info.Mode().Perm() != 0600 {
		return nil, fmt.Errorf("insecure permissions on %s: %04o (expected 0600)", f.filePath, info.Mode().Perm())
	}

	data, err := os.ReadFile(f.filePath)
	if err != nil {
		return nil, err
	}

	items := make(map[string]string)
	if len(data) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f.filePath, err)
	}
	return items, nil
}

// write atomically replaces the document and sets permissions to 0600.
func (f *FileStore) write(ctx context.Context, items map[string]string) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding store: %w", err)
	}

	// Create secure temp file in same directory for atomic rename
	dir := filepath.Dir(f.filePath)
	tempFile, err := os.CreateTemp(dir, "*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if _, err := tempFile.Write(data); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	if err := os.Rename(tempName, f.filePath); err != nil {
		return err
	}

	return os.Chmod(f.filePath, 0600)
}
