package providers

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/florianilch/decentstore/internal/provider"
)

// FileSystemOptions are the activation options of the FileSystem provider.
type FileSystemOptions struct {
	Root string `json:"root" validate:"required"`
}

// FileSystemProvider keeps synced data in a local directory. Access to the
// directory is the only authorization it needs.
type FileSystemProvider struct {
	root  string
	ready atomic.Bool
}

// Compile-time checks to ensure FileSystemProvider implements the provider contract
var (
	_ provider.Provider   = (*FileSystemProvider)(nil)
	_ provider.AuthStatus = (*FileSystemProvider)(nil)
)

func newFileSystemProvider(_ provider.Host, opts provider.Options) (provider.Provider, error) {
	var o FileSystemOptions
	if err := provider.DecodeOptions(FileSystemName, opts, &o); err != nil {
		return nil, err
	}
	return &FileSystemProvider{root: o.Root}, nil
}

// Authenticate creates the root directory with 0700 permissions.
func (f *FileSystemProvider) Authenticate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(f.root, 0700); err != nil {
		return fmt.Errorf("%s: %w", FileSystemName, err)
	}
	f.ready.Store(true)
	return nil
}

// HandleAuthCallback marks the provider ready if the root directory exists.
func (f *FileSystemProvider) HandleAuthCallback(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(f.root)
	if err != nil || !info.IsDir() {
		f.ready.Store(false)
		return nil
	}
	f.ready.Store(true)
	return nil
}

// Authenticated reports whether the root directory is available.
func (f *FileSystemProvider) Authenticated() bool {
	return f.ready.Load()
}

// Root returns the directory the provider writes to.
func (f *FileSystemProvider) Root() string {
	return f.root
}
