package blobstore

import (
	"context"
	"fmt"
	"os"

	"github.com/standardbeagle/xref/internal/config"
)

// ErrNotFound is returned when a blob does not exist.
// Implementations return an error that satisfies errors.Is(err, ErrNotFound).
var ErrNotFound = os.ErrNotExist

// Store is a flat namespace of immutable blobs
type Store interface {
	// Put writes a blob atomically, replacing any previous content
	Put(ctx context.Context, name string, data []byte) error
	// Get reads a whole blob
	Get(ctx context.Context, name string) ([]byte, error)
	// List returns the sorted names starting with prefix
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes a blob; deleting a missing blob is not an error
	Delete(ctx context.Context, name string) error
}

// Open creates the store selected by cfg.Backend
func Open(ctx context.Context, cfg config.Store) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg.Path)
	case "minio":
		return NewMinioStoreFromConfig(cfg)
	case "s3":
		return NewS3StoreFromConfig(ctx, cfg)
	case "memory":
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown blob store backend %q", cfg.Backend)
}
