// Package storage persists registered face images and reads them back by
// location for the verifier.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrNotFound is returned when no image exists at a location.
// The default maps to os.ErrNotExist.
var ErrNotFound = os.ErrNotExist

// Reader reads image bytes for a location.
type Reader interface {
	Get(ctx context.Context, location string) ([]byte, error)
}

// Store writes images under a name and returns an opaque location that a
// Reader can resolve later.
type Store interface {
	Reader
	Put(ctx context.Context, name string, data []byte) (string, error)
	Delete(ctx context.Context, location string) error
}

// Resolver reads any location the service produces: objects from the remote
// store and plain files (local images and probe images) from disk.
type Resolver struct {
	remote *MinIOStore
}

// NewResolver creates a resolver. remote may be nil when only local files are used.
func NewResolver(remote *MinIOStore) *Resolver {
	return &Resolver{remote: remote}
}

// Get implements Reader.
func (r *Resolver) Get(ctx context.Context, location string) ([]byte, error) {
	if IsObjectLocation(location) {
		if r.remote == nil {
			return nil, fmt.Errorf("no object store configured for %s", location)
		}
		return r.remote.Get(ctx, location)
	}
	return readFile(location)
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("image %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("reading image %s: %w", path, err)
	}
	return data, nil
}
