package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore implements Store on a local directory. Locations are absolute paths.
type LocalStore struct {
	root string
}

// NewLocalStore creates a LocalStore rooted at dir, creating it if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving image directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating image directory: %w", err)
	}
	return &LocalStore{root: abs}, nil
}

// Root returns the absolute directory images are written to.
func (s *LocalStore) Root() string {
	return s.root
}

// Put writes data to root/name, replacing any existing file.
func (s *LocalStore) Put(_ context.Context, name string, data []byte) (string, error) {
	path := filepath.Join(s.root, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // images are not secret
		return "", fmt.Errorf("writing image %s: %w", path, err)
	}
	return path, nil
}

// Get reads the image at location.
func (s *LocalStore) Get(_ context.Context, location string) ([]byte, error) {
	return readFile(location)
}

// Delete removes the image at location. Missing files are not an error.
func (s *LocalStore) Delete(_ context.Context, location string) error {
	if err := os.Remove(location); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing image %s: %w", location, err)
	}
	return nil
}
