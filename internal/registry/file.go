package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the registry as a JSON array of location strings.
// Writes go to a temporary file that is renamed over the document, and
// load-modify-save cycles hold an advisory lock on <path>.lock.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store for the document at path, creating its
// directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating registry directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the registry document path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) lockPath() string {
	return s.path + ".lock"
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	snap, missing, err := s.read()
	if err != nil || !missing {
		return snap, err
	}

	// Initialise the missing document under the lock; another writer may
	// have created it in the meantime.
	var out Snapshot
	err = s.withLock(func() error {
		current, stillMissing, err := s.read()
		if err != nil {
			return err
		}
		out = current
		if !stillMissing {
			return nil
		}
		return s.write(nil)
	})
	return out, err
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.withLock(func() error {
		return s.write(records)
	})
}

// Append implements Store.
func (s *FileStore) Append(ctx context.Context, record Record) ([]Record, error) {
	return s.Update(ctx, AppendRecord(record))
}

// Update implements Store.
func (s *FileStore) Update(ctx context.Context, fn UpdateFunc) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var updated []Record
	err := s.withLock(func() error {
		current, _, err := s.read()
		if err != nil {
			return err
		}
		records, err := fn(current)
		if err != nil {
			return err
		}
		if err := s.write(records); err != nil {
			return err
		}
		updated = records
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// withLock serialises fn against other goroutines and other processes.
func (s *FileStore) withLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := lockFile(s.lockPath())
	if err != nil {
		return fmt.Errorf("locking registry: %w", err)
	}
	defer unlock()

	return fn()
}

// read parses the document. missing is true when it does not exist.
func (s *FileStore) read() (snap Snapshot, missing bool, err error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{Records: []Record{}}, true, nil
		}
		return Snapshot{}, false, fmt.Errorf("reading registry: %w", err)
	}

	var locs []string
	if err := json.Unmarshal(data, &locs); err != nil {
		return Snapshot{Records: []Record{}, Recovered: true}, false, nil
	}
	return Snapshot{Records: FromLocations(locs)}, false, nil
}

// write replaces the document atomically.
func (s *FileStore) write(records []Record) error {
	data, err := json.Marshal(Locations(records))
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp registry file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing registry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing registry: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing registry: %w", err)
	}
	return nil
}
