package registry

import "context"

// UpdateFunc receives the current registry and returns its replacement.
// Returning an error aborts the update and leaves storage untouched.
type UpdateFunc func(current Snapshot) ([]Record, error)

// Store is durable storage for the registry. Every implementation rewrites
// the whole collection on save.
type Store interface {
	// Load reads all records. A missing document is initialised empty. A
	// malformed document yields an empty Snapshot with Recovered set and a
	// nil error.
	Load(ctx context.Context) (Snapshot, error)
	// Save replaces the stored collection with records.
	Save(ctx context.Context, records []Record) error
	// Append adds record at the end and returns the updated collection.
	Append(ctx context.Context, record Record) ([]Record, error)
	// Update runs a load-modify-save cycle while holding the store's lock.
	Update(ctx context.Context, fn UpdateFunc) ([]Record, error)
}

// AppendRecord is the UpdateFunc behind every Append implementation.
func AppendRecord(record Record) UpdateFunc {
	return func(current Snapshot) ([]Record, error) {
		return append(current.Records, record), nil
	}
}
