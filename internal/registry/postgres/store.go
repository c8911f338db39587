package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/face-verify/internal/registry"
)

// Store implements registry.Store on the registered_faces table.
// Every write replaces all rows inside one transaction that holds an
// exclusive table lock, so concurrent sessions cannot lose updates.
type Store struct {
	pool *Pool
}

var _ registry.Store = (*Store)(nil)

// NewStore creates a store on a migrated pool.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Load implements registry.Store.
func (s *Store) Load(ctx context.Context) (registry.Snapshot, error) {
	records, err := selectRecords(ctx, s.pool.db)
	if err != nil {
		return registry.Snapshot{}, err
	}
	return registry.Snapshot{Records: records}, nil
}

// Save implements registry.Store.
func (s *Store) Save(ctx context.Context, records []registry.Record) error {
	_, err := s.Update(ctx, func(registry.Snapshot) ([]registry.Record, error) {
		return records, nil
	})
	return err
}

// Append implements registry.Store.
func (s *Store) Append(ctx context.Context, record registry.Record) ([]registry.Record, error) {
	return s.Update(ctx, registry.AppendRecord(record))
}

// Update implements registry.Store.
func (s *Store) Update(ctx context.Context, fn registry.UpdateFunc) ([]registry.Record, error) {
	tx, err := s.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "LOCK TABLE registered_faces IN EXCLUSIVE MODE"); err != nil {
		return nil, fmt.Errorf("locking registered_faces: %w", err)
	}

	current, err := selectRecords(ctx, tx)
	if err != nil {
		return nil, err
	}

	records, err := fn(registry.Snapshot{Records: current})
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM registered_faces"); err != nil {
		return nil, fmt.Errorf("clearing registered_faces: %w", err)
	}
	for i, r := range records {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO registered_faces (ordinal, location) VALUES ($1, $2)",
			i+1, r.Location,
		); err != nil {
			return nil, fmt.Errorf("inserting registered face %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing registry: %w", err)
	}
	return records, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func selectRecords(ctx context.Context, q querier) ([]registry.Record, error) {
	rows, err := q.QueryContext(ctx, "SELECT location FROM registered_faces ORDER BY ordinal")
	if err != nil {
		return nil, fmt.Errorf("query registered faces: %w", err)
	}
	defer rows.Close()

	records := []registry.Record{}
	for rows.Next() {
		var r registry.Record
		if err := rows.Scan(&r.Location); err != nil {
			return nil, fmt.Errorf("scan registered face: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registered faces: %w", err)
	}
	return records, nil
}
