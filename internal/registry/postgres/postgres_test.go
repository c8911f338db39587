//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-verify/internal/config"
	"github.com/kozaktomas/face-verify/internal/registry"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
)

func setupTestContainer(t *testing.T) (*Store, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 10,
		MaxIdleConns: 2,
	}

	store, err := Open(ctx, cfg, zaptest.NewLogger(t))
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to open store: %v", err)
	}

	cleanup := func() {
		store.Close()
		container.Terminate(ctx)
	}
	return store, cleanup
}

func TestStore(t *testing.T) {
	store, cleanup := setupTestContainer(t)
	if store == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	t.Run("MigrateIsIdempotent", func(t *testing.T) {
		applied, err := store.pool.Migrate(ctx, zaptest.NewLogger(t))
		if err != nil {
			t.Fatalf("Migrate failed: %v", err)
		}
		if len(applied) != 0 {
			t.Errorf("expected no pending migrations after Open, got %v", applied)
		}
	})

	t.Run("EmptyOnFirstLoad", func(t *testing.T) {
		snap, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if !snap.Empty() || snap.Recovered {
			t.Errorf("expected empty, unrecovered snapshot, got %+v", snap)
		}
	})

	t.Run("AppendKeepsOrder", func(t *testing.T) {
		for i := 1; i <= 3; i++ {
			records, err := store.Append(ctx, registry.Record{Location: "/faces/" + registry.FileName(i)})
			if err != nil {
				t.Fatalf("Append failed: %v", err)
			}
			if len(records) != i {
				t.Errorf("expected %d records, got %d", i, len(records))
			}
		}

		snap, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		for i, e := range snap.Entries() {
			if e.Location != "/faces/"+registry.FileName(i+1) {
				t.Errorf("entry %d: expected %s, got %s", i, registry.FileName(i+1), e.Location)
			}
		}
	})

	t.Run("SaveReplacesAll", func(t *testing.T) {
		want := registry.FromLocations([]string{"/faces/B.jpg", "/faces/A.jpg"})
		if err := store.Save(ctx, want); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		snap, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if len(snap.Records) != 2 || snap.Records[0] != want[0] || snap.Records[1] != want[1] {
			t.Errorf("expected %v, got %v", want, snap.Records)
		}
	})

	t.Run("ConcurrentAppends", func(t *testing.T) {
		if err := store.Save(ctx, nil); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		var wg sync.WaitGroup
		for i := range 10 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := store.Append(ctx, registry.Record{Location: fmt.Sprintf("/faces/%d.jpg", i)}); err != nil {
					t.Errorf("Append failed: %v", err)
				}
			}(i)
		}
		wg.Wait()

		snap, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if snap.Len() != 10 {
			t.Errorf("expected 10 records, got %d", snap.Len())
		}
	})
}
