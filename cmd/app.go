package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-verify/internal/config"
	"github.com/kozaktomas/face-verify/internal/constants"
	"github.com/kozaktomas/face-verify/internal/faceauth"
	"github.com/kozaktomas/face-verify/internal/logger"
	"github.com/kozaktomas/face-verify/internal/metrics"
	"github.com/kozaktomas/face-verify/internal/registry"
	"github.com/kozaktomas/face-verify/internal/registry/postgres"
	"github.com/kozaktomas/face-verify/internal/storage"
	"github.com/kozaktomas/face-verify/internal/verifier"
)

// app holds everything a command needs, built from the environment.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	registry registry.Store
	service  *faceauth.Service
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*app, error) {
	log := logger.New(logger.Config{
		Env:         cfg.Log.Env,
		Level:       cfg.Log.Level,
		ServiceName: "face-verify",
	})
	a := &app{cfg: cfg, log: log}

	images, remote, err := openImageStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a.registry, err = a.openRegistry(ctx)
	if err != nil {
		return nil, err
	}

	v, err := verifier.New(cfg, storage.NewResolver(remote))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("configuring verifier: %w", err)
	}

	a.service = faceauth.NewService(a.registry, images, v, faceauth.Options{
		ProbeDir:     cfg.Storage.ProbeDir,
		MaxImageSize: constants.MaxImageSize,
		JPEGQuality:  constants.JPEGQuality,
		Logger:       log,
		Metrics:      metrics.New(reg),
	})

	log.Debug("application configured",
		zap.String("registry_backend", cfg.Storage.RegistryBackend),
		zap.String("image_store", cfg.Storage.ImageStore),
		zap.String("verifier", cfg.Verifier.Backend),
		zap.String("model", cfg.Verifier.Model),
	)
	return a, nil
}

func openImageStore(ctx context.Context, cfg *config.Config) (storage.Store, *storage.MinIOStore, error) {
	switch cfg.Storage.ImageStore {
	case config.BackendLocal:
		store, err := storage.NewLocalStore(cfg.Storage.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening image directory: %w", err)
		}
		return store, nil, nil
	case config.BackendMinIO:
		store, err := storage.NewMinIOStore(ctx, &cfg.MinIO)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to MinIO: %w", err)
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown image store %q", cfg.Storage.ImageStore)
	}
}

func (a *app) openRegistry(ctx context.Context) (registry.Store, error) {
	switch a.cfg.Storage.RegistryBackend {
	case config.BackendFile:
		store, err := registry.NewFileStore(a.cfg.Storage.RegistryPath())
		if err != nil {
			return nil, fmt.Errorf("opening registry: %w", err)
		}
		return store, nil
	case config.BackendPostgres:
		if a.cfg.Database.URL == "" {
			return nil, errors.New("DATABASE_URL environment variable is required for the postgres registry")
		}
		store, err := postgres.Open(ctx, &a.cfg.Database, a.log.Named("postgres"))
		if err != nil {
			return nil, fmt.Errorf("opening registry: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown registry backend %q", a.cfg.Storage.RegistryBackend)
	}
}

// Close releases database connections and flushes the logger.
func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn("close failed", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
