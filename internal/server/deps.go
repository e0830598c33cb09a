package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"silk-catalog/internal/config"
	"silk-catalog/internal/database"
	"silk-catalog/internal/media"
	"silk-catalog/internal/repository"
	"silk-catalog/internal/service"
	"silk-catalog/internal/storage"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Storage backends accepted by STORAGE_BACKEND
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

var ErrUnknownBackend = errors.New("unknown storage backend")

// Dependencies holds everything built from configuration that commands and
// the HTTP server share
type Dependencies struct {
	Catalog service.CatalogService
	Media   storage.MediaStore
	Raw     *storage.RawImporter
	DB      *sql.DB
	Redis   *redis.Client
	logger  *zap.Logger
}

// Build opens the configured document backend and media zones
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{logger: logger}

	store, err := deps.openStore(ctx, cfg)
	if err != nil {
		deps.Close()
		return nil, err
	}

	policy, err := media.NewPolicy(cfg.Media.CanvasSize, cfg.Media.Fit, cfg.Media.Format, cfg.Media.Quality)
	if err != nil {
		deps.Close()
		return nil, err
	}

	deps.Media, err = storage.NewMediaStore(cfg.Media.Root, policy, logger)
	if err != nil {
		deps.Close()
		return nil, err
	}

	rawDir := cfg.Media.RawDir
	if !filepath.IsAbs(rawDir) {
		rawDir = filepath.Join(cfg.Media.Root, rawDir)
	}
	deps.Raw, err = storage.NewRawImporter(
		rawDir,
		cfg.Media.Root,
		media.CropPolicy(cfg.Media.HDSize, cfg.Media.HDQuality),
		media.CropPolicy(cfg.Media.ThumbSize, cfg.Media.ThumbQuality),
		logger,
	)
	if err != nil {
		deps.Close()
		return nil, err
	}

	deps.Catalog = service.NewCatalogService(repository.NewRepositories(store), deps.Media, service.Options{
		IDPrefix: cfg.Catalog.IDPrefix,
		IDFloor:  cfg.Catalog.IDFloor,
		Logger:   logger,
	})

	return deps, nil
}

func (d *Dependencies) openStore(ctx context.Context, cfg *config.Config) (repository.DocumentStore, error) {
	switch cfg.Storage.Backend {
	case BackendFile, "":
		return repository.NewFileStore(cfg.Storage.DataDir)

	case BackendMemory:
		d.logger.Warn("Using in-memory storage, catalog changes will not survive a restart")
		return repository.NewMemoryStore(), nil

	case BackendRedis:
		client, err := d.connectRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return repository.NewRedisStore(client, cfg.Storage.RedisKeyPrefix), nil

	case BackendPostgres:
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		d.DB = db
		if err := database.RunMigrations(db, d.logger); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return repository.NewPostgresStore(db), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Storage.Backend)
}

// connectRedis opens the shared client once. It backs the redis document
// store and the rate limiter.
func (d *Dependencies) connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if d.Redis != nil {
		return d.Redis, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Addr(), err)
	}

	d.Redis = client
	return client, nil
}

// Close releases database and redis connections
func (d *Dependencies) Close() error {
	var errs []error
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
		d.DB = nil
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
		d.Redis = nil
	}
	return errors.Join(errs...)
}
