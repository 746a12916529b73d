package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dropshare/service/internal/cache"
	"github.com/dropshare/service/internal/config"
	"github.com/dropshare/service/internal/logging"
	"github.com/dropshare/service/internal/storage"
)

// newBackend builds the storage variant selected by cfg. The returned func
// releases connections held by the backend.
func newBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (storage.Backend, func(), error) {
	limits := storage.Limits{
		MaxUploadSize:      cfg.MaxUploadSize,
		MultipartThreshold: cfg.MultipartThreshold,
		PartSize:           cfg.PartSize,
	}
	noop := func() {}

	switch cfg.StorageKind {
	case config.StorageLocal:
		local, err := storage.NewLocal(cfg.UploadDir, logging.Component(logger, "local"))
		if err != nil {
			return nil, noop, err
		}
		return storage.NewLocalBackend(local, limits), noop, nil

	case config.StorageObject:
		api, err := storage.NewMinioAPI(cfg.StorageEndpoint, cfg.StorageAccessKey, cfg.StorageSecretKey, cfg.StorageUseSSL)
		if err != nil {
			return nil, noop, err
		}
		objects := storage.NewObjectStore(api, cfg.StorageBucket, logging.Component(logger, "object"))
		if err := objects.EnsureBucket(ctx); err != nil {
			return nil, noop, err
		}
		backend := storage.NewObjectBackend(objects, limits)
		if !cfg.CacheEnabled {
			return backend, noop, nil
		}

		cacheLogger := logging.Component(logger, "cache")
		redis := cache.New(cache.Options{Host: cfg.CacheHost, Port: cfg.CachePort, TTL: cfg.CacheTTL}, cacheLogger)
		if err := redis.Ping(ctx); err != nil {
			cacheLogger.Warn().Err(err).Msg("redis unreachable at startup, continuing without cache hits")
		}
		closeCache := func() {
			if err := redis.Close(); err != nil {
				cacheLogger.Warn().Err(err).Msg("close redis")
			}
		}
		return storage.NewCachedObjectBackend(backend, redis, cacheLogger), closeCache, nil
	}
	return nil, noop, fmt.Errorf("unknown storage kind %q", cfg.StorageKind)
}
