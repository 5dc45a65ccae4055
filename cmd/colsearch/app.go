package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/colsearch/internal/config"
	"github.com/kailas-cloud/colsearch/internal/db"
	dbRedis "github.com/kailas-cloud/colsearch/internal/db/redis"
	"github.com/kailas-cloud/colsearch/internal/metrics"
	"github.com/kailas-cloud/colsearch/internal/repository/metadata"
	"github.com/kailas-cloud/colsearch/internal/repository/searchcache"
	"github.com/kailas-cloud/colsearch/internal/transport/colbert"
	"github.com/kailas-cloud/colsearch/internal/usecase/backend"
	healthuc "github.com/kailas-cloud/colsearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/colsearch/internal/usecase/search"
)

// app is the composition root shared by serve and check.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	table   *metadata.Table
	manager *backend.Manager
	store   db.Store
	search  *searchuc.Service
	health  *healthuc.Service
}

// newApp loads metadata and wires the backend lifecycle without starting it.
// A metadata load failure is fatal.
func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	metrics.RegisterBackendMetrics()

	start := time.Now()
	table, err := metadata.Load(cfg.Index.MetadataPath)
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	logger.Info("Metadata loaded",
		zap.String("path", cfg.Index.MetadataPath),
		zap.Int("documents", table.Len()),
		zap.Duration("duration", time.Since(start)),
	)

	factory := colbert.NewFactory(colbert.Config{
		URL:            cfg.Engine.URL,
		RequestTimeout: time.Duration(cfg.Engine.RequestTimeoutSec) * time.Second,
		ReadyTimeout:   time.Duration(cfg.Engine.ReadyTimeoutSec) * time.Second,
		Logger:         logger,
	})
	manager := backend.NewManager(factory, cfg.Index.Root, cfg.Index.Name, logger)

	a := &app{cfg: cfg, logger: logger, table: table, manager: manager}

	if cfg.Cache.Enabled {
		a.store = openCache(ctx, &cfg.Cache, logger)
	}
	if a.store != nil {
		manager.WithDecorators(searchcache.Decorator(
			a.store,
			cfg.Index.Name,
			time.Duration(cfg.Cache.TTLSec)*time.Second,
			metrics.SearchCacheTotal,
			logger,
		))
	}

	a.search = searchuc.New(manager, table, cfg.Index.Name)
	if cfg.Backend.InitMode == config.InitLazy {
		a.search.WithLazyInit(manager)
	}

	// Pass nil interface (not typed nil pointer!) when the cache is off.
	var cachePinger healthuc.CachePinger
	if a.store != nil {
		cachePinger = a.store
	}
	a.health = healthuc.New(manager, table, cachePinger)

	return a, nil
}

// openCache connects to the result cache. The cache is optional: when it cannot be
// reached the service runs without it.
func openCache(ctx context.Context, cfg *config.CacheConfig, logger *zap.Logger) db.Store {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Addrs,
		Password: cfg.Password,
	})
	if err != nil {
		logger.Warn("Result cache disabled", zap.String("driver", cfg.Driver), zap.Error(err))
		return nil
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
		logger.Warn("Result cache disabled", zap.String("driver", cfg.Driver), zap.Error(err))
		store.Close()
		return nil
	}
	logger.Info("Connected to result cache",
		zap.String("driver", cfg.Driver),
		zap.Strings("addrs", cfg.Addrs),
	)
	return store
}

func (a *app) Close() {
	if err := a.manager.Close(); err != nil {
		a.logger.Warn("Failed to close backend", zap.Error(err))
	}
	if a.store != nil {
		a.store.Close()
	}
}
