package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/jsonstore/internal/config"
	"github.com/kailas-cloud/jsonstore/internal/db"
	dbBolt "github.com/kailas-cloud/jsonstore/internal/db/bolt"
	dbJSONFile "github.com/kailas-cloud/jsonstore/internal/db/jsonfile"
	dbMemory "github.com/kailas-cloud/jsonstore/internal/db/memory"
	dbRedis "github.com/kailas-cloud/jsonstore/internal/db/redis"
	dbSQLite "github.com/kailas-cloud/jsonstore/internal/db/sqlite"
	"github.com/kailas-cloud/jsonstore/internal/metrics"
	"github.com/kailas-cloud/jsonstore/internal/repository/index"
	chiTransport "github.com/kailas-cloud/jsonstore/internal/transport/chi"
	entryuc "github.com/kailas-cloud/jsonstore/internal/usecase/entry"
	healthuc "github.com/kailas-cloud/jsonstore/internal/usecase/health"
)

// app is the composition root: storage, index and services built from config.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	entries *entryuc.Service
	health  *healthuc.Service
	closers []func() error
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	metrics.RegisterStoreMetrics()

	if err := ensureDir(cfg.Index.Path); err != nil {
		return nil, err
	}
	idxDB, err := dbSQLite.Open(ctx, cfg.Index.Path, dbSQLite.Options{PoolSize: cfg.Index.PoolSize})
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	a.closers = append(a.closers, idxDB.Close)
	idx := index.New(idxDB.Pool(), index.WithWorkers(cfg.Index.ReindexWorkers))

	store, err := a.openStore(ctx, idxDB)
	if err != nil {
		return nil, err
	}

	ids, err := entryuc.NewIDGenerator(cfg.IDs.Strategy, idx.MaxNumericID)
	if err != nil {
		return nil, err
	}
	a.entries = entryuc.New(store, idx, ids, logger)
	if docs, ok := store.(*dbSQLite.Documents); ok && docs.DB() == idxDB {
		// Documents and index share one database, writes become one transaction.
		a.entries.WithTransactor(idxDB)
	}

	components := []healthuc.Component{{Name: "index", Pinger: idx}}
	if p, ok := store.(db.Pinger); ok {
		components = append(components, healthuc.Component{Name: "store", Pinger: p})
	}
	a.health = healthuc.New(components...)

	logger.Info("Application ready",
		zap.String("backend", cfg.Storage.Backend),
		zap.String("ids", cfg.IDs.Strategy),
		zap.Int("index_pool", cfg.Index.PoolSize),
	)
	return a, nil
}

// openStore opens the configured document backend and registers its closer.
func (a *app) openStore(ctx context.Context, idxDB *dbSQLite.DB) (db.DocumentStore, error) {
	cfg := a.cfg.Storage
	var (
		store db.DocumentStore
		err   error
	)
	switch cfg.Backend {
	case config.BackendMemory:
		store = dbMemory.New()
	case config.BackendSQLite:
		store = dbSQLite.NewDocuments(idxDB)
	case config.BackendJSONFile:
		if err = ensureDir(cfg.Path); err != nil {
			return nil, err
		}
		store, err = dbJSONFile.New(cfg.Path)
	case config.BackendBolt:
		if err = ensureDir(cfg.Path); err != nil {
			return nil, err
		}
		store, err = dbBolt.Open(cfg.Path, dbBolt.Options{})
	case config.BackendRedis:
		var rs *dbRedis.Store
		rs, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Redis.Addrs,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.KeyPrefix,
		})
		if err == nil {
			a.closers = append(a.closers, rs.Close)
			err = rs.WaitForReady(ctx, time.Duration(cfg.Redis.ReadinessTimeout)*time.Second)
			if err == nil {
				a.logger.Info("Connected to redis", zap.Strings("addrs", cfg.Redis.Addrs))
				return rs, nil
			}
		}
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	a.closers = append(a.closers, store.Close)
	return store, nil
}

// router assembles the HTTP handler with the middleware chain.
func (a *app) router() http.Handler {
	server := chiTransport.NewServer(a.entries, a.health, a.logger).
		WithPagination(a.cfg.Search.DefaultPageSize, a.cfg.Search.MaxPageSize).
		WithMaxBodyBytes(a.cfg.HTTP.MaxBodyBytes)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(a.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(a.logger))
	r.Use(chiTransport.BearerAuthMiddleware(a.cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)
	return r
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Error("Error closing resources", zap.Error(err))
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}
