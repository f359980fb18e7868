package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/jsonstore/internal/db"
	dbBolt "github.com/kailas-cloud/jsonstore/internal/db/bolt"
	dbJSONFile "github.com/kailas-cloud/jsonstore/internal/db/jsonfile"
	dbMemory "github.com/kailas-cloud/jsonstore/internal/db/memory"
	dbRedis "github.com/kailas-cloud/jsonstore/internal/db/redis"
	dbSQLite "github.com/kailas-cloud/jsonstore/internal/db/sqlite"
	domdoc "github.com/kailas-cloud/jsonstore/internal/domain/document"
	"github.com/kailas-cloud/jsonstore/internal/domain/search/operator"
	"github.com/kailas-cloud/jsonstore/internal/domain/search/query"
	"github.com/kailas-cloud/jsonstore/internal/repository/index"
	entryuc "github.com/kailas-cloud/jsonstore/internal/usecase/entry"
	healthuc "github.com/kailas-cloud/jsonstore/internal/usecase/health"
)

const defaultReadinessTimeout = 10 * time.Second

// Internal interfaces, replaced in tests.
type entryUseCase interface {
	Create(ctx context.Context, body map[string]any, id string, updated any) (domdoc.Entry, error)
	Get(ctx context.Context, id string) (domdoc.Entry, error)
	Update(ctx context.Context, id string, body map[string]any, updated any) (domdoc.Entry, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, key map[string]any, opts entryuc.SearchOptions) ([]domdoc.Entry, error)
	Count(ctx context.Context, key map[string]any, bare operator.Kind) (int, error)
	Reindex(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}

// Client is the jsonstore SDK entry point. It is safe for concurrent use.
type Client struct {
	entries entryUseCase
	health  healthUseCase
	obs     *observer
	closers []func() error
}

// Open opens the configured backend and index and returns a ready Client.
func Open(ctx context.Context, opts ...Option) (_ *Client, err error) {
	cfg := &clientConfig{backend: backendSQLite}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.indexPath == "" {
		cfg.indexPath = defaultIndexPath
	}
	if cfg.zapLogger == nil {
		cfg.zapLogger = zap.NewNop()
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}
	c := &Client{obs: obs}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	if err := ensureDir(cfg.indexPath); err != nil {
		return nil, err
	}
	idxDB, err := dbSQLite.Open(ctx, cfg.indexPath, dbSQLite.Options{PoolSize: cfg.poolSize})
	if err != nil {
		return nil, fmt.Errorf("jsonstore: open index: %w", err)
	}
	c.closers = append(c.closers, idxDB.Close)

	var idxOpts []index.Option
	if cfg.reindexWorkers > 0 {
		idxOpts = append(idxOpts, index.WithWorkers(cfg.reindexWorkers))
	}
	idx := index.New(idxDB.Pool(), idxOpts...)

	store, err := c.createStore(ctx, cfg, idxDB)
	if err != nil {
		return nil, err
	}

	var ids entryuc.IDGenerator = entryuc.NewSequenceGenerator(idx.MaxNumericID)
	if cfg.uuids {
		ids = entryuc.UUIDGenerator{}
	}
	svc := entryuc.New(store, idx, ids, cfg.zapLogger)
	if cfg.backend == backendSQLite {
		svc.WithTransactor(idxDB)
	}
	c.entries = svc

	components := []healthuc.Component{{Name: "index", Pinger: idx}}
	if p, ok := store.(db.Pinger); ok {
		components = append(components, healthuc.Component{Name: "store", Pinger: p})
	}
	c.health = healthuc.New(components...)
	return c, nil
}

func (c *Client) createStore(ctx context.Context, cfg *clientConfig, idxDB *dbSQLite.DB) (db.DocumentStore, error) {
	var (
		store db.DocumentStore
		err   error
	)
	switch cfg.backend {
	case backendSQLite:
		return dbSQLite.NewDocuments(idxDB), nil
	case backendMemory:
		return dbMemory.New(), nil
	case backendBolt, backendJSONFile:
		if cfg.path == "" {
			return nil, fmt.Errorf("jsonstore: %s backend requires a path", cfg.backend)
		}
		if err := ensureDir(cfg.path); err != nil {
			return nil, err
		}
		if cfg.backend == backendBolt {
			store, err = dbBolt.Open(cfg.path, dbBolt.Options{})
		} else {
			store, err = dbJSONFile.New(cfg.path)
		}
	case backendRedis:
		var rs *dbRedis.Store
		rs, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.redisAddrs,
			Password: cfg.redisPassword,
			Prefix:   cfg.redisPrefix,
		})
		if err != nil {
			break
		}
		c.closers = append(c.closers, rs.Close)
		if err := rs.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			return nil, fmt.Errorf("jsonstore: redis not ready: %w", err)
		}
		return rs, nil
	default:
		return nil, fmt.Errorf("jsonstore: unknown backend %q", cfg.backend)
	}
	if err != nil {
		return nil, fmt.Errorf("jsonstore: open %s store: %w", cfg.backend, err)
	}
	c.closers = append(c.closers, store.Close)
	return store, nil
}

// Close releases all resources.
func (c *Client) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Create stores body under a generated id.
func (c *Client) Create(ctx context.Context, body map[string]any) (Entry, error) {
	return c.Insert(ctx, Entry{Body: body})
}

// Insert stores e. An empty ID is generated and a zero Updated means now.
// An ID already in use returns ErrConflict.
func (c *Client) Insert(ctx context.Context, e Entry) (_ Entry, err error) {
	start := time.Now()
	defer func() { c.obs.observe("create", start, err) }()

	out, err := c.entries.Create(ctx, e.Body, e.ID, e.Updated)
	if err != nil {
		return Entry{}, fmt.Errorf("create: %w", err)
	}
	return fromInternal(&out), nil
}

// Get returns the entry stored under id or ErrNotFound.
func (c *Client) Get(ctx context.Context, id string) (_ Entry, err error) {
	start := time.Now()
	defer func() { c.obs.observe("get", start, err) }()

	out, err := c.entries.Get(ctx, id)
	if err != nil {
		return Entry{}, fmt.Errorf("get: %w", err)
	}
	return fromInternal(&out), nil
}

// Update replaces the body of an existing entry. A zero Updated means now.
func (c *Client) Update(ctx context.Context, e Entry) (_ Entry, err error) {
	start := time.Now()
	defer func() { c.obs.observe("update", start, err) }()

	out, err := c.entries.Update(ctx, e.ID, e.Body, e.Updated)
	if err != nil {
		return Entry{}, fmt.Errorf("update: %w", err)
	}
	return fromInternal(&out), nil
}

// Delete removes an entry or returns ErrNotFound.
func (c *Client) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("delete", start, err) }()

	if err = c.entries.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// Search returns entries matching key, most recently updated first.
// An empty key lists every entry.
func (c *Client) Search(ctx context.Context, key map[string]any, opts SearchOptions) (_ []Entry, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search", start, err) }()

	found, err := c.entries.Search(ctx, key, entryuc.SearchOptions{
		Offset: opts.Offset,
		Size:   opts.Size,
		Bare:   opts.bare(),
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	out := make([]Entry, len(found))
	for i := range found {
		out[i] = fromInternal(&found[i])
	}
	c.obs.resultSize("search", len(out))
	return out, nil
}

// Count returns how many entries match key.
func (c *Client) Count(ctx context.Context, key map[string]any, opts SearchOptions) (_ int, err error) {
	start := time.Now()
	defer func() { c.obs.observe("count", start, err) }()

	n, err := c.entries.Count(ctx, key, opts.bare())
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	c.obs.resultSize("count", n)
	return n, nil
}

// Reindex rebuilds the secondary index from the stored documents and returns
// the number of entries indexed.
func (c *Client) Reindex(ctx context.Context) (_ int, err error) {
	start := time.Now()
	defer func() { c.obs.observe("reindex", start, err) }()

	n, err := c.entries.Reindex(ctx)
	if err != nil {
		return 0, fmt.Errorf("reindex: %w", err)
	}
	return n, nil
}

// Ping checks the document store and the index.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.entries.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// ParseQuery decodes a JSON query key. Objects with a single "$op" member
// become operators, e.g. {"age": {"$gte": 18}, "name": {"$like": "al%"}}.
func ParseQuery(q string) (map[string]any, error) {
	var raw any
	if err := json.Unmarshal([]byte(q), &raw); err != nil {
		return nil, fmt.Errorf("parse query: %v: %w", err, ErrInvalidQuery)
	}
	key, err := query.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	return key, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("jsonstore: create %s: %w", dir, err)
	}
	return nil
}
