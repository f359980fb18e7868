// Package entry implements the entry manager: validated CRUD over the
// document store with the secondary index kept in step, plus search.
package entry

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/jsonstore/internal/db"
	"github.com/kailas-cloud/jsonstore/internal/domain"
	domdoc "github.com/kailas-cloud/jsonstore/internal/domain/document"
	"github.com/kailas-cloud/jsonstore/internal/domain/search/operator"
	"github.com/kailas-cloud/jsonstore/internal/domain/search/query"
	"github.com/kailas-cloud/jsonstore/internal/metrics"
	"github.com/kailas-cloud/jsonstore/internal/repository/index"
)

const defaultIDAttempts = 8

// SearchOptions select a page of results and how bare scalars in the key
// are interpreted. A zero Size returns every match.
type SearchOptions struct {
	Offset int
	Size   int
	// Bare is the operator wrapped around bare scalars; Invalid means Equal.
	Bare operator.Kind
}

// Service coordinates the document store and the secondary index.
type Service struct {
	store  Store
	index  Index
	ids    IDGenerator
	tx     Transactor
	logger *zap.Logger
	now    func() time.Time

	locks      stripedLocks
	reindexMu  sync.RWMutex
	idAttempts int
}

// New creates an entry service. ids may be nil when every entry is created
// with a caller-supplied id.
func New(store Store, idx Index, ids IDGenerator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		index:      idx,
		ids:        ids,
		logger:     logger,
		now:        time.Now,
		idAttempts: defaultIDAttempts,
	}
}

// WithTransactor makes writes atomic across store and index. Use it only when
// both live in the same database.
func (s *Service) WithTransactor(t Transactor) *Service {
	s.tx = t
	return s
}

// WithClock overrides the time source used for default timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Create stores a new entry. An empty id is generated; a taken caller id is
// ErrConflict. updated may be nil, a time.Time or a canonical timestamp string.
func (s *Service) Create(ctx context.Context, body map[string]any, id string, updated any) (e domdoc.Entry, err error) {
	defer func(start time.Time) { metrics.ObserveOperation("create", start, err) }(time.Now())

	ts, err := domdoc.ParseUpdated(updated, s.now())
	if err != nil {
		return domdoc.Entry{}, err
	}
	if id != "" {
		e, err = domdoc.New(id, body, ts)
		if err != nil {
			return domdoc.Entry{}, err
		}
		if err := s.insert(ctx, &e); err != nil {
			if errors.Is(err, db.ErrKeyExists) {
				return domdoc.Entry{}, fmt.Errorf("entry %q already exists: %w", id, domain.ErrConflict)
			}
			return domdoc.Entry{}, err
		}
		return e, nil
	}

	if s.ids == nil {
		return domdoc.Entry{}, fmt.Errorf("entry id is required: %w", domain.ErrValidation)
	}
	proto, err := domdoc.New("", body, ts)
	if err != nil {
		return domdoc.Entry{}, err
	}
	advanced := false
	for range s.idAttempts {
		next, err := s.ids.Next(ctx)
		if err != nil {
			return domdoc.Entry{}, fmt.Errorf("generate id: %w", err)
		}
		e = proto.WithID(next)
		err = s.insert(ctx, &e)
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, db.ErrKeyExists) {
			return domdoc.Entry{}, err
		}
		s.logger.Debug("Generated id collided", zap.String("id", next))
		if adv, ok := s.ids.(idAdvancer); ok && !advanced {
			if err := s.advancePastStore(ctx, adv); err != nil {
				return domdoc.Entry{}, err
			}
			advanced = true
		}
	}
	return domdoc.Entry{}, fmt.Errorf("no free id after %d attempts: %w", s.idAttempts, domain.ErrConflict)
}

// advancePastStore moves a sequence behind the store, e.g. after the index
// was wiped, past the highest numeric id actually stored.
func (s *Service) advancePastStore(ctx context.Context, adv idAdvancer) error {
	var top int64
	for rec, err := range s.store.Iterate(ctx) {
		if err != nil {
			return fmt.Errorf("scan stored ids: %w", err)
		}
		if n, ok := numericID(rec.ID); ok && n > top {
			top = n
		}
	}
	adv.Advance(top)
	s.logger.Info("Id sequence advanced past stored entries", zap.Int64("top", top))
	return nil
}

func (s *Service) insert(ctx context.Context, e *domdoc.Entry) error {
	data, err := domdoc.Marshal(e)
	if err != nil {
		return err
	}

	s.reindexMu.RLock()
	defer s.reindexMu.RUnlock()
	defer s.locks.lock(e.ID())()

	err = s.atomic(ctx, func(ctx context.Context) error {
		if err := s.store.Insert(ctx, e.ID(), data); err != nil {
			if errors.Is(err, db.ErrKeyExists) {
				return err
			}
			return fmt.Errorf("store entry: %w", err)
		}
		if err := s.index.Insert(ctx, e); err != nil {
			s.indexFailed(e.ID(), err)
			return fmt.Errorf("index entry: %w", err)
		}
		return nil
	})
	if err == nil {
		s.logger.Debug("Entry created", zap.String("id", e.ID()))
	}
	return err
}

// Get returns the entry stored under id.
func (s *Service) Get(ctx context.Context, id string) (e domdoc.Entry, err error) {
	defer func(start time.Time) { metrics.ObserveOperation("get", start, err) }(time.Now())

	data, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domdoc.Entry{}, fmt.Errorf("entry %q: %w", id, domain.ErrNotFound)
		}
		return domdoc.Entry{}, fmt.Errorf("get entry: %w", err)
	}
	return domdoc.Unmarshal(id, data)
}

// Update replaces the body of an existing entry. A nil updated means now.
func (s *Service) Update(ctx context.Context, id string, body map[string]any, updated any) (e domdoc.Entry, err error) {
	defer func(start time.Time) { metrics.ObserveOperation("update", start, err) }(time.Now())

	ts, err := domdoc.ParseUpdated(updated, s.now())
	if err != nil {
		return domdoc.Entry{}, err
	}
	e, err = domdoc.New(id, body, ts)
	if err != nil {
		return domdoc.Entry{}, err
	}
	data, err := domdoc.Marshal(&e)
	if err != nil {
		return domdoc.Entry{}, err
	}

	s.reindexMu.RLock()
	defer s.reindexMu.RUnlock()
	defer s.locks.lock(id)()

	err = s.atomic(ctx, func(ctx context.Context) error {
		if _, err := s.store.Get(ctx, id); err != nil {
			if errors.Is(err, db.ErrKeyNotFound) {
				return fmt.Errorf("entry %q: %w", id, domain.ErrNotFound)
			}
			return fmt.Errorf("get entry: %w", err)
		}
		if err := s.store.Put(ctx, id, data); err != nil {
			return fmt.Errorf("store entry: %w", err)
		}
		if err := s.index.Insert(ctx, &e); err != nil {
			s.indexFailed(id, err)
			return fmt.Errorf("index entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return domdoc.Entry{}, err
	}
	return e, nil
}

// Delete removes an entry and its index rows.
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { metrics.ObserveOperation("delete", start, err) }(time.Now())

	s.reindexMu.RLock()
	defer s.reindexMu.RUnlock()
	defer s.locks.lock(id)()

	err = s.atomic(ctx, func(ctx context.Context) error {
		if err := s.store.Delete(ctx, id); err != nil {
			if errors.Is(err, db.ErrKeyNotFound) {
				return fmt.Errorf("entry %q: %w", id, domain.ErrNotFound)
			}
			return fmt.Errorf("delete entry: %w", err)
		}
		if err := s.index.Remove(ctx, id); err != nil {
			s.indexFailed(id, err)
			return fmt.Errorf("unindex entry: %w", err)
		}
		return nil
	})
	if err == nil {
		s.logger.Debug("Entry deleted", zap.String("id", id))
	}
	return err
}

// Search returns entries matching key, most recently updated first.
// Indexed ids missing from the store are skipped.
func (s *Service) Search(ctx context.Context, key map[string]any, opts SearchOptions) (out []domdoc.Entry, err error) {
	defer func(start time.Time) { metrics.ObserveOperation("search", start, err) }(time.Now())

	if opts.Offset < 0 || opts.Size < 0 {
		return nil, fmt.Errorf("offset and size must not be negative: %w", domain.ErrInvalidQuery)
	}
	plan, err := query.CompileAs(key, opts.Bare)
	if err != nil {
		return nil, err
	}
	ids, err := s.index.Query(ctx, plan, index.Page{Offset: opts.Offset, Size: opts.Size})
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	out = make([]domdoc.Entry, 0, len(ids))
	for _, id := range ids {
		data, err := s.store.Get(ctx, id)
		if errors.Is(err, db.ErrKeyNotFound) {
			metrics.SearchSkippedTotal.Inc()
			s.logger.Debug("Skipping indexed id without entry", zap.String("id", id))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get entry %q: %w", id, err)
		}
		e, err := domdoc.Unmarshal(id, data)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Count returns how many indexed entries match key.
func (s *Service) Count(ctx context.Context, key map[string]any, bare operator.Kind) (n int, err error) {
	defer func(start time.Time) { metrics.ObserveOperation("count", start, err) }(time.Now())

	plan, err := query.CompileAs(key, bare)
	if err != nil {
		return 0, err
	}
	n, err = s.index.Count(ctx, plan)
	if err != nil {
		return 0, fmt.Errorf("count index: %w", err)
	}
	return n, nil
}

// Reindex rebuilds the secondary index from the document store and returns
// the number of entries indexed. Writes wait until it finishes.
func (s *Service) Reindex(ctx context.Context) (n int, err error) {
	defer func(start time.Time) { metrics.ObserveOperation("reindex", start, err) }(time.Now())

	s.reindexMu.Lock()
	defer s.reindexMu.Unlock()

	start := time.Now()
	n, err = s.index.Rebuild(ctx, func(ctx context.Context) iter.Seq2[db.Record, error] {
		return s.store.Iterate(ctx)
	})
	if err != nil {
		s.logger.Error("Reindex failed", zap.Error(err))
		return 0, fmt.Errorf("reindex: %w", err)
	}
	metrics.ReindexEntries.Set(float64(n))
	s.logger.Info("Reindex complete", zap.Int("entries", n), zap.Duration("duration", time.Since(start)))
	return n, nil
}

// Ping checks the store and the index when they support it.
func (s *Service) Ping(ctx context.Context) error {
	deps := []struct {
		name string
		dep  any
	}{{"store", s.store}, {"index", s.index}}
	for _, d := range deps {
		p, ok := d.dep.(Pinger)
		if !ok {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	return nil
}

func (s *Service) atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.Atomic(ctx, fn)
}

func (s *Service) indexFailed(id string, err error) {
	if s.tx != nil {
		return
	}
	s.logger.Error("Index write failed after store write; run reindex",
		zap.String("id", id), zap.Error(err))
}
