package entry

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/jsonstore/internal/db/memory"
	"github.com/kailas-cloud/jsonstore/internal/db/sqlite"
	domdoc "github.com/kailas-cloud/jsonstore/internal/domain/document"
	"github.com/kailas-cloud/jsonstore/internal/domain/search/query"
	"github.com/kailas-cloud/jsonstore/internal/repository/index"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// testClock advances one second per call so every write gets a distinct timestamp.
func testClock() func() time.Time {
	var mu sync.Mutex
	t := fixedNow
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func openIndexDB(t *testing.T) *sqlite.DB {
	t.Helper()
	d, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "index.db"), sqlite.Options{PoolSize: 4})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// newTestService wires a memory store with a real SQLite index.
func newTestService(t *testing.T) (*Service, *memory.Store, *index.Index) {
	t.Helper()
	d := openIndexDB(t)
	idx := index.New(d.Pool(), index.WithWorkers(2))
	store := memory.New()
	svc := New(store, idx, NewSequenceGenerator(idx.MaxNumericID), nil).WithClock(testClock())
	return svc, store, idx
}

// newSQLiteService keeps documents and index in one database with atomic writes.
func newSQLiteService(t *testing.T, idx Index) (*Service, *sqlite.Documents) {
	t.Helper()
	d := openIndexDB(t)
	if idx == nil {
		idx = index.New(d.Pool())
	}
	docs := sqlite.NewDocuments(d)
	svc := New(docs, idx, UUIDGenerator{}, nil).WithTransactor(d).WithClock(testClock())
	return svc, docs
}

func ids(entries []domdoc.Entry) []string {
	out := make([]string, len(entries))
	for i := range entries {
		out[i] = entries[i].ID()
	}
	return out
}

// --- Mocks ---

type mockIndex struct {
	insertFn  func(ctx context.Context, e *domdoc.Entry) error
	removeFn  func(ctx context.Context, id string) error
	queryFn   func(ctx context.Context, plan query.Plan, page index.Page) ([]string, error)
	countFn   func(ctx context.Context, plan query.Plan) (int, error)
	rebuildFn func(ctx context.Context, src index.Source) (int, error)
}

func (m *mockIndex) Insert(ctx context.Context, e *domdoc.Entry) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, e)
	}
	return nil
}

func (m *mockIndex) Remove(ctx context.Context, id string) error {
	if m.removeFn != nil {
		return m.removeFn(ctx, id)
	}
	return nil
}

func (m *mockIndex) Query(ctx context.Context, plan query.Plan, page index.Page) ([]string, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, plan, page)
	}
	return nil, nil
}

func (m *mockIndex) Count(ctx context.Context, plan query.Plan) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, plan)
	}
	return 0, nil
}

func (m *mockIndex) Rebuild(ctx context.Context, src index.Source) (int, error) {
	if m.rebuildFn != nil {
		return m.rebuildFn(ctx, src)
	}
	return 0, nil
}

type mockIDs struct {
	next []string
	err  error
}

func (m *mockIDs) Next(context.Context) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	id := m.next[0]
	m.next = m.next[1:]
	return id, nil
}

type mockPinger struct{ err error }

func (m mockPinger) Ping(context.Context) error { return m.err }
