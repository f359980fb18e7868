package entry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/jsonstore/internal/db"
	"github.com/kailas-cloud/jsonstore/internal/db/memory"
	"github.com/kailas-cloud/jsonstore/internal/domain"
	domdoc "github.com/kailas-cloud/jsonstore/internal/domain/document"
	"github.com/kailas-cloud/jsonstore/internal/domain/search/operator"
	"github.com/kailas-cloud/jsonstore/internal/domain/search/query"
	"github.com/kailas-cloud/jsonstore/internal/repository/index"
)

// --- Create / Get ---

func TestCreate_RoundTrip(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	body := map[string]any{
		"title": "hello",
		"n":     3,
		"tags":  []any{"a", "b"},
		"meta":  map[string]any{"ok": true, "none": nil},
	}

	created, err := svc.Create(ctx, body, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := svc.Get(ctx, created.ID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]any{
		"title": "hello",
		"n":     3.0,
		"tags":  []any{"a", "b"},
		"meta":  map[string]any{"ok": true, "none": nil},
	}
	if !reflect.DeepEqual(got.Body(), want) {
		t.Errorf("body = %#v, want %#v", got.Body(), want)
	}
	if !got.Updated().Equal(created.Updated()) {
		t.Errorf("updated = %v, want %v", got.Updated(), created.Updated())
	}
}

func TestCreate_ExplicitUpdated(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	e, err := svc.Create(ctx, map[string]any{}, "x", "2020-01-02T03:04:05Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC); !e.Updated().Equal(want) {
		t.Errorf("updated = %v", e.Updated())
	}

	if _, err := svc.Create(ctx, map[string]any{}, "y", "yesterday"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		body map[string]any
	}{
		{"nil body", nil},
		{"reserved id", map[string]any{domain.IDKey: "x"}},
		{"reserved updated", map[string]any{domain.UpdatedKey: "x"}},
		{"unsupported value", map[string]any{"ch": make(chan int)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tc.body, "", nil); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
	if store.Len() != 0 {
		t.Errorf("invalid creates reached the store: %d", store.Len())
	}
}

func TestCreate_ClientIDConflict(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, map[string]any{"v": 1}, "doc", nil); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Create(ctx, map[string]any{"v": 2}, "doc", nil)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, _ := svc.Get(ctx, "doc")
	if got.Body()["v"] != 1.0 {
		t.Errorf("conflicting create overwrote entry: %v", got.Body())
	}
}

func TestCreate_GeneratedIDsUnique(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	const n = 40
	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		wg   sync.WaitGroup
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := svc.Create(ctx, map[string]any{"i": i}, "", nil)
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			mu.Lock()
			seen[e.ID()] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != n {
		t.Errorf("expected %d distinct ids, got %d", n, len(seen))
	}
}

func TestCreate_RetriesGeneratedCollision(t *testing.T) {
	store := memory.New()
	if err := store.Put(context.Background(), "1", []byte{0x80}); err != nil {
		t.Fatal(err)
	}
	gen := &mockIDs{next: []string{"1", "2"}}
	svc := New(store, &mockIndex{}, gen, nil)

	e, err := svc.Create(context.Background(), map[string]any{}, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID() != "2" {
		t.Errorf("id = %q, want 2", e.ID())
	}
}

func TestCreate_GiveUpAfterAttempts(t *testing.T) {
	store := memory.New()
	_ = store.Put(context.Background(), "same", []byte{0x80})
	next := make([]string, defaultIDAttempts)
	for i := range next {
		next[i] = "same"
	}
	svc := New(store, &mockIndex{}, &mockIDs{next: next}, nil)

	if _, err := svc.Create(context.Background(), map[string]any{}, "", nil); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreate_SequenceBehindStore(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	for i := 1; i <= 20; i++ {
		e, err := domdoc.New(strconv.Itoa(i), map[string]any{"n": i}, fixedNow)
		if err != nil {
			t.Fatal(err)
		}
		data, err := domdoc.Marshal(&e)
		if err != nil {
			t.Fatal(err)
		}
		if err := store.Insert(ctx, e.ID(), data); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Insert(ctx, "x99", []byte{0x80}); err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"21", "22"} {
		e, err := svc.Create(ctx, map[string]any{"new": true}, "", nil)
		if err != nil {
			t.Fatalf("create over unindexed store: %v", err)
		}
		if e.ID() != want {
			t.Errorf("id = %q, want %s", e.ID(), want)
		}
	}
}

func TestCreate_NoGenerator(t *testing.T) {
	svc := New(memory.New(), &mockIndex{}, nil, nil)
	if _, err := svc.Create(context.Background(), map[string]any{}, "", nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// --- Update ---

func TestUpdate_ReplacesBody(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	e, err := svc.Create(ctx, map[string]any{"color": "red", "size": 1}, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	updated, err := svc.Update(ctx, e.ID(), map[string]any{"color": "blue"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !updated.Updated().After(e.Updated()) {
		t.Errorf("updated timestamp did not advance: %v -> %v", e.Updated(), updated.Updated())
	}

	got, _ := svc.Get(ctx, e.ID())
	if !reflect.DeepEqual(got.Body(), map[string]any{"color": "blue"}) {
		t.Errorf("body = %v", got.Body())
	}
	tests := []struct {
		key  map[string]any
		want int
	}{
		{map[string]any{"color": "red"}, 0},
		{map[string]any{"size": 1}, 0},
		{map[string]any{"color": "blue"}, 1},
	}
	for _, tc := range tests {
		res, err := svc.Search(ctx, tc.key, SearchOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if len(res) != tc.want {
			t.Errorf("%v matched %d entries, want %d", tc.key, len(res), tc.want)
		}
	}
}

func TestUpdate_NotFound(t *testing.T) {
	svc, store, _ := newTestService(t)
	_, err := svc.Update(context.Background(), "ghost", map[string]any{"a": 1}, nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if store.Len() != 0 {
		t.Error("update of a missing entry created it")
	}
}

func TestUpdate_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	e, _ := svc.Create(ctx, map[string]any{"a": 1}, "", nil)

	if _, err := svc.Update(ctx, e.ID(), map[string]any{domain.IDKey: "x"}, nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

// --- Delete ---

func TestDelete_Complete(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	e, _ := svc.Create(ctx, map[string]any{"color": "red"}, "", nil)
	if err := svc.Delete(ctx, e.ID()); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx, e.ID()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("get after delete: %v", err)
	}
	for _, key := range []map[string]any{nil, {"color": "red"}, {domain.IDKey: e.ID()}} {
		res, err := svc.Search(ctx, key, SearchOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if len(res) != 0 {
			t.Errorf("%v still finds deleted entry", key)
		}
	}
	if err := svc.Delete(ctx, e.ID()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

// --- Search ---

func seed(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	for _, b := range []map[string]any{
		{"name": "apple", "price": 3, "tags": []any{"fruit", "red"}},
		{"name": "banana", "price": 1, "tags": []any{"fruit", "yellow"}},
		{"name": "cherry", "price": 10, "tags": []any{"fruit", "red"}},
		{"name": "brick", "price": "n/a", "tags": []any{"red"}},
	} {
		if _, err := svc.Create(ctx, b, "", nil); err != nil {
			t.Fatal(err)
		}
	}
}

func names(entries []domdoc.Entry) []string {
	out := make([]string, len(entries))
	for i := range entries {
		out[i], _ = entries[i].Body()["name"].(string)
	}
	return out
}

func TestSearch_NewestFirst(t *testing.T) {
	svc, _, _ := newTestService(t)
	seed(t, svc)

	res, err := svc.Search(context.Background(), nil, SearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got := fmt.Sprint(names(res)); got != "[brick cherry banana apple]" {
		t.Errorf("order = %s", got)
	}
}

func TestSearch_ANDNarrowingAndORWidening(t *testing.T) {
	svc, _, _ := newTestService(t)
	seed(t, svc)
	ctx := context.Background()

	tests := []struct {
		key  map[string]any
		want string
	}{
		{map[string]any{"tags": "red"}, "[brick cherry apple]"},
		{map[string]any{"tags": "red", "price": operator.Gt(5)}, "[cherry]"},
		{map[string]any{"name": []any{"apple", "banana"}}, "[banana apple]"},
		{map[string]any{"tags": []any{"yellow", "red"}, "price": operator.Lt(5)}, "[banana apple]"},
	}
	for _, tc := range tests {
		res, err := svc.Search(ctx, tc.key, SearchOptions{})
		if err != nil {
			t.Fatalf("%v: %v", tc.key, err)
		}
		if got := fmt.Sprint(names(res)); got != tc.want {
			t.Errorf("%v = %s, want %s", tc.key, got, tc.want)
		}
	}
}

func TestSearch_OperatorSemantics(t *testing.T) {
	svc, _, _ := newTestService(t)
	seed(t, svc)
	ctx := context.Background()

	tests := []struct {
		name string
		key  map[string]any
		want string
	}{
		{"gt excludes non-numeric", map[string]any{"price": operator.Gt(0)}, "[cherry banana apple]"},
		{"like", map[string]any{"name": operator.Match("b%")}, "[brick banana]"},
		{"regexp", map[string]any{"name": operator.Re(".*rr.*")}, "[cherry]"},
		{"regexp on numbers", map[string]any{"price": operator.Re("1.*")}, "[cherry banana]"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := svc.Search(ctx, tc.key, SearchOptions{})
			if err != nil {
				t.Fatal(err)
			}
			if got := fmt.Sprint(names(res)); got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSearch_TypedCollections(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	e, err := svc.Create(ctx, map[string]any{
		"tags": []string{"a", "b"},
		"m":    map[string]string{"x": "y"},
	}, "", nil)
	if err != nil {
		t.Fatal(err)
	}

	keys := []map[string]any{
		{"tags": []string{"a"}},
		{"tags": []string{"z", "b"}},
		{"m": map[string]string{"x": "y"}},
		{"tags": []any{"a"}, "m": map[string]any{"x": "y"}},
	}
	for _, key := range keys {
		res, err := svc.Search(ctx, key, SearchOptions{})
		if err != nil {
			t.Fatalf("%v: %v", key, err)
		}
		if len(res) != 1 || res[0].ID() != e.ID() {
			t.Errorf("%v = %v", key, ids(res))
		}
	}
	if res, _ := svc.Search(ctx, map[string]any{"m": map[string]string{"x": "z"}}, SearchOptions{}); len(res) != 0 {
		t.Errorf("mismatched map value matched %v", ids(res))
	}
}

func TestSearch_BareLike(t *testing.T) {
	svc, _, _ := newTestService(t)
	seed(t, svc)

	res, err := svc.Search(context.Background(), map[string]any{"name": "%an%"}, SearchOptions{Bare: operator.Like})
	if err != nil {
		t.Fatal(err)
	}
	if got := fmt.Sprint(names(res)); got != "[banana]" {
		t.Errorf("got %s", got)
	}
}

func TestSearch_PaginationPartitions(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	for i := range 9 {
		if _, err := svc.Create(ctx, map[string]any{"i": i}, "", nil); err != nil {
			t.Fatal(err)
		}
	}

	all, err := svc.Search(ctx, nil, SearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	var paged []string
	for off := 0; off < len(all); off += 4 {
		page, err := svc.Search(ctx, nil, SearchOptions{Offset: off, Size: 4})
		if err != nil {
			t.Fatal(err)
		}
		paged = append(paged, ids(page)...)
	}
	if !slices.Equal(paged, ids(all)) {
		t.Errorf("pages %v != full %v", paged, ids(all))
	}
}

func TestSearch_InvalidQuery(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, key := range []map[string]any{
		{"a": operator.New(operator.Kind(99), 1)},
		{"a": operator.Re("(")},
		{domain.IDKey: operator.Gt(1)},
		{"a": nil},
		{"a": int64(1 << 60)},
	} {
		if _, err := svc.Search(ctx, key, SearchOptions{}); !errors.Is(err, domain.ErrInvalidQuery) {
			t.Errorf("%v: expected ErrInvalidQuery, got %v", key, err)
		}
	}
	if _, err := svc.Search(ctx, nil, SearchOptions{Size: -1}); !errors.Is(err, domain.ErrInvalidQuery) {
		t.Errorf("negative size: %v", err)
	}
}

func TestSearch_SkipsIndexedIDsWithoutEntry(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	a, _ := svc.Create(ctx, map[string]any{"k": 1}, "", nil)
	b, _ := svc.Create(ctx, map[string]any{"k": 1}, "", nil)

	// Wipe b behind the service's back; its index rows remain.
	if err := store.Delete(ctx, b.ID()); err != nil {
		t.Fatal(err)
	}
	res, err := svc.Search(ctx, map[string]any{"k": 1}, SearchOptions{})
	if err != nil {
		t.Fatalf("search must tolerate dangling rows: %v", err)
	}
	if fmt.Sprint(ids(res)) != fmt.Sprint([]string{a.ID()}) {
		t.Errorf("got %v", ids(res))
	}
}

func TestSearch_IndexError(t *testing.T) {
	boom := errors.New("boom")
	svc := New(memory.New(), &mockIndex{
		queryFn: func(context.Context, query.Plan, index.Page) ([]string, error) { return nil, boom },
	}, nil, nil)
	if _, err := svc.Search(context.Background(), nil, SearchOptions{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestCount(t *testing.T) {
	svc, _, _ := newTestService(t)
	seed(t, svc)
	ctx := context.Background()

	n, err := svc.Count(ctx, map[string]any{"tags": "fruit"}, operator.Equal)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("count = %d", n)
	}
	if _, err := svc.Count(ctx, map[string]any{"a": operator.Re("[")}, operator.Equal); !errors.Is(err, domain.ErrInvalidQuery) {
		t.Errorf("expected ErrInvalidQuery, got %v", err)
	}
}

// --- Reindex ---

func TestReindex_Idempotent(t *testing.T) {
	svc, store, _ := newTestService(t)
	seed(t, svc)
	ctx := context.Background()

	// An entry written straight to the store is only findable after reindex.
	e, err := domdoc.New("direct", map[string]any{"name": "durian", "tags": []any{"fruit"}}, fixedNow)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := domdoc.Marshal(&e)
	if err := store.Put(ctx, "direct", data); err != nil {
		t.Fatal(err)
	}

	key := map[string]any{"tags": "fruit"}
	before, _ := svc.Search(ctx, key, SearchOptions{})
	if slices.Contains(ids(before), "direct") {
		t.Fatal("unindexed entry found before reindex")
	}

	n, err := svc.Reindex(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("reindexed %d entries, want 5", n)
	}
	first, _ := svc.Search(ctx, key, SearchOptions{})
	if _, err := svc.Reindex(ctx); err != nil {
		t.Fatal(err)
	}
	second, _ := svc.Search(ctx, key, SearchOptions{})

	if !slices.Equal(ids(first), ids(second)) {
		t.Errorf("reindex not idempotent: %v vs %v", ids(first), ids(second))
	}
	if !slices.Contains(ids(first), "direct") {
		t.Error("reindex did not pick up store contents")
	}
}

func TestReindex_Error(t *testing.T) {
	boom := errors.New("boom")
	svc := New(memory.New(), &mockIndex{
		rebuildFn: func(context.Context, index.Source) (int, error) { return 0, boom },
	}, nil, nil)
	if _, err := svc.Reindex(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

// --- Atomic writes ---

func TestSQLiteBackend_RoundTrip(t *testing.T) {
	svc, _ := newSQLiteService(t, nil)
	ctx := context.Background()

	e, err := svc.Create(ctx, map[string]any{"k": "v"}, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := svc.Search(ctx, map[string]any{"k": "v"}, SearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(ids(res)) != fmt.Sprint([]string{e.ID()}) {
		t.Errorf("got %v", ids(res))
	}
	if _, err := svc.Update(ctx, e.ID(), map[string]any{"k": "w"}, nil); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, e.ID()); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx, e.ID()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteBackend_UpdateRollsBackOnIndexFailure(t *testing.T) {
	boom := errors.New("boom")
	failing := false
	idx := &mockIndex{insertFn: func(context.Context, *domdoc.Entry) error {
		if failing {
			return boom
		}
		return nil
	}}
	svc, docs := newSQLiteService(t, idx)
	ctx := context.Background()

	if _, err := svc.Create(ctx, map[string]any{"v": 1}, "doc", nil); err != nil {
		t.Fatal(err)
	}
	failing = true
	if _, err := svc.Update(ctx, "doc", map[string]any{"v": 2}, nil); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	data, err := docs.Get(ctx, "doc")
	if err != nil {
		t.Fatal(err)
	}
	e, _ := domdoc.Unmarshal("doc", data)
	if e.Body()["v"] != 1.0 {
		t.Errorf("store kept the failed update: %v", e.Body())
	}
}

func TestSQLiteBackend_CreateRollsBackOnIndexFailure(t *testing.T) {
	boom := errors.New("boom")
	svc, docs := newSQLiteService(t, &mockIndex{
		insertFn: func(context.Context, *domdoc.Entry) error { return boom },
	})
	ctx := context.Background()

	if _, err := svc.Create(ctx, map[string]any{"v": 1}, "doc", nil); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := docs.Get(ctx, "doc"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("store kept the failed create: %v", err)
	}
}

// --- Ping ---

func TestPing(t *testing.T) {
	svc, _, _ := newTestService(t)
	if err := svc.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	boom := errors.New("down")
	broken := New(struct {
		Store
		mockPinger
	}{memory.New(), mockPinger{err: boom}}, &mockIndex{}, nil, nil)
	if err := broken.Ping(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected down, got %v", err)
	}
}
