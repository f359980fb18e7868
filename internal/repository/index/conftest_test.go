package index

import (
	"context"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/kailas-cloud/jsonstore/internal/db/sqlite"
	domdoc "github.com/kailas-cloud/jsonstore/internal/domain/document"
	"github.com/kailas-cloud/jsonstore/internal/domain/search/query"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestIndex(t *testing.T) (*Index, *sqlite.DB) {
	t.Helper()
	d, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "index.db"), sqlite.Options{PoolSize: 2})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return New(d.Pool(), WithWorkers(2)), d
}

// testEntry builds an entry updated `age` minutes before baseTime.
func testEntry(t *testing.T, id string, age int, body map[string]any) domdoc.Entry {
	t.Helper()
	e, err := domdoc.New(id, body, baseTime.Add(-time.Duration(age)*time.Minute))
	if err != nil {
		t.Fatalf("entry %s: %v", id, err)
	}
	return e
}

func mustInsert(t *testing.T, x *Index, entries ...domdoc.Entry) {
	t.Helper()
	for i := range entries {
		if err := x.Insert(context.Background(), &entries[i]); err != nil {
			t.Fatalf("insert %s: %v", entries[i].ID(), err)
		}
	}
}

func mustQuery(t *testing.T, x *Index, key map[string]any, page Page) []string {
	t.Helper()
	plan, err := query.Compile(key)
	if err != nil {
		t.Fatalf("compile %v: %v", key, err)
	}
	ids, err := x.Query(context.Background(), plan, page)
	if err != nil {
		t.Fatalf("query %v: %v", key, err)
	}
	return ids
}

func sorted(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}
