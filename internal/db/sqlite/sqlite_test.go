package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kailas-cloud/jsonstore/internal/db"
	"github.com/kailas-cloud/jsonstore/internal/db/dbtest"
)

func openTest(t *testing.T, size int) *DB {
	t.Helper()
	d, err := Open(context.Background(), filepath.Join(t.TempDir(), "index.db"), Options{PoolSize: size})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDocuments(t *testing.T) {
	dbtest.RunContract(t, NewDocuments(openTest(t, 4)))
}

func TestPool_LazyHandles(t *testing.T) {
	d := openTest(t, 2)
	ctx := context.Background()

	h, err := d.Pool().Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if h.Open() {
		t.Fatal("handle connected before first use")
	}
	if err := d.Pool().Do(WithHandle(ctx, h), func(q Querier) error {
		_, err := q.ExecContext(ctx, "SELECT 1")
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if !h.Open() {
		t.Fatal("pinned handle was not used")
	}
	d.Pool().Release(h)

	again, err := d.Pool().Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Pool().Release(again)
	if again.ID() == h.ID() && !again.Open() {
		t.Fatal("released handle lost its connection")
	}
}

func TestPool_AcquireHonorsContext(t *testing.T) {
	d := openTest(t, 1)
	h, err := d.Pool().Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer d.Pool().Release(h)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := d.Pool().Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestPool_Closed(t *testing.T) {
	d := openTest(t, 1)
	if err := d.Pool().Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Pool().Acquire(context.Background()); !errors.Is(err, db.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := d.Pool().Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestInTx_RollbackOnError(t *testing.T) {
	d := openTest(t, 2)
	docs := NewDocuments(d)
	ctx := context.Background()
	boom := errors.New("boom")

	err := d.Pool().InTx(ctx, func(ctx context.Context, _ *sql.Tx) error {
		if err := docs.Put(ctx, "a", []byte("1")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := docs.Get(ctx, "a"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("write survived rollback: %v", err)
	}
}

func TestInTx_NestedJoins(t *testing.T) {
	d := openTest(t, 1)
	docs := NewDocuments(d)
	ctx := context.Background()

	// With a single handle a nested acquire would block forever.
	err := d.Pool().InTx(ctx, func(ctx context.Context, outer *sql.Tx) error {
		if err := docs.Put(ctx, "a", []byte("1")); err != nil {
			return err
		}
		return d.Pool().InTx(ctx, func(ctx context.Context, inner *sql.Tx) error {
			if inner != outer {
				t.Error("nested call opened a second transaction")
			}
			return docs.Put(ctx, "b", []byte("2"))
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"a", "b"} {
		if _, err := docs.Get(ctx, id); err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
	}
}

func TestRegexpFunction(t *testing.T) {
	d := openTest(t, 1)
	ctx := context.Background()

	tests := []struct {
		subject any
		pattern string
		want    bool
	}{
		{"hello world", "wor", true},
		{"hello world", "^world", false},
		{"hello", "^h.*o$", true},
		{42.5, `^42\.5$`, true},
		{int64(7), "^7$", true},
		{nil, ".*", false},
	}
	for _, tc := range tests {
		var got bool
		err := d.Pool().Do(ctx, func(q Querier) error {
			return q.QueryRowContext(ctx, "SELECT ? REGEXP ?", tc.subject, tc.pattern).Scan(&got)
		})
		if err != nil {
			t.Fatalf("%v REGEXP %q: %v", tc.subject, tc.pattern, err)
		}
		if got != tc.want {
			t.Errorf("%v REGEXP %q = %v, want %v", tc.subject, tc.pattern, got, tc.want)
		}
	}
}

func TestRegexpFunction_BadPattern(t *testing.T) {
	d := openTest(t, 1)
	ctx := context.Background()
	err := d.Pool().Do(ctx, func(q Querier) error {
		var got bool
		return q.QueryRowContext(ctx, "SELECT 'x' REGEXP '('").Scan(&got)
	})
	if err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestPing(t *testing.T) {
	if err := openTest(t, 1).Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
}
