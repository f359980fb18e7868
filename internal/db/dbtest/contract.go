// Package dbtest holds the behavioral suite every DocumentStore must pass.
package dbtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/kailas-cloud/jsonstore/internal/db"
)

// RunContract exercises s against the DocumentStore contract.
// The store must be empty when passed in.
func RunContract(t *testing.T, s db.DocumentStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("Get missing", func(t *testing.T) {
		if _, err := s.Get(ctx, "missing"); !errors.Is(err, db.ErrKeyNotFound) {
			t.Fatalf("expected ErrKeyNotFound, got %v", err)
		}
	})

	t.Run("Insert and Get", func(t *testing.T) {
		if err := s.Insert(ctx, "k1", []byte("one")); err != nil {
			t.Fatal(err)
		}
		got, err := s.Get(ctx, "k1")
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "one" {
			t.Fatalf("expected one, got %q", got)
		}
	})

	t.Run("Insert existing", func(t *testing.T) {
		if err := s.Insert(ctx, "k1", []byte("other")); !errors.Is(err, db.ErrKeyExists) {
			t.Fatalf("expected ErrKeyExists, got %v", err)
		}
		got, _ := s.Get(ctx, "k1")
		if string(got) != "one" {
			t.Fatalf("insert overwrote value: %q", got)
		}
	})

	t.Run("Put overwrites", func(t *testing.T) {
		if err := s.Put(ctx, "k1", []byte("uno")); err != nil {
			t.Fatal(err)
		}
		got, _ := s.Get(ctx, "k1")
		if string(got) != "uno" {
			t.Fatalf("expected uno, got %q", got)
		}
	})

	t.Run("Returned bytes are private", func(t *testing.T) {
		got, _ := s.Get(ctx, "k1")
		if len(got) > 0 {
			got[0] = 'X'
		}
		again, _ := s.Get(ctx, "k1")
		if string(again) != "uno" {
			t.Fatalf("mutation leaked: %q", again)
		}
	})

	t.Run("Iterate", func(t *testing.T) {
		if err := s.Put(ctx, "k2", []byte("two")); err != nil {
			t.Fatal(err)
		}
		var ids []string
		for rec, err := range s.Iterate(ctx) {
			if err != nil {
				t.Fatal(err)
			}
			ids = append(ids, rec.ID)
		}
		sort.Strings(ids)
		if fmt.Sprint(ids) != "[k1 k2]" {
			t.Fatalf("iterate ids = %v", ids)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := s.Delete(ctx, "k2"); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Get(ctx, "k2"); !errors.Is(err, db.ErrKeyNotFound) {
			t.Fatalf("expected ErrKeyNotFound after delete, got %v", err)
		}
		if err := s.Delete(ctx, "k2"); !errors.Is(err, db.ErrKeyNotFound) {
			t.Fatalf("expected ErrKeyNotFound on second delete, got %v", err)
		}
	})

	t.Run("Concurrent inserts", func(t *testing.T) {
		const n = 16
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.Insert(ctx, "race", []byte("x")); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				} else if !errors.Is(err, db.ErrKeyExists) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Fatalf("expected exactly one successful insert, got %d", wins)
		}
	})
}
