// Package memory keeps documents in a map. Data is lost on restart.
package memory

import (
	"context"
	"iter"
	"slices"
	"sync"

	"github.com/kailas-cloud/jsonstore/internal/db"
)

var _ db.DocumentStore = (*Store)(nil)

// Store is an in-memory document store. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// New creates an empty store.
func New() *Store {
	return &Store{docs: make(map[string][]byte)}
}

func (s *Store) Get(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.docs[id]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return slices.Clone(data), nil
}

func (s *Store) Insert(_ context.Context, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; ok {
		return db.ErrKeyExists
	}
	s.docs[id] = slices.Clone(data)
	return nil
}

func (s *Store) Put(_ context.Context, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id] = slices.Clone(data)
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return db.ErrKeyNotFound
	}
	delete(s.docs, id)
	return nil
}

// Iterate yields a snapshot of the store taken when iteration starts.
func (s *Store) Iterate(ctx context.Context) iter.Seq2[db.Record, error] {
	return func(yield func(db.Record, error) bool) {
		s.mu.RLock()
		snapshot := make([]db.Record, 0, len(s.docs))
		for id, data := range s.docs {
			snapshot = append(snapshot, db.Record{ID: id, Data: slices.Clone(data)})
		}
		s.mu.RUnlock()

		for _, rec := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(db.Record{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
