// Package jsonfile keeps all documents in one JSON file guarded by a
// cross-process file lock.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/kailas-cloud/jsonstore/internal/db"
)

var _ db.DocumentStore = (*Store)(nil)

const (
	fileVersion   = 1
	lockTimeout   = 3 * time.Second
	lockRetryStep = 50 * time.Millisecond
)

// fileData is the on-disk layout. Values are base64 encoded by encoding/json.
type fileData struct {
	Version   int               `json:"version"`
	Documents map[string][]byte `json:"documents"`
}

// Store persists documents in a single JSON file.
type Store struct {
	path string
	lock *flock.Flock
	mu   sync.RWMutex
}

// New opens (or prepares) the JSON file at path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &db.Error{Op: db.OpOpen, Err: err}
	}
	return &Store{path: path, lock: flock.New(path + ".lock")}, nil
}

func (s *Store) Get(ctx context.Context, id string) ([]byte, error) {
	var out []byte
	err := s.read(ctx, func(d *fileData) error {
		data, ok := d.Documents[id]
		if !ok {
			return db.ErrKeyNotFound
		}
		out = data
		return nil
	})
	return out, err
}

func (s *Store) Insert(ctx context.Context, id string, data []byte) error {
	return s.write(ctx, db.OpInsert, func(d *fileData) error {
		if _, ok := d.Documents[id]; ok {
			return db.ErrKeyExists
		}
		d.Documents[id] = data
		return nil
	})
}

func (s *Store) Put(ctx context.Context, id string, data []byte) error {
	return s.write(ctx, db.OpPut, func(d *fileData) error {
		d.Documents[id] = data
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.write(ctx, db.OpDelete, func(d *fileData) error {
		if _, ok := d.Documents[id]; !ok {
			return db.ErrKeyNotFound
		}
		delete(d.Documents, id)
		return nil
	})
}

// Iterate yields the file contents as read when iteration starts.
func (s *Store) Iterate(ctx context.Context) iter.Seq2[db.Record, error] {
	return func(yield func(db.Record, error) bool) {
		var snapshot map[string][]byte
		if err := s.read(ctx, func(d *fileData) error {
			snapshot = d.Documents
			return nil
		}); err != nil {
			yield(db.Record{}, err)
			return
		}
		for id, data := range snapshot {
			if !yield(db.Record{ID: id, Data: data}, nil) {
				return
			}
		}
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) read(ctx context.Context, fn func(*fileData) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	unlock, err := s.acquire(ctx, false)
	if err != nil {
		return err
	}
	defer unlock()

	d, err := s.load()
	if err != nil {
		return err
	}
	return fn(d)
}

func (s *Store) write(ctx context.Context, op string, fn func(*fileData) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.acquire(ctx, true)
	if err != nil {
		return err
	}
	defer unlock()

	d, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(d); err != nil {
		return err
	}
	if err := s.save(d); err != nil {
		return &db.Error{Op: op, Err: err}
	}
	return nil
}

func (s *Store) acquire(ctx context.Context, exclusive bool) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	var locked bool
	var err error
	if exclusive {
		locked, err = s.lock.TryLockContext(ctx, lockRetryStep)
	} else {
		locked, err = s.lock.TryRLockContext(ctx, lockRetryStep)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire file lock: %w", err)
	}
	if !locked {
		return nil, errors.New("could not acquire file lock")
	}
	return func() { _ = s.lock.Unlock() }, nil
}

func (s *Store) load() (*fileData, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(raw) == 0) {
		return &fileData{Version: fileVersion, Documents: map[string][]byte{}}, nil
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpOpen, Err: err}
	}
	var d fileData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, &db.Error{Op: db.OpOpen, Err: fmt.Errorf("parse %s: %w", s.path, err)}
	}
	if d.Documents == nil {
		d.Documents = map[string][]byte{}
	}
	return &d, nil
}

// save writes to a temporary file and renames it over the original.
func (s *Store) save(d *fileData) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
