// Package bolt stores documents in a single bbolt bucket.
package bolt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.etcd.io/bbolt"

	"github.com/kailas-cloud/jsonstore/internal/db"
)

var _ db.DocumentStore = (*Store)(nil)

var bucketName = []byte("documents")

// pageSize bounds how many records Iterate copies per read transaction.
const pageSize = 256

// Options tune the underlying bbolt file.
type Options struct {
	Timeout   time.Duration
	IsTesting bool
}

// Store is a db.DocumentStore on top of bbolt.
type Store struct {
	bdb *bbolt.DB
}

// Open opens or creates the bolt file at path.
func Open(path string, opt Options) (*Store, error) {
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = opt.Timeout
	if bopt.Timeout == 0 {
		bopt.Timeout = 10 * time.Second
	}
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
	} else {
		bopt.FreelistType = bbolt.FreelistMapType
	}

	bdb, err := bbolt.Open(path, 0o666, &bopt)
	if err != nil {
		return nil, &db.Error{Op: db.OpOpen, Err: fmt.Errorf("bolt: %w", err)}
	}
	err = bdb.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = bdb.Close()
		return nil, &db.Error{Op: db.OpOpen, Err: err}
	}
	return &Store{bdb: bdb}, nil
}

func (s *Store) Get(_ context.Context, id string) ([]byte, error) {
	var out []byte
	err := s.bdb.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(id))
		if v == nil {
			return db.ErrKeyNotFound
		}
		// bbolt values are only valid inside the transaction
		out = bytes.Clone(v)
		return nil
	})
	return out, err
}

func (s *Store) Insert(_ context.Context, id string, data []byte) error {
	return s.update(db.OpInsert, func(b *bbolt.Bucket) error {
		if b.Get([]byte(id)) != nil {
			return db.ErrKeyExists
		}
		return b.Put([]byte(id), data)
	})
}

func (s *Store) Put(_ context.Context, id string, data []byte) error {
	return s.update(db.OpPut, func(b *bbolt.Bucket) error {
		return b.Put([]byte(id), data)
	})
}

func (s *Store) Delete(_ context.Context, id string) error {
	return s.update(db.OpDelete, func(b *bbolt.Bucket) error {
		if b.Get([]byte(id)) == nil {
			return db.ErrKeyNotFound
		}
		return b.Delete([]byte(id))
	})
}

// Iterate copies records out in key order, one short read transaction per
// page, so consumers never hold a bolt transaction open.
func (s *Store) Iterate(ctx context.Context) iter.Seq2[db.Record, error] {
	return func(yield func(db.Record, error) bool) {
		var after []byte
		for {
			if err := ctx.Err(); err != nil {
				yield(db.Record{}, err)
				return
			}
			page, err := s.page(after)
			if err != nil {
				yield(db.Record{}, &db.Error{Op: db.OpScan, Err: err})
				return
			}
			for _, rec := range page {
				if !yield(rec, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			after = []byte(page[len(page)-1].ID)
		}
	}
}

func (s *Store) page(after []byte) ([]db.Record, error) {
	page := make([]db.Record, 0, pageSize)
	err := s.bdb.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		var k, v []byte
		if after == nil {
			k, v = c.First()
		} else {
			k, v = c.Seek(after)
			if k != nil && bytes.Equal(k, after) {
				k, v = c.Next()
			}
		}
		for ; k != nil && len(page) < pageSize; k, v = c.Next() {
			page = append(page, db.Record{ID: string(k), Data: bytes.Clone(v)})
		}
		return nil
	})
	return page, err
}

func (s *Store) Close() error { return s.bdb.Close() }

func (s *Store) update(op string, fn func(*bbolt.Bucket) error) error {
	err := s.bdb.Update(func(tx *bbolt.Tx) error {
		return fn(tx.Bucket(bucketName))
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrKeyExists), errors.Is(err, db.ErrKeyNotFound):
		return err
	default:
		return &db.Error{Op: op, Err: err}
	}
}
