package redis

import (
	"context"
	"iter"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/jsonstore/internal/db"
)

const scanCount = 100

// Get retrieves a document by id.
func (s *Store) Get(ctx context.Context, id string) ([]byte, error) {
	cmd := s.b().Get().Key(s.key(id)).Build()
	data, err := s.do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return data, nil
}

// Insert stores a document only if the id is free (SET NX).
func (s *Store) Insert(ctx context.Context, id string, data []byte) error {
	cmd := s.b().Set().Key(s.key(id)).Value(rueidis.BinaryString(data)).Nx().Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return db.ErrKeyExists
		}
		return &db.Error{Op: db.OpInsert, Err: err}
	}
	return nil
}

// Put stores a document, replacing any previous value.
func (s *Store) Put(ctx context.Context, id string, data []byte) error {
	cmd := s.b().Set().Key(s.key(id)).Value(rueidis.BinaryString(data)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpPut, Err: err}
	}
	return nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, id string) error {
	cmd := s.b().Del().Key(s.key(id)).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return &db.Error{Op: db.OpDelete, Err: err}
	}
	if n == 0 {
		return db.ErrKeyNotFound
	}
	return nil
}

// Iterate walks the prefix with SCAN and fetches each page with pipelined
// GETs, which stays valid across cluster slots. Keys removed between the two
// calls are skipped.
func (s *Store) Iterate(ctx context.Context) iter.Seq2[db.Record, error] {
	return func(yield func(db.Record, error) bool) {
		pattern := escapeGlob(s.prefix) + "*"
		var cursor uint64
		for {
			cmd := s.b().Scan().Cursor(cursor).Match(pattern).Count(scanCount).Build()
			page, err := s.do(ctx, cmd).AsScanEntry()
			if err != nil {
				yield(db.Record{}, &db.Error{Op: db.OpScan, Err: err})
				return
			}
			if len(page.Elements) > 0 && !s.yieldPage(ctx, page.Elements, yield) {
				return
			}
			cursor = page.Cursor
			if cursor == 0 {
				return
			}
		}
	}
}

func (s *Store) yieldPage(ctx context.Context, keys []string, yield func(db.Record, error) bool) bool {
	cmds := make(rueidis.Commands, 0, len(keys))
	for _, k := range keys {
		cmds = append(cmds, s.b().Get().Key(k).Build())
	}
	for i, res := range s.client.DoMulti(ctx, cmds...) {
		data, err := res.AsBytes()
		if rueidis.IsRedisNil(err) {
			continue
		}
		if err != nil {
			yield(db.Record{}, &db.Error{Op: db.OpScan, Err: err})
			return false
		}
		rec := db.Record{ID: strings.TrimPrefix(keys[i], s.prefix), Data: data}
		if !yield(rec, nil) {
			return false
		}
	}
	return true
}

// escapeGlob quotes the characters SCAN MATCH treats as wildcards.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
