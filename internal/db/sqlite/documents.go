package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"iter"

	"github.com/kailas-cloud/jsonstore/internal/db"
)

var (
	_ db.DocumentStore = (*Documents)(nil)
	_ db.Pinger        = (*Documents)(nil)
)

const iteratePage = 256

// Documents is a db.DocumentStore kept in the same database as the index.
// Calls made with a context carrying a transaction join it, which lets a
// document write and its index rewrite commit together.
type Documents struct {
	db *DB
}

// NewDocuments returns the document table of d.
func NewDocuments(d *DB) *Documents { return &Documents{db: d} }

// DB exposes the shared database.
func (s *Documents) DB() *DB { return s.db }

func (s *Documents) Get(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.pool.Do(ctx, func(q Querier) error {
		return q.QueryRowContext(ctx, `SELECT data FROM documents WHERE id = ?`, id).Scan(&data)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return data, nil
}

func (s *Documents) Insert(ctx context.Context, id string, data []byte) error {
	n, err := s.exec(ctx, db.OpInsert,
		`INSERT INTO documents (id, data) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`, id, data)
	if err != nil {
		return err
	}
	if n == 0 {
		return db.ErrKeyExists
	}
	return nil
}

func (s *Documents) Put(ctx context.Context, id string, data []byte) error {
	_, err := s.exec(ctx, db.OpPut,
		`INSERT INTO documents (id, data) VALUES (?, ?) ON CONFLICT (id) DO UPDATE SET data = excluded.data`, id, data)
	return err
}

func (s *Documents) Delete(ctx context.Context, id string) error {
	n, err := s.exec(ctx, db.OpDelete, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return db.ErrKeyNotFound
	}
	return nil
}

// Iterate pages through documents by id. Each page is read with its own
// pooled call so no handle is held while the consumer runs.
func (s *Documents) Iterate(ctx context.Context) iter.Seq2[db.Record, error] {
	return func(yield func(db.Record, error) bool) {
		after := ""
		for {
			page, err := s.page(ctx, after)
			if err != nil {
				yield(db.Record{}, &db.Error{Op: db.OpScan, Err: err})
				return
			}
			for _, rec := range page {
				if !yield(rec, nil) {
					return
				}
			}
			if len(page) < iteratePage {
				return
			}
			after = page[len(page)-1].ID
		}
	}
}

func (s *Documents) page(ctx context.Context, after string) ([]db.Record, error) {
	page := make([]db.Record, 0, iteratePage)
	err := s.db.pool.Do(ctx, func(q Querier) error {
		rows, err := q.QueryContext(ctx,
			`SELECT id, data FROM documents WHERE id > ? ORDER BY id LIMIT ?`, after, iteratePage)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var rec db.Record
			if err := rows.Scan(&rec.ID, &rec.Data); err != nil {
				return err
			}
			page = append(page, rec)
		}
		return rows.Err()
	})
	return page, err
}

func (s *Documents) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

// Close is a no-op; the shared database is closed by its owner.
func (s *Documents) Close() error { return nil }

func (s *Documents) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	var n int64
	err := s.db.pool.Do(ctx, func(q Querier) error {
		res, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, &db.Error{Op: op, Err: err}
	}
	return n, nil
}
