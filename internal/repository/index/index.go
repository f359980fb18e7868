// Package index is the secondary index: one row per flattened leaf of every
// entry, kept in SQLite and queried with compiled plans.
package index

import (
	"context"
	"database/sql"
	"iter"

	sq "github.com/Masterminds/squirrel"

	"github.com/kailas-cloud/jsonstore/internal/db"
	"github.com/kailas-cloud/jsonstore/internal/db/sqlite"
	domdoc "github.com/kailas-cloud/jsonstore/internal/domain/document"
	"github.com/kailas-cloud/jsonstore/internal/domain/search/query"
)

// pool is the consumer interface over the SQLite handle pool (ISP).
type pool interface {
	Do(ctx context.Context, fn func(sqlite.Querier) error) error
	InTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error
}

// Page bounds a query result. Size 0 means no limit.
type Page struct {
	Offset int
	Size   int
}

const (
	defaultWorkers = 4
	// insertChunk keeps multi-row inserts well under SQLite's variable limit.
	insertChunk = 500
)

// Index implements the secondary index over a SQLite pool.
type Index struct {
	pool    pool
	sq      sq.StatementBuilderType
	workers int
}

// Option configures an Index.
type Option func(*Index)

// WithWorkers sets the rebuild fan-out.
func WithWorkers(n int) Option {
	return func(x *Index) {
		if n > 0 {
			x.workers = n
		}
	}
}

// New creates an index over p.
func New(p pool, opts ...Option) *Index {
	x := &Index{
		pool:    p,
		sq:      sq.StatementBuilder.PlaceholderFormat(sq.Question),
		workers: defaultWorkers,
	}
	for _, o := range opts {
		o(x)
	}
	return x
}

// Insert replaces every row of the entry in one transaction.
func (x *Index) Insert(ctx context.Context, e *domdoc.Entry) error {
	rows := rowsFor(e)
	err := x.pool.InTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := x.clearID(ctx, tx, e.ID()); err != nil {
			return err
		}
		return x.write(ctx, tx, e.ID(), e.Updated().Unix(), rows)
	})
	if err != nil {
		return &db.Error{Op: db.OpIndex, Err: err}
	}
	return nil
}

// Remove deletes every row of id. Removing an unknown id is a no-op.
func (x *Index) Remove(ctx context.Context, id string) error {
	err := x.pool.InTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return x.clearID(ctx, tx, id)
	})
	if err != nil {
		return &db.Error{Op: db.OpUnindex, Err: err}
	}
	return nil
}

// Query returns matching ids, most recently updated first, ties by id.
func (x *Index) Query(ctx context.Context, plan query.Plan, page Page) ([]string, error) {
	b := x.sq.Select("id").
		FromSelect(x.matchingIDs(plan), "m").
		OrderBy("updated DESC", "id ASC")
	switch {
	case page.Size > 0:
		b = b.Limit(uint64(page.Size))
		if page.Offset > 0 {
			b = b.Offset(uint64(page.Offset))
		}
	case page.Offset > 0:
		// SQLite accepts OFFSET only after a LIMIT; -1 means unbounded.
		b = b.Suffix("LIMIT -1 OFFSET ?", page.Offset)
	}

	stmt, args, err := b.ToSql()
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}

	var ids []string
	err = x.pool.Do(ctx, func(q sqlite.Querier) error {
		rows, err := q.QueryContext(ctx, stmt, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	return ids, nil
}

// Count returns the number of ids matching plan.
func (x *Index) Count(ctx context.Context, plan query.Plan) (int, error) {
	stmt, args, err := x.sq.Select("COUNT(*)").FromSelect(x.matchingIDs(plan), "m").ToSql()
	if err != nil {
		return 0, &db.Error{Op: db.OpQuery, Err: err}
	}
	var n int
	err = x.pool.Do(ctx, func(q sqlite.Querier) error {
		return q.QueryRowContext(ctx, stmt, args...).Scan(&n)
	})
	if err != nil {
		return 0, &db.Error{Op: db.OpQuery, Err: err}
	}
	return n, nil
}

// MaxNumericID returns the largest indexed id made only of digits.
func (x *Index) MaxNumericID(ctx context.Context) (int64, bool, error) {
	var top sql.NullInt64
	err := x.pool.Do(ctx, func(q sqlite.Querier) error {
		return q.QueryRowContext(ctx,
			`SELECT MAX(CAST(id AS INTEGER)) FROM entries
			 WHERE id <> '' AND id NOT GLOB '*[^0-9]*' AND length(id) <= 18`).Scan(&top)
	})
	if err != nil {
		return 0, false, &db.Error{Op: db.OpQuery, Err: err}
	}
	return top.Int64, top.Valid, nil
}

// Ping checks the index database.
func (x *Index) Ping(ctx context.Context) error {
	return x.pool.Do(ctx, func(q sqlite.Querier) error {
		var one int
		return q.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	})
}

// Source yields the records to index. The context it receives carries the
// rebuild transaction so a store in the same database can read through it.
type Source func(ctx context.Context) iter.Seq2[db.Record, error]

// Rebuild clears the index and re-indexes every record from src in one
// transaction. It returns the number of entries indexed.
func (x *Index) Rebuild(ctx context.Context, src Source) (int, error) {
	var total int
	err := x.pool.InTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM flat`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries`); err != nil {
			return err
		}
		n, err := x.rebuild(ctx, tx, src(ctx))
		total = n
		return err
	})
	if err != nil {
		return 0, &db.Error{Op: db.OpRebuild, Err: err}
	}
	return total, nil
}

func (x *Index) clearID(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM flat WHERE id = ?`, id); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	return err
}

// write inserts the entries row and every leaf row of one id.
func (x *Index) write(ctx context.Context, tx *sql.Tx, id string, updated int64, rows []row) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entries (id, updated) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET updated = excluded.updated`, id, updated); err != nil {
		return err
	}
	for start := 0; start < len(rows); start += insertChunk {
		end := min(start+insertChunk, len(rows))
		b := x.sq.Insert("flat").Columns("id", "path", "kind", "leaf", "text")
		for _, r := range rows[start:end] {
			b = b.Values(id, r.path, r.kind, r.leaf, r.text)
		}
		stmt, args, err := b.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return err
		}
	}
	return nil
}
