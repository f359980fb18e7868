// Package sqlite owns the SQLite database shared by the secondary index and
// the optional SQLite document backend.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite"

	"github.com/kailas-cloud/jsonstore/internal/db"
)

//go:embed sql/schema.sql
var schemaSQL string

// DefaultPoolSize is used when Options.PoolSize is not positive.
const DefaultPoolSize = 4

// Options configure the database file and its handle pool.
type Options struct {
	PoolSize int
}

// DB is an open SQLite database plus the pool of worker handles over it.
type DB struct {
	sql  *sql.DB
	pool *Pool
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string, opt Options) (*DB, error) {
	size := opt.PoolSize
	if size <= 0 {
		size = DefaultPoolSize
	}

	sqldb, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, &db.Error{Op: db.OpOpen, Err: err}
	}
	// Every connection is owned by a pool handle.
	sqldb.SetMaxOpenConns(size)
	sqldb.SetMaxIdleConns(size)
	sqldb.SetConnMaxLifetime(0)

	if _, err := sqldb.ExecContext(ctx, schemaSQL); err != nil {
		_ = sqldb.Close()
		return nil, &db.Error{Op: db.OpOpen, Err: fmt.Errorf("apply schema: %w", err)}
	}

	return &DB{sql: sqldb, pool: NewPool(sqldb, size)}, nil
}

// dsn enables WAL, a busy timeout and BEGIN IMMEDIATE for every transaction.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// Pool returns the worker handle pool.
func (d *DB) Pool() *Pool { return d.pool }

// Ping checks the database through a pooled handle.
func (d *DB) Ping(ctx context.Context) error {
	return d.pool.Do(ctx, func(q Querier) error {
		var one int
		return q.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	})
}

// Atomic runs fn in one transaction; store and index calls made with the
// context fn receives join it.
func (d *DB) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return d.pool.InTx(ctx, func(ctx context.Context, _ *sql.Tx) error { return fn(ctx) })
}

// Close releases every handle, then the database.
func (d *DB) Close() error {
	perr := d.pool.Close()
	if err := d.sql.Close(); err != nil {
		return err
	}
	return perr
}
