package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/kailas-cloud/jsonstore/internal/db"
)

// Querier is the subset of *sql.Conn and *sql.Tx used by callers.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Handle is one worker's private connection. It is opened on first use and
// kept until the pool closes. A handle is never used by two goroutines at once.
type Handle struct {
	id   int
	db   *sql.DB
	conn *sql.Conn
}

// ID identifies the handle within its pool.
func (h *Handle) ID() int { return h.id }

// Open reports whether the underlying connection has been established.
func (h *Handle) Open() bool { return h.conn != nil }

func (h *Handle) connect(ctx context.Context) (*sql.Conn, error) {
	if h.conn != nil {
		return h.conn, nil
	}
	c, err := h.db.Conn(ctx)
	if err != nil {
		return nil, &db.Error{Op: db.OpOpen, Err: err}
	}
	h.conn = c
	return c, nil
}

func (h *Handle) close() error {
	if h.conn == nil {
		return nil
	}
	err := h.conn.Close()
	h.conn = nil
	return err
}

// Pool hands out worker handles. Acquire blocks until a handle is free or
// ctx is done.
type Pool struct {
	free    chan *Handle
	handles []*Handle

	mu     sync.Mutex
	closed bool
}

// NewPool prepares size handles over sqldb. No connection is opened yet.
func NewPool(sqldb *sql.DB, size int) *Pool {
	p := &Pool{free: make(chan *Handle, size), handles: make([]*Handle, size)}
	for i := range size {
		h := &Handle{id: i, db: sqldb}
		p.handles[i] = h
		p.free <- h
	}
	return p
}

// Size returns the number of handles.
func (p *Pool) Size() int { return len(p.handles) }

// Acquire checks out a handle for exclusive use.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, db.ErrClosed
	}
	select {
	case h, ok := <-p.free:
		if !ok {
			return nil, db.ErrClosed
		}
		return h, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire handle: %w", ctx.Err())
	}
}

// Release returns h to the pool.
func (p *Pool) Release(h *Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = h.close()
		return
	}
	p.free <- h
}

// Close marks the pool closed and releases every idle handle's connection.
// Handles still checked out are closed when released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.free)
	p.mu.Unlock()

	var errs []error
	for h := range p.free {
		if err := h.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Do runs fn against the transaction or handle carried by ctx, or against a
// freshly acquired handle that is released afterwards.
func (p *Pool) Do(ctx context.Context, fn func(Querier) error) error {
	if tx, ok := TxFrom(ctx); ok {
		return fn(tx)
	}
	h, pinned := HandleFrom(ctx)
	if !pinned {
		var err error
		if h, err = p.Acquire(ctx); err != nil {
			return err
		}
		defer p.Release(h)
	}
	conn, err := h.connect(ctx)
	if err != nil {
		return err
	}
	return fn(conn)
}

// InTx runs fn in one transaction. When ctx already carries a transaction fn
// joins it and the outermost caller commits. The ctx passed to fn carries the
// transaction so nested Do and InTx calls share it.
func (p *Pool) InTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if tx, ok := TxFrom(ctx); ok {
		return fn(ctx, tx)
	}
	h, pinned := HandleFrom(ctx)
	if !pinned {
		var err error
		if h, err = p.Acquire(ctx); err != nil {
			return err
		}
		defer p.Release(h)
	}
	conn, err := h.connect(ctx)
	if err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return &db.Error{Op: db.OpBegin, Err: err}
	}
	if err := fn(WithTx(WithHandle(ctx, h), tx), tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return &db.Error{Op: db.OpCommit, Err: err}
	}
	return nil
}
