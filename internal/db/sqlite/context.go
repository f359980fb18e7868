package sqlite

import (
	"context"
	"database/sql"
)

type (
	handleKey struct{}
	txKey     struct{}
)

// WithHandle pins h for every pool call made with the returned context.
// The caller keeps ownership of h and must not share the context across
// goroutines.
func WithHandle(ctx context.Context, h *Handle) context.Context {
	return context.WithValue(ctx, handleKey{}, h)
}

// HandleFrom returns the handle pinned in ctx, if any.
func HandleFrom(ctx context.Context) (*Handle, bool) {
	h, ok := ctx.Value(handleKey{}).(*Handle)
	return h, ok && h != nil
}

// WithTx makes pool calls with the returned context join tx.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom returns the transaction carried by ctx, if any.
func TxFrom(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok && tx != nil
}
