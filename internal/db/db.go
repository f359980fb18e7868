package db

import (
	"context"
	"iter"
)

// Record is one stored document as seen by Iterate.
type Record struct {
	ID   string
	Data []byte
}

// DocumentStore is the primary id -> bytes map behind the entry manager.
// Implementations must be safe for concurrent use.
type DocumentStore interface {
	// Get returns the stored bytes or ErrKeyNotFound.
	Get(ctx context.Context, id string) ([]byte, error)
	// Insert stores data only if id is free, otherwise returns ErrKeyExists.
	Insert(ctx context.Context, id string, data []byte) error
	// Put stores data, replacing any previous value.
	Put(ctx context.Context, id string, data []byte) error
	// Delete removes id or returns ErrKeyNotFound.
	Delete(ctx context.Context, id string) error
	// Iterate yields every stored record. A non-nil error ends the sequence.
	Iterate(ctx context.Context) iter.Seq2[Record, error]
	Close() error
}

// Pinger checks backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
