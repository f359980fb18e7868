package entry

import (
	"context"
	"iter"

	"github.com/kailas-cloud/jsonstore/internal/db"
	domdoc "github.com/kailas-cloud/jsonstore/internal/domain/document"
	"github.com/kailas-cloud/jsonstore/internal/domain/search/query"
	"github.com/kailas-cloud/jsonstore/internal/repository/index"
)

// Store is the primary document storage.
type Store interface {
	Get(ctx context.Context, id string) ([]byte, error)
	Insert(ctx context.Context, id string, data []byte) error
	Put(ctx context.Context, id string, data []byte) error
	Delete(ctx context.Context, id string) error
	Iterate(ctx context.Context) iter.Seq2[db.Record, error]
}

// Index is the secondary index over stored entries.
type Index interface {
	Insert(ctx context.Context, e *domdoc.Entry) error
	Remove(ctx context.Context, id string) error
	Query(ctx context.Context, plan query.Plan, page index.Page) ([]string, error)
	Count(ctx context.Context, plan query.Plan) (int, error)
	Rebuild(ctx context.Context, src index.Source) (int, error)
}

// Transactor runs fn so that store and index writes made with the context it
// receives commit or roll back together.
type Transactor interface {
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
}

// IDGenerator assigns identifiers to entries created without one.
type IDGenerator interface {
	Next(ctx context.Context) (string, error)
}

// idAdvancer is implemented by generators that can skip past ids already
// present in the store.
type idAdvancer interface {
	Advance(top int64)
}

// Pinger checks a dependency's availability.
type Pinger interface {
	Ping(ctx context.Context) error
}
