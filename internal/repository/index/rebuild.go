package index

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/kailas-cloud/jsonstore/internal/db"
	domdoc "github.com/kailas-cloud/jsonstore/internal/domain/document"
)

// rebuildBatch is how many records are decoded in parallel before the
// transaction owner writes them.
const rebuildBatch = 512

type built struct {
	id      string
	updated int64
	rows    []row
	err     error
}

// rebuild reads records in batches, decodes and flattens each batch on an
// ants pool, then writes it from the calling goroutine. Only the caller
// touches tx.
func (x *Index) rebuild(ctx context.Context, tx *sql.Tx, records iter.Seq2[db.Record, error]) (int, error) {
	workers, err := ants.NewPool(x.workers)
	if err != nil {
		return 0, fmt.Errorf("create worker pool: %w", err)
	}
	defer workers.Release()

	total := 0
	batch := make([]db.Record, 0, rebuildBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		out, err := x.decodeBatch(workers, batch)
		if err != nil {
			return err
		}
		for _, b := range out {
			if b.err != nil {
				return b.err
			}
			if err := x.write(ctx, tx, b.id, b.updated, b.rows); err != nil {
				return err
			}
		}
		total += len(out)
		batch = batch[:0]
		return nil
	}

	for rec, err := range records {
		if err != nil {
			return 0, err
		}
		batch = append(batch, rec)
		if len(batch) == rebuildBatch {
			if err := flush(); err != nil {
				return 0, err
			}
		}
	}
	if err := flush(); err != nil {
		return 0, err
	}
	return total, nil
}

func (x *Index) decodeBatch(workers *ants.Pool, batch []db.Record) ([]built, error) {
	out := make([]built, len(batch))
	var wg sync.WaitGroup
	for i, rec := range batch {
		wg.Add(1)
		err := workers.Submit(func() {
			defer wg.Done()
			e, err := domdoc.Unmarshal(rec.ID, rec.Data)
			if err != nil {
				out[i] = built{id: rec.ID, err: err}
				return
			}
			out[i] = built{id: rec.ID, updated: e.Updated().Unix(), rows: rowsFor(&e)}
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("submit: %w", err)
		}
	}
	wg.Wait()
	return out, nil
}
