package entry

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const lockStripes = 64

// stripedLocks serializes writers of the same id without a lock per id.
// Different ids may share a stripe; that only costs parallelism.
type stripedLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *stripedLocks) lock(id string) func() {
	m := &l.stripes[xxhash.Sum64String(id)%lockStripes]
	m.Lock()
	return m.Unlock
}
