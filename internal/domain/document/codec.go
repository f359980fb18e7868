package document

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// record is the envelope persisted in a DocumentStore.
type record struct {
	Body    map[string]any `msgpack:"b"`
	Updated int64          `msgpack:"u"`
}

// Marshal encodes an entry into the byte form kept by document stores.
// The identifier is the store key and is not part of the payload.
func Marshal(e *Entry) ([]byte, error) {
	data, err := msgpack.Marshal(record{Body: e.body, Updated: e.updated.Unix()})
	if err != nil {
		return nil, fmt.Errorf("marshal entry %s: %w", e.id, err)
	}
	return data, nil
}

// Unmarshal decodes bytes produced by Marshal.
func Unmarshal(id string, data []byte) (Entry, error) {
	var r record
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return Entry{}, fmt.Errorf("unmarshal entry %s: %w", id, err)
	}
	body, err := Normalize(r.Body)
	if err != nil {
		return Entry{}, fmt.Errorf("decode entry %s: %w", id, err)
	}
	m, _ := body.(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return Reconstruct(id, m, time.Unix(r.Updated, 0)), nil
}
