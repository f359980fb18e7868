package document

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/jsonstore/internal/domain"
)

// MaxIDLength bounds client-supplied identifiers.
const MaxIDLength = 256

// Entry is a stored document together with its identifier and last update time.
// The body is owned by the Entry; accessors hand out deep copies.
type Entry struct {
	id      string
	body    map[string]any
	updated time.Time
}

// New validates and creates an Entry.
// The body must be a mapping of supported values and must not use the reserved keys.
// Updated is truncated to whole seconds in UTC.
func New(id string, body map[string]any, updated time.Time) (Entry, error) {
	if len(id) > MaxIDLength {
		return Entry{}, fmt.Errorf("entry ID too long (max %d): %w", MaxIDLength, domain.ErrValidation)
	}
	if body == nil {
		return Entry{}, fmt.Errorf("entry body must be a mapping: %w", domain.ErrValidation)
	}
	for _, k := range []string{domain.IDKey, domain.UpdatedKey} {
		if _, ok := body[k]; ok {
			return Entry{}, fmt.Errorf("entry body uses reserved key %q: %w", k, domain.ErrValidation)
		}
	}
	norm, err := Normalize(body)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		id:      id,
		body:    norm.(map[string]any),
		updated: updated.UTC().Truncate(time.Second),
	}, nil
}

// Reconstruct creates an Entry without validation (storage hydration).
func Reconstruct(id string, body map[string]any, updated time.Time) Entry {
	return Entry{id: id, body: body, updated: updated.UTC()}
}

// ID returns the entry identifier.
func (e *Entry) ID() string { return e.id }

// Body returns a deep copy of the document body.
func (e *Entry) Body() map[string]any { return Clone(e.body) }

// Updated returns the last update time.
func (e *Entry) Updated() time.Time { return e.updated }

// WithID returns a copy carrying the given identifier.
func (e *Entry) WithID(id string) Entry {
	return Entry{id: id, body: e.body, updated: e.updated}
}

// Indexed returns the view of the entry the secondary index flattens:
// the body plus the reserved update timestamp. The result is a fresh copy.
func (e *Entry) Indexed() map[string]any {
	m := Clone(e.body)
	if m == nil {
		m = make(map[string]any, 1)
	}
	m[domain.UpdatedKey] = domain.FormatTimestamp(e.updated)
	return m
}

// ParseUpdated accepts a time.Time, its canonical string form or nil.
// Nil and the zero time yield now.
func ParseUpdated(v any, now time.Time) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return now.UTC().Truncate(time.Second), nil
	case time.Time:
		if t.IsZero() {
			return now.UTC().Truncate(time.Second), nil
		}
		return t.UTC().Truncate(time.Second), nil
	case *time.Time:
		if t == nil {
			return now.UTC().Truncate(time.Second), nil
		}
		return ParseUpdated(*t, now)
	case string:
		if t == "" {
			return now.UTC().Truncate(time.Second), nil
		}
		return domain.ParseTimestamp(t)
	default:
		return time.Time{}, fmt.Errorf("updated must be a timestamp, got %T: %w", v, domain.ErrValidation)
	}
}
