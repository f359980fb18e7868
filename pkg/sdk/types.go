package jsonstore

import (
	"time"

	domdoc "github.com/kailas-cloud/jsonstore/internal/domain/document"
	"github.com/kailas-cloud/jsonstore/internal/domain/search/operator"
)

// Reserved query keys.
const (
	// KeyID restricts a query to one identifier or a list of them.
	KeyID = "__id__"
	// KeyUpdated matches the update timestamp in its interchange form.
	KeyUpdated = "__updated__"
)

// Entry is a stored document.
type Entry struct {
	ID      string
	Body    map[string]any
	Updated time.Time
}

// SearchOptions select a page of results.
type SearchOptions struct {
	Offset int
	Size   int  // 0 returns every match
	Like   bool // bare values in the key are LIKE patterns instead of equality
}

// Page is shorthand for SearchOptions{Offset: offset, Size: size}.
func Page(offset, size int) SearchOptions {
	return SearchOptions{Offset: offset, Size: size}
}

// Operator narrows a path in a query key.
type Operator = operator.Operator

// Eq matches values equal to v.
func Eq(v any) Operator { return operator.Eq(v) }

// Ne matches values of the same type as v that differ from it.
func Ne(v any) Operator { return operator.Ne(v) }

// Lt matches numbers or strings ordered before v.
func Lt(v any) Operator { return operator.Lt(v) }

// Lte matches numbers or strings ordered before or equal to v.
func Lte(v any) Operator { return operator.Lte(v) }

// Gt matches numbers or strings ordered after v.
func Gt(v any) Operator { return operator.Gt(v) }

// Gte matches numbers or strings ordered after or equal to v.
func Gte(v any) Operator { return operator.Gte(v) }

// Like matches strings against a SQL LIKE pattern (% and _ wildcards).
func Like(pattern string) Operator { return operator.Match(pattern) }

// Regexp matches leaves whose text form contains a match of pattern.
func Regexp(pattern string) Operator { return operator.Re(pattern) }

func (o SearchOptions) bare() operator.Kind {
	if o.Like {
		return operator.Like
	}
	return operator.Equal
}

func fromInternal(e *domdoc.Entry) Entry {
	return Entry{ID: e.ID(), Body: e.Body(), Updated: e.Updated()}
}
