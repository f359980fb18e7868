// Package flatten turns nested documents into (path, leaf) pairs.
//
// Mapping keys are joined with Separator. List elements add no path segment,
// so every element of a list under "k" is reported at path "k".
package flatten

import (
	"iter"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/kailas-cloud/jsonstore/internal/domain"
)

// Separator joins path segments.
const Separator = "."

var keyEscaper = strings.NewReplacer(`\`, `\\`, `.`, `\.`)

// Pair is one scalar leaf and the path that reaches it.
type Pair struct {
	Path string
	Leaf any
}

// EscapeKey escapes the separator (and the escape character) inside a single key.
func EscapeKey(key string) string {
	if !strings.ContainsAny(key, `.\`) {
		return key
	}
	return keyEscaper.Replace(key)
}

// Join escapes and joins raw keys into a path.
func Join(keys ...string) string {
	esc := make([]string, len(keys))
	for i, k := range keys {
		esc[i] = EscapeKey(k)
	}
	return strings.Join(esc, Separator)
}

// Flatten yields one Pair per leaf reachable from v. Prefix keys are joined
// in front of every path. Nil leaves are skipped. The sequence can be ranged
// over any number of times.
//
// Typed slices, arrays, string-keyed maps and pointers are walked like their
// []any and map[string]any counterparts.
func Flatten(v any, prefix ...string) iter.Seq[Pair] {
	return flatten(v, false, prefix)
}

// FlattenNulls is Flatten with nil leaves reported as Pairs with a nil Leaf.
func FlattenNulls(v any, prefix ...string) iter.Seq[Pair] {
	return flatten(v, true, prefix)
}

func flatten(v any, nulls bool, prefix []string) iter.Seq[Pair] {
	w := walker{nulls: nulls}
	base := Join(prefix...)
	return func(yield func(Pair) bool) {
		w.walk(v, base, yield)
	}
}

// Collect flattens v into a slice.
func Collect(v any, prefix ...string) []Pair {
	return slices.Collect(Flatten(v, prefix...))
}

type walker struct {
	nulls bool
}

func (w walker) walk(v any, path string, yield func(Pair) bool) bool {
	switch t := v.(type) {
	case nil:
		return w.null(path, yield)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			if !w.walk(t[k], child(path, k), yield) {
				return false
			}
		}
		return true
	case []any:
		for _, item := range t {
			if !w.walk(item, path, yield) {
				return false
			}
		}
		return true
	case string, bool, float64, time.Time:
		return yield(Pair{Path: path, Leaf: Scalar(v)})
	}
	return w.walkReflect(v, path, yield)
}

func (w walker) walkReflect(v any, path string, yield func(Pair) bool) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := range rv.Len() {
			if !w.walk(rv.Index(i).Interface(), path, yield) {
				return false
			}
		}
		return true
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		keys := rv.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int { return strings.Compare(a.String(), b.String()) })
		for _, k := range keys {
			if !w.walk(rv.MapIndex(k).Interface(), child(path, k.String()), yield) {
				return false
			}
		}
		return true
	case reflect.Pointer:
		if rv.IsNil() {
			return w.null(path, yield)
		}
		return w.walk(rv.Elem().Interface(), path, yield)
	}
	return yield(Pair{Path: path, Leaf: Scalar(v)})
}

func (w walker) null(path string, yield func(Pair) bool) bool {
	if !w.nulls {
		return true
	}
	return yield(Pair{Path: path})
}

func child(path, key string) string {
	if path == "" {
		return EscapeKey(key)
	}
	return path + Separator + EscapeKey(key)
}

// Scalar canonicalizes a leaf: timestamps become their interchange string,
// every integer and float kind becomes float64. Integers beyond ±2^53 and
// other values pass through unchanged.
func Scalar(v any) any {
	switch t := v.(type) {
	case string, bool, float64:
		return t
	case time.Time:
		return domain.FormatTimestamp(t)
	case *time.Time:
		if t == nil {
			return nil
		}
		return domain.FormatTimestamp(*t)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if !domain.ExactInt(rv.Int()) {
			return v
		}
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if !domain.ExactUint(rv.Uint()) {
			return v
		}
		return float64(rv.Uint())
	case reflect.Float32:
		return rv.Float()
	default:
		return v
	}
}
