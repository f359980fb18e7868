package document

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/kailas-cloud/jsonstore/internal/domain"
)

// Normalize converts a document value into its canonical stored form:
// map[string]any, []any, string, float64, bool or nil.
// Timestamps become their canonical string, every numeric kind becomes float64.
// Integers beyond ±2^53 have no exact float64 form and are rejected.
func Normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool:
		return t, nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, fmt.Errorf("non-finite number: %w", domain.ErrValidation)
		}
		return t, nil
	case json.Number:
		if !strings.ContainsAny(string(t), ".eE") {
			i, err := t.Int64()
			if err != nil || !domain.ExactInt(i) {
				return nil, fmt.Errorf("integer %s out of range: %w", t, domain.ErrValidation)
			}
			return float64(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %q: %w", t, domain.ErrValidation)
		}
		return Normalize(f)
	case time.Time:
		return domain.FormatTimestamp(t), nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			n, err := Normalize(val)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			n, err := Normalize(val)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}
	return normalizeReflect(reflect.ValueOf(v))
}

func normalizeReflect(rv reflect.Value) (any, error) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if !domain.ExactInt(rv.Int()) {
			return nil, fmt.Errorf("integer %d out of range: %w", rv.Int(), domain.ErrValidation)
		}
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if !domain.ExactUint(rv.Uint()) {
			return nil, fmt.Errorf("integer %d out of range: %w", rv.Uint(), domain.ErrValidation)
		}
		return float64(rv.Uint()), nil
	case reflect.Float32:
		return Normalize(rv.Float())
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return Normalize(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			n, err := Normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("mapping keys must be strings, got %s: %w", rv.Type().Key(), domain.ErrValidation)
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			n, err := Normalize(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = n
		}
		return out, nil
	}
	if !rv.IsValid() {
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported value type %s: %w", rv.Type(), domain.ErrValidation)
}

// Clone deep-copies a normalized body.
func Clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Clone(t)
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return t
	}
}
