package query

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/jsonstore/internal/domain"
	"github.com/kailas-cloud/jsonstore/internal/domain/search/operator"
)

// OperatorPrefix marks an operator object in the wire form of a query key,
// e.g. {"price": {"$gt": 5}}.
const OperatorPrefix = "$"

// Decode converts a decoded JSON query key into the form Compile expects:
// single-entry objects whose key starts with OperatorPrefix become Operators.
func Decode(raw any) (map[string]any, error) {
	if raw == nil {
		return map[string]any{}, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("query key must be a mapping, got %T: %w", raw, domain.ErrInvalidQuery)
	}
	out, err := decodeValue(m)
	if err != nil {
		return nil, err
	}
	if op, ok := out.(operator.Operator); ok {
		return nil, fmt.Errorf("query key cannot be a bare operator %s: %w", op, domain.ErrInvalidQuery)
	}
	return out.(map[string]any), nil
}

func decodeValue(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if op, ok, err := decodeOperator(t); ok || err != nil {
			return op, err
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			d, err := decodeValue(val)
			if err != nil {
				return nil, err
			}
			out[k] = d
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			d, err := decodeValue(val)
			if err != nil {
				return nil, err
			}
			out[i] = d
		}
		return out, nil
	default:
		return v, nil
	}
}

func decodeOperator(m map[string]any) (operator.Operator, bool, error) {
	hasOp := false
	for k := range m {
		if strings.HasPrefix(k, OperatorPrefix) {
			hasOp = true
			break
		}
	}
	if !hasOp {
		return operator.Operator{}, false, nil
	}
	if len(m) != 1 {
		return operator.Operator{}, false, fmt.Errorf(
			"operator object must have exactly one key, got %d: %w", len(m), domain.ErrInvalidQuery,
		)
	}
	for k, operand := range m {
		kind, err := operator.ParseKind(strings.TrimPrefix(k, OperatorPrefix))
		if err != nil {
			return operator.Operator{}, false, err
		}
		switch operand.(type) {
		case map[string]any, []any:
			return operator.Operator{}, false, fmt.Errorf(
				"operand of %s must be a scalar: %w", k, domain.ErrInvalidQuery,
			)
		}
		return operator.New(kind, operand), true, nil
	}
	return operator.Operator{}, false, nil
}
