// Package query compiles partial documents ("query keys") into index plans.
//
// A key is flattened exactly like a stored document. Pairs that share a path
// form one group and are OR-ed; distinct groups are AND-ed. The reserved
// identifier key restricts the candidate set instead of producing a group.
// A null can never match, since documents index no null leaves, so it is
// rejected rather than silently dropped.
package query

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"

	"github.com/kailas-cloud/jsonstore/internal/domain"
	"github.com/kailas-cloud/jsonstore/internal/domain/flatten"
	"github.com/kailas-cloud/jsonstore/internal/domain/search/operator"
)

// Group is the disjunction of operators applied to one path.
type Group struct {
	Path string
	Ops  []operator.Operator
}

// Plan is a compiled query key.
type Plan struct {
	ids    []string
	groups []Group
}

// IDs returns the identifier restriction. Nil means unrestricted.
func (p Plan) IDs() []string { return p.ids }

// Restricted reports whether the plan carries an identifier restriction.
func (p Plan) Restricted() bool { return p.ids != nil }

// Groups returns the per-path disjunctions in path order.
func (p Plan) Groups() []Group { return p.groups }

// Predicates returns the total number of operators across all groups.
func (p Plan) Predicates() int {
	n := 0
	for _, g := range p.groups {
		n += len(g.Ops)
	}
	return n
}

// IsEmpty reports whether the plan matches every indexed entry.
func (p Plan) IsEmpty() bool { return p.ids == nil && len(p.groups) == 0 }

// Compile compiles a key, wrapping bare scalars in Equal.
func Compile(key map[string]any) (Plan, error) {
	return CompileAs(key, operator.Equal)
}

// CompileAs compiles a key, wrapping bare scalars in operators of the given kind.
func CompileAs(key map[string]any, bare operator.Kind) (Plan, error) {
	if bare == operator.Invalid {
		bare = operator.Equal
	}

	var plan Plan
	rest := key
	if raw, ok := key[domain.IDKey]; ok {
		ids, err := compileIDs(raw)
		if err != nil {
			return Plan{}, err
		}
		plan.ids = ids
		rest = make(map[string]any, len(key)-1)
		for k, v := range key {
			if k != domain.IDKey {
				rest[k] = v
			}
		}
	}

	index := make(map[string]int)
	for pair := range flatten.FlattenNulls(rest) {
		op, err := compileLeaf(pair, bare)
		if err != nil {
			return Plan{}, err
		}
		i, ok := index[pair.Path]
		if !ok {
			i = len(plan.groups)
			index[pair.Path] = i
			plan.groups = append(plan.groups, Group{Path: pair.Path})
		}
		plan.groups[i].Ops = append(plan.groups[i].Ops, op)
	}
	return plan, nil
}

func compileLeaf(pair flatten.Pair, bare operator.Kind) (operator.Operator, error) {
	switch leaf := pair.Leaf.(type) {
	case operator.Operator:
		return checkOperator(pair.Path, leaf)
	case nil:
		return operator.Operator{}, fmt.Errorf("null at %q matches nothing: %w", pair.Path, domain.ErrInvalidQuery)
	case string, float64, bool:
		if bare == operator.Like || bare == operator.Regexp {
			s, _ := operator.StringForm(leaf)
			return checkOperator(pair.Path, operator.New(bare, s))
		}
		return checkOperator(pair.Path, operator.New(bare, leaf))
	default:
		if err := checkRange(pair.Path, pair.Leaf); err != nil {
			return operator.Operator{}, err
		}
		return operator.Operator{}, fmt.Errorf(
			"unsupported value %T at %q: %w", pair.Leaf, pair.Path, domain.ErrInvalidQuery,
		)
	}
}

// checkRange rejects integers that Scalar left unconverted.
func checkRange(path string, v any) error {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fmt.Errorf("integer %v at %q is beyond ±2^53: %w", v, path, domain.ErrInvalidQuery)
	}
	return nil
}

func checkOperator(path string, op operator.Operator) (operator.Operator, error) {
	if _, ok := op.Operand().(operator.Operator); ok {
		return operator.Operator{}, fmt.Errorf("nested operator at %q: %w", path, domain.ErrInvalidQuery)
	}
	switch op.Kind() {
	case operator.Equal, operator.NotEqual,
		operator.LessThan, operator.LessOrEqual, operator.GreaterThan, operator.GreaterOrEqual,
		operator.Like:
	case operator.Regexp:
		pattern, ok := operator.StringForm(flatten.Scalar(op.Operand()))
		if !ok {
			return operator.Operator{}, fmt.Errorf("regexp operand at %q must be a string: %w", path, domain.ErrInvalidQuery)
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return operator.Operator{}, fmt.Errorf("regexp at %q: %v: %w", path, err, domain.ErrInvalidQuery)
		}
	default:
		return operator.Operator{}, fmt.Errorf("unsupported operator %s at %q: %w", op.Kind(), path, domain.ErrInvalidQuery)
	}
	operand := flatten.Scalar(op.Operand())
	if err := checkRange(path, operand); err != nil {
		return operator.Operator{}, err
	}
	return operator.New(op.Kind(), operand), nil
}

func compileIDs(raw any) ([]string, error) {
	var values []any
	switch rv := reflect.ValueOf(raw); rv.Kind() {
	case reflect.Slice, reflect.Array:
		values = make([]any, rv.Len())
		for i := range values {
			values[i] = rv.Index(i).Interface()
		}
	default:
		values = []any{raw}
	}
	ids := make([]string, 0, len(values))
	for _, v := range values {
		if op, ok := v.(operator.Operator); ok {
			if op.Kind() != operator.Equal {
				return nil, fmt.Errorf("%s supports only equality, got %s: %w", domain.IDKey, op.Kind(), domain.ErrInvalidQuery)
			}
			v = op.Operand()
		}
		id, err := idString(flatten.Scalar(v))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func idString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	default:
		return "", fmt.Errorf("%s must be a string or number, got %T: %w", domain.IDKey, v, domain.ErrInvalidQuery)
	}
}
