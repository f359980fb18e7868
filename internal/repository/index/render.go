package index

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/kailas-cloud/jsonstore/internal/domain/search/operator"
	"github.com/kailas-cloud/jsonstore/internal/domain/search/query"
)

// Leaf kinds stored in flat.kind.
const (
	kindString = "s"
	kindNumber = "n"
	kindBool   = "b"
)

// Column names qualified with the flat table alias.
const (
	colID   = "f.id"
	colPath = "f.path"
	colKind = "f.kind"
	colLeaf = "f.leaf"
	colText = "f.text"
)

var never = sq.Expr("1 = 0")

// kindOf returns the stored kind of a scalar and its column value.
func kindOf(v any) (string, any, bool) {
	switch t := v.(type) {
	case string:
		return kindString, t, true
	case float64:
		return kindNumber, t, true
	case bool:
		if t {
			return kindBool, int64(1), true
		}
		return kindBool, int64(0), true
	default:
		return "", nil, false
	}
}

// renderOp turns one operator into a condition over a single flat row.
// A kind mismatch renders as a condition that never matches.
func renderOp(op operator.Operator) sq.Sqlizer {
	switch op.Kind() {
	case operator.Equal, operator.NotEqual:
		kind, val, ok := kindOf(op.Operand())
		if !ok {
			return never
		}
		if op.Kind() == operator.Equal {
			return sq.And{sq.Eq{colKind: kind}, sq.Eq{colLeaf: val}}
		}
		return sq.And{sq.Eq{colKind: kind}, sq.NotEq{colLeaf: val}}

	case operator.LessThan, operator.LessOrEqual, operator.GreaterThan, operator.GreaterOrEqual:
		kind, val, ok := kindOf(op.Operand())
		if !ok || kind == kindBool {
			return never
		}
		return sq.And{sq.Eq{colKind: kind}, compare(op.Kind(), val)}

	case operator.Like:
		pattern, ok := op.Operand().(string)
		if !ok {
			return never
		}
		return sq.And{sq.Eq{colKind: kindString}, sq.Like{colLeaf: pattern}}

	case operator.Regexp:
		pattern, ok := operator.StringForm(op.Operand())
		if !ok {
			return never
		}
		return sq.Expr(colText+" REGEXP ?", anchor(pattern))

	default:
		return never
	}
}

// anchor makes a pattern match the whole leaf text.
func anchor(pattern string) string {
	return `^(?:` + pattern + `)$`
}

func compare(kind operator.Kind, val any) sq.Sqlizer {
	switch kind {
	case operator.LessThan:
		return sq.Lt{colLeaf: val}
	case operator.LessOrEqual:
		return sq.LtOrEq{colLeaf: val}
	case operator.GreaterThan:
		return sq.Gt{colLeaf: val}
	default:
		return sq.GtOrEq{colLeaf: val}
	}
}

// renderGroup matches rows at the group's path satisfying any of its operators.
func renderGroup(g query.Group) sq.Sqlizer {
	ors := make(sq.Or, 0, len(g.Ops))
	for _, op := range g.Ops {
		ors = append(ors, renderOp(op))
	}
	return sq.And{sq.Eq{colPath: g.Path}, ors}
}

// matchingIDs selects the ids that satisfy every group of the plan.
// A row matches when it satisfies any group; an id qualifies when the number
// of distinct paths among its matching rows equals the number of groups.
// Each group owns exactly one path, so that is "every group has a match".
func (x *Index) matchingIDs(plan query.Plan) sq.SelectBuilder {
	groups := plan.Groups()
	if len(groups) == 0 {
		b := x.sq.Select("e.id", "e.updated").From("entries e")
		if plan.Restricted() {
			b = b.Where(sq.Eq{"e.id": plan.IDs()})
		}
		return b
	}

	match := make(sq.Or, 0, len(groups))
	for _, g := range groups {
		match = append(match, renderGroup(g))
	}
	b := x.sq.Select(colID+" AS id", "MAX(e.updated) AS updated").
		From("flat f").
		Join("entries e ON e.id = " + colID).
		Where(match)
	if plan.Restricted() {
		b = b.Where(sq.Eq{colID: plan.IDs()})
	}
	return b.GroupBy(colID).Having("COUNT(DISTINCT "+colPath+") = ?", len(groups))
}
