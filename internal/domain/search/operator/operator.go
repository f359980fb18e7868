// Package operator defines the closed set of leaf predicates a query key can carry.
package operator

import (
	"fmt"
	"strconv"

	"github.com/kailas-cloud/jsonstore/internal/domain"
)

// Kind enumerates the supported predicates.
type Kind int

// Operator kinds. The zero Kind is invalid.
const (
	Invalid Kind = iota
	Equal
	NotEqual
	LessThan
	LessOrEqual
	GreaterThan
	GreaterOrEqual
	Like
	Regexp
)

var kindNames = map[Kind]string{
	Equal:          "eq",
	NotEqual:       "ne",
	LessThan:       "lt",
	LessOrEqual:    "lte",
	GreaterThan:    "gt",
	GreaterOrEqual: "gte",
	Like:           "like",
	Regexp:         "regexp",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a wire name back to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return Invalid, fmt.Errorf("unsupported operator %q: %w", s, domain.ErrInvalidQuery)
}

// IsOrdering reports whether the kind compares by order.
func (k Kind) IsOrdering() bool {
	return k == LessThan || k == LessOrEqual || k == GreaterThan || k == GreaterOrEqual
}

// Operator is a predicate over a single leaf. It is purely descriptive:
// an operand of the wrong kind is not an error, it simply never matches.
type Operator struct {
	kind    Kind
	operand any
}

// New creates an operator of the given kind.
func New(kind Kind, operand any) Operator { return Operator{kind: kind, operand: operand} }

// Eq matches leaves equal to v.
func Eq(v any) Operator { return New(Equal, v) }

// Ne matches leaves different from v.
func Ne(v any) Operator { return New(NotEqual, v) }

// Lt matches leaves strictly below v.
func Lt(v any) Operator { return New(LessThan, v) }

// Lte matches leaves below or equal to v.
func Lte(v any) Operator { return New(LessOrEqual, v) }

// Gt matches leaves strictly above v.
func Gt(v any) Operator { return New(GreaterThan, v) }

// Gte matches leaves above or equal to v.
func Gte(v any) Operator { return New(GreaterOrEqual, v) }

// Match matches string leaves against a LIKE pattern (% and _ wildcards).
func Match(pattern string) Operator { return New(Like, pattern) }

// Re matches the string form of leaves against a regular expression.
func Re(pattern string) Operator { return New(Regexp, pattern) }

// Kind returns the predicate kind.
func (o Operator) Kind() Kind { return o.kind }

// Operand returns the comparison operand.
func (o Operator) Operand() any { return o.operand }

// String renders the operator for logs.
func (o Operator) String() string {
	return fmt.Sprintf("%s(%v)", o.kind, o.operand)
}

// StringForm renders a scalar leaf or operand the way Regexp sees it.
// Numbers use the shortest exact decimal form; non-scalars report false.
func StringForm(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
