package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FilterKind tags the variant held by a Filter.
type FilterKind int

const (
	// NoFilter selects every row.
	NoFilter FilterKind = iota
	// EqualityFilter selects rows whose columns equal the given values.
	EqualityFilter
	// ExpressionFilter selects rows matching one raw SQL predicate.
	ExpressionFilter
	// ExpressionListFilter selects rows matching every raw SQL predicate.
	ExpressionListFilter
)

func (k FilterKind) String() string {
	switch k {
	case NoFilter:
		return "none"
	case EqualityFilter:
		return "equality"
	case ExpressionFilter:
		return "expression"
	case ExpressionListFilter:
		return "expression-list"
	default:
		return "unknown"
	}
}

// Filter constrains the rows read from one table.
// Only the field matching Kind is meaningful.
type Filter struct {
	Kind        FilterKind
	Equals      map[string]interface{}
	Expression  string
	Expressions []string
}

// All returns a filter with no constraint.
func All() Filter {
	return Filter{Kind: NoFilter}
}

// Equal returns an equality filter. The map is copied.
func Equal(values map[string]interface{}) Filter {
	m := make(map[string]interface{}, len(values))
	for k, v := range values {
		m[k] = v
	}
	return Filter{Kind: EqualityFilter, Equals: m}
}

// Expr returns a filter with a single raw predicate.
func Expr(predicate string) Filter {
	return Filter{Kind: ExpressionFilter, Expression: predicate}
}

// Exprs returns a filter that ANDs every raw predicate.
func Exprs(predicates ...string) Filter {
	list := make([]string, len(predicates))
	copy(list, predicates)
	return Filter{Kind: ExpressionListFilter, Expressions: list}
}

// Columns returns the equality columns in sorted order.
func (f Filter) Columns() []string {
	cols := make([]string, 0, len(f.Equals))
	for c := range f.Equals {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Key returns the canonical form of the filter. Two filters that select the
// same rows by construction have the same key: equality columns are sorted,
// values normalized and expression lists sorted.
func (f Filter) Key() string {
	switch f.Kind {
	case EqualityFilter:
		var sb strings.Builder
		sb.WriteString("eq")
		for _, col := range f.Columns() {
			sb.WriteByte('|')
			sb.WriteString(strconv.Quote(col))
			sb.WriteByte('=')
			sb.WriteString(CanonicalValue(f.Equals[col]))
		}
		return sb.String()
	case ExpressionFilter:
		return "expr|" + strconv.Quote(f.Expression)
	case ExpressionListFilter:
		list := make([]string, len(f.Expressions))
		for i, e := range f.Expressions {
			list[i] = strconv.Quote(e)
		}
		sort.Strings(list)
		return "exprs|" + strings.Join(list, "|")
	default:
		return "all"
	}
}

func (f Filter) String() string {
	switch f.Kind {
	case EqualityFilter:
		parts := make([]string, 0, len(f.Equals))
		for _, col := range f.Columns() {
			parts = append(parts, fmt.Sprintf("%s=%v", col, f.Equals[col]))
		}
		return strings.Join(parts, ", ")
	case ExpressionFilter:
		return f.Expression
	case ExpressionListFilter:
		return strings.Join(f.Expressions, " AND ")
	default:
		return "<all rows>"
	}
}

// CanonicalValue renders a value so that equal values render identically.
// Numeric strings are not merged with numbers: "3" and 3 stay distinct.
func CanonicalValue(v interface{}) string {
	switch n := NormalizeValue(v).(type) {
	case nil:
		return "null"
	case int64:
		return "i:" + strconv.FormatInt(n, 10)
	case uint64:
		return "i:" + strconv.FormatUint(n, 10)
	case float64:
		return "f:" + strconv.FormatFloat(n, 'g', -1, 64)
	case string:
		return "s:" + strconv.Quote(n)
	case bool:
		return "b:" + strconv.FormatBool(n)
	case time.Time:
		return "t:" + n.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return fmt.Sprintf("%T:%s", n, n.String())
	default:
		return fmt.Sprintf("%T:%v", n, n)
	}
}
