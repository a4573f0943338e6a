package cmd

import (
	"fmt"
	"strings"

	"github.com/dbsmedya/dcp/internal/types"
)

// parseFilter turns positional column=value arguments and --where
// predicates into a row filter. The two forms cannot be mixed.
func parseFilter(args, where []string) (types.Filter, error) {
	if len(args) > 0 && len(where) > 0 {
		return types.Filter{}, fmt.Errorf("column=value arguments cannot be combined with --where")
	}

	switch len(where) {
	case 0:
	case 1:
		return types.Expr(where[0]), nil
	default:
		return types.Exprs(where...), nil
	}

	if len(args) == 0 {
		return types.Filter{}, fmt.Errorf("at least one column=value argument or --where predicate is required")
	}

	values := make(map[string]interface{}, len(args))
	for _, arg := range args {
		column, value, ok := strings.Cut(arg, "=")
		column = strings.TrimSpace(column)
		if !ok || column == "" {
			return types.Filter{}, fmt.Errorf("invalid filter %q: expected column=value", arg)
		}
		if _, dup := values[column]; dup {
			return types.Filter{}, fmt.Errorf("column %q given more than once", column)
		}
		values[column] = value
	}
	return types.Equal(values), nil
}
