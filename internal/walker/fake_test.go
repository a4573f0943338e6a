package walker

import (
	"context"
	"errors"
	"iter"
	"sort"

	"github.com/dbsmedya/dcp/internal/types"
)

// fakeRows is an in-memory QueryService that records every query it serves.
type fakeRows struct {
	meta   types.Metadata
	tables map[string][]map[string]interface{}
	calls  []string
	failOn string // table whose query fails
	// predicates backs expression filters
	predicates map[string]func(map[string]interface{}) bool
}

func newFakeRows(meta types.Metadata) *fakeRows {
	return &fakeRows{
		meta:       meta,
		tables:     map[string][]map[string]interface{}{},
		predicates: map[string]func(map[string]interface{}) bool{},
	}
}

func (f *fakeRows) insert(table string, data map[string]interface{}) {
	normalized := make(map[string]interface{}, len(data))
	for k, v := range data {
		normalized[k] = types.NormalizeValue(v)
	}
	f.tables[table] = append(f.tables[table], normalized)
}

func (f *fakeRows) Query(ctx context.Context, table string, filter types.Filter) iter.Seq2[types.Row, error] {
	return func(yield func(types.Row, error) bool) {
		f.calls = append(f.calls, table+" "+filter.Key())
		if table == f.failOn {
			yield(types.Row{}, errors.New("connection lost"))
			return
		}

		var pk []string
		if m := f.meta.Table(table); m != nil {
			pk = m.PrimaryKey
		}
		for _, data := range f.tables[table] {
			if !f.matches(filter, data) {
				continue
			}
			if !yield(types.NewRow(table, pk, data), nil) {
				return
			}
		}
	}
}

func (f *fakeRows) matches(filter types.Filter, data map[string]interface{}) bool {
	switch filter.Kind {
	case types.EqualityFilter:
		for col, want := range filter.Equals {
			if types.CanonicalValue(data[col]) != types.CanonicalValue(want) {
				return false
			}
		}
		return true
	case types.ExpressionFilter:
		return f.predicates[filter.Expression](data)
	case types.ExpressionListFilter:
		for _, e := range filter.Expressions {
			if !f.predicates[e](data) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func (f *fakeRows) queriesFor(table string) int {
	n := 0
	for _, c := range f.calls {
		if len(c) > len(table) && c[:len(table)+1] == table+" " {
			n++
		}
	}
	return n
}

func identities(rows []types.Row) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.Table + "#" + types.CanonicalValue(r.PK["id"])
	}
	return ids
}

func sortedCopy(s []string) []string {
	c := append([]string(nil), s...)
	sort.Strings(c)
	return c
}
