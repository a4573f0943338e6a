// Package walker computes the relational closure of a set of rows: every row
// they reference, transitively, and every row that references them.
package walker

import (
	"context"
	"iter"

	"github.com/dbsmedya/dcp/internal/graph"
	"github.com/dbsmedya/dcp/internal/logger"
	"github.com/dbsmedya/dcp/internal/types"
)

// QueryService returns the rows of a table that match a filter.
type QueryService interface {
	Query(ctx context.Context, table string, filter types.Filter) iter.Seq2[types.Row, error]
}

// Walker traverses a schema graph, pulling rows from a QueryService.
// A Walker holds no traversal state and may run several Data calls.
type Walker struct {
	graph *graph.Graph
	rows  QueryService
	log   *logger.Logger
}

// New creates a Walker.
func New(g *graph.Graph, rows QueryService, log *logger.Logger) *Walker {
	if log == nil {
		log = logger.NewNop()
	}
	return &Walker{graph: g, rows: rows, log: log}
}

// Data yields the rows of table matching filter together with their
// closure. Every row is preceded by the rows it references, except where a
// reference cycle makes that impossible, and each row is yielded once.
//
// The walk is lazy: nothing is queried until iteration starts and it stops
// as soon as the consumer does. On failure a single error is yielded and
// the walk ends; rows already yielded stay yielded.
func (w *Walker) Data(ctx context.Context, table string, filter types.Filter) iter.Seq2[types.Row, error] {
	return func(yield func(types.Row, error) bool) {
		if !w.graph.HasTable(table) {
			yield(types.Row{}, types.Errorf(types.SchemaError, "walk", "unknown table %q", table))
			return
		}

		t := &traversal{
			ctx:     ctx,
			graph:   w.graph,
			rows:    w.rows,
			log:     w.log,
			yield:   yield,
			visited: make(map[string]map[string]struct{}),
			emitted: make(map[string]struct{}),
		}
		t.query(table, filter, func(row types.Row) bool {
			return t.visit(table, row)
		})
	}
}

// traversal is the state of one Data call. Every method returns false once
// the walk must stop, either because the consumer stopped or an error was
// yielded.
type traversal struct {
	ctx   context.Context
	graph *graph.Graph
	rows  QueryService
	log   *logger.Logger
	yield func(types.Row, error) bool

	// table -> filter keys already issued
	visited map[string]map[string]struct{}
	// row identities already yielded
	emitted map[string]struct{}
}

// query issues (table, filter) unless it was issued before and calls fn
// for each returned row.
func (t *traversal) query(table string, filter types.Filter, fn func(types.Row) bool) bool {
	if err := t.ctx.Err(); err != nil {
		return t.fail(types.Wrap(types.QueryServiceError, "walk", err))
	}

	key := filter.Key()
	seen, ok := t.visited[table]
	if !ok {
		seen = make(map[string]struct{})
		t.visited[table] = seen
	}
	if _, dup := seen[key]; dup {
		return true
	}
	seen[key] = struct{}{}

	for row, err := range t.rows.Query(t.ctx, table, filter) {
		if err != nil {
			return t.fail(types.Wrap(types.QueryServiceError, "walk", err))
		}
		if !fn(row) {
			return false
		}
	}
	return true
}

// visit handles a root or descendant row: its ancestors, the row, then its
// descendants.
func (t *traversal) visit(table string, row types.Row) bool {
	return t.ancestors(table, row) &&
		t.emit(row) &&
		t.descendants(table, row)
}

// ancestors yields every row that row references, each after its own
// ancestors. Siblings of ancestors are not visited.
func (t *traversal) ancestors(table string, row types.Row) bool {
	for _, edge := range t.graph.ParentsOf(table) {
		filter, ok, err := referencedFilter(edge, row)
		if err != nil {
			return t.fail(err)
		}
		if !ok {
			t.log.Debugw("null reference, edge skipped", "edge", edge.String())
			continue
		}

		cont := t.query(edge.To, filter, func(parent types.Row) bool {
			return t.ancestors(edge.To, parent) && t.emit(parent)
		})
		if !cont {
			return false
		}
	}
	return true
}

// descendants visits every row that references row.
func (t *traversal) descendants(table string, row types.Row) bool {
	for _, edge := range t.graph.ChildrenOf(table) {
		filter, ok, err := referencingFilter(edge, row)
		if err != nil {
			return t.fail(err)
		}
		if !ok {
			t.log.Debugw("null key, edge skipped", "edge", edge.String())
			continue
		}

		cont := t.query(edge.From, filter, func(child types.Row) bool {
			return t.visit(edge.From, child)
		})
		if !cont {
			return false
		}
	}
	return true
}

func (t *traversal) emit(row types.Row) bool {
	id := row.Identity()
	if _, dup := t.emitted[id]; dup {
		return true
	}
	t.emitted[id] = struct{}{}
	return t.yield(row, nil)
}

func (t *traversal) fail(err error) bool {
	t.yield(types.Row{}, err)
	return false
}

// referencedFilter selects the rows of edge.To that row (of edge.From)
// points at. ok is false when a referencing column is NULL.
func referencedFilter(edge *graph.Edge, row types.Row) (types.Filter, bool, error) {
	values := make(map[string]interface{}, len(edge.Mapping))
	for _, pair := range edge.Mapping {
		v, present := row.Data[pair.From]
		if !present {
			return types.Filter{}, false, missingColumn(edge, row, pair.From)
		}
		if v == nil {
			return types.Filter{}, false, nil
		}
		values[pair.To] = v
	}
	return types.Filter{Kind: types.EqualityFilter, Equals: values}, true, nil
}

// referencingFilter selects the rows of edge.From that point at row (of
// edge.To). ok is false when a referenced column is NULL.
func referencingFilter(edge *graph.Edge, row types.Row) (types.Filter, bool, error) {
	values := make(map[string]interface{}, len(edge.Mapping))
	for _, pair := range edge.Mapping {
		v, present := row.Data[pair.To]
		if !present {
			return types.Filter{}, false, missingColumn(edge, row, pair.To)
		}
		if v == nil {
			return types.Filter{}, false, nil
		}
		values[pair.From] = v
	}
	return types.Filter{Kind: types.EqualityFilter, Equals: values}, true, nil
}

func missingColumn(edge *graph.Edge, row types.Row, column string) error {
	return types.Errorf(types.SchemaError, "walk",
		"edge %s: column %q missing from %s row", edge.String(), column, row.Table)
}
