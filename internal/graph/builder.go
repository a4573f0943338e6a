package graph

import (
	"github.com/dbsmedya/dcp/internal/config"
	"github.com/dbsmedya/dcp/internal/logger"
	"github.com/dbsmedya/dcp/internal/types"
)

// Builder constructs a schema graph from reflected metadata and the manual
// link/unlink directives of a database.
type Builder struct {
	meta    types.Metadata
	links   []config.Directive
	unlinks []config.Directive
	log     *logger.Logger
}

// NewBuilder creates a new graph builder for the given metadata.
func NewBuilder(meta types.Metadata) *Builder {
	return &Builder{meta: meta, log: logger.NewNop()}
}

// WithLinks sets directives that add edges.
func (b *Builder) WithLinks(links []config.Directive) *Builder {
	b.links = links
	return b
}

// WithUnlinks sets directives that remove edges.
func (b *Builder) WithUnlinks(unlinks []config.Directive) *Builder {
	b.unlinks = unlinks
	return b
}

// WithLogger sets the logger used for skipped foreign keys.
func (b *Builder) WithLogger(log *logger.Logger) *Builder {
	if log != nil {
		b.log = log
	}
	return b
}

// Build constructs the graph. Tables become nodes in name order, declared
// foreign keys are merged into edges, then link directives are merged and
// finally unlink directives remove whole edges.
func (b *Builder) Build() (*Graph, error) {
	g := newGraph()

	names := b.meta.TableNames()
	for _, name := range names {
		g.addTable(b.meta[name])
	}

	for _, name := range names {
		b.addForeignKeys(g, b.meta[name])
	}

	for _, d := range b.links {
		if err := b.check("link", d); err != nil {
			return nil, err
		}
		g.mergeEdge(d.ChildTable, d.ParentTable, ColumnPair{From: d.ChildColumn, To: d.ParentColumn})
	}

	for _, d := range b.unlinks {
		if err := b.check("unlink", d); err != nil {
			return nil, err
		}
		if !g.removeEdge(d.ChildTable, d.ParentTable) {
			b.log.Debugw("unlink matched no edge", "directive", d.String())
		}
	}

	return g, nil
}

func (b *Builder) addForeignKeys(g *Graph, table *types.TableMeta) {
	for _, fk := range table.ForeignKeys {
		if b.meta.Table(fk.ReferencedTable) == nil {
			b.log.WithTable(table.Name).Warnw("skipping foreign key to unknown table",
				"constraint", fk.Name,
				"referenced_table", fk.ReferencedTable)
			continue
		}
		if len(fk.Columns) != len(fk.ReferencedColumns) {
			b.log.WithTable(table.Name).Warnw("skipping foreign key with mismatched columns",
				"constraint", fk.Name,
				"columns", fk.Columns,
				"referenced_columns", fk.ReferencedColumns)
			continue
		}

		pairs := make([]ColumnPair, len(fk.Columns))
		for i := range fk.Columns {
			pairs[i] = ColumnPair{From: fk.Columns[i], To: fk.ReferencedColumns[i]}
		}
		g.mergeEdge(table.Name, fk.ReferencedTable, pairs...)
	}
}

// check verifies that a directive names existing tables and columns.
func (b *Builder) check(op string, d config.Directive) error {
	refs := []struct{ table, column string }{
		{d.ChildTable, d.ChildColumn},
		{d.ParentTable, d.ParentColumn},
	}
	for _, ref := range refs {
		meta := b.meta.Table(ref.table)
		if meta == nil {
			return types.Errorf(types.SchemaError, op,
				"%q names unknown table %q", d.String(), ref.table)
		}
		if !meta.HasColumn(ref.column) {
			return types.Errorf(types.SchemaError, op,
				"%q names unknown column %q in table %q", d.String(), ref.column, ref.table)
		}
	}
	return nil
}

// Build is a convenience function that builds a graph without a logger.
func Build(meta types.Metadata, links, unlinks []config.Directive) (*Graph, error) {
	return NewBuilder(meta).WithLinks(links).WithUnlinks(unlinks).Build()
}
