// Package graph provides the schema dependency graph: tables as nodes and
// foreign-key relations, reflected or declared by hand, as edges.
package graph

import (
	"github.com/elliotchance/orderedmap/v2"

	"github.com/dbsmedya/dcp/internal/types"
)

// ColumnPair maps a referencing column onto the column it references.
type ColumnPair struct {
	From string // column in the referencing table
	To   string // column in the referenced table
}

// Edge is a directed relation: rows of From hold columns that reference
// rows of To. Edges between the same pair of tables carry the union of
// their column mappings.
type Edge struct {
	From    string
	To      string
	Mapping []ColumnPair
}

// HasPair reports whether the mapping already contains pair.
func (e *Edge) HasPair(pair ColumnPair) bool {
	for _, p := range e.Mapping {
		if p == pair {
			return true
		}
	}
	return false
}

// FromColumns returns the referencing columns in mapping order.
func (e *Edge) FromColumns() []string {
	cols := make([]string, len(e.Mapping))
	for i, p := range e.Mapping {
		cols[i] = p.From
	}
	return cols
}

// ToColumns returns the referenced columns in mapping order.
func (e *Edge) ToColumns() []string {
	cols := make([]string, len(e.Mapping))
	for i, p := range e.Mapping {
		cols[i] = p.To
	}
	return cols
}

// IsSelfReference reports whether the edge points back at its own table.
func (e *Edge) IsSelfReference() bool {
	return e.From == e.To
}

type edgeKey struct {
	from string
	to   string
}

type adjacency = orderedmap.OrderedMap[string, *orderedmap.OrderedMap[string, *Edge]]

// Graph is the schema dependency graph. It is immutable once Build returns
// and may be shared between goroutines for reading. Edges handed out by its
// accessors must be treated as read-only.
type Graph struct {
	tables   *orderedmap.OrderedMap[string, *types.TableMeta]
	parents  *adjacency // from -> to -> edge
	children *adjacency // to -> from -> edge
	edges    *orderedmap.OrderedMap[edgeKey, *Edge]
}

func newGraph() *Graph {
	return &Graph{
		tables:   orderedmap.NewOrderedMap[string, *types.TableMeta](),
		parents:  orderedmap.NewOrderedMap[string, *orderedmap.OrderedMap[string, *Edge]](),
		children: orderedmap.NewOrderedMap[string, *orderedmap.OrderedMap[string, *Edge]](),
		edges:    orderedmap.NewOrderedMap[edgeKey, *Edge](),
	}
}

func (g *Graph) addTable(meta *types.TableMeta) {
	g.tables.Set(meta.Name, meta)
}

// mergeEdge adds pairs to the edge from -> to, creating it when needed.
// Pairs already present are ignored.
func (g *Graph) mergeEdge(from, to string, pairs ...ColumnPair) *Edge {
	key := edgeKey{from: from, to: to}
	edge, ok := g.edges.Get(key)
	if !ok {
		edge = &Edge{From: from, To: to}
		g.edges.Set(key, edge)
		link(g.parents, from, to, edge)
		link(g.children, to, from, edge)
	}

	for _, pair := range pairs {
		if !edge.HasPair(pair) {
			edge.Mapping = append(edge.Mapping, pair)
		}
	}
	return edge
}

// removeEdge deletes the edge from -> to. It reports whether one existed.
func (g *Graph) removeEdge(from, to string) bool {
	key := edgeKey{from: from, to: to}
	if !g.edges.Delete(key) {
		return false
	}
	unlink(g.parents, from, to)
	unlink(g.children, to, from)
	return true
}

func link(adj *adjacency, outer, inner string, edge *Edge) {
	m, ok := adj.Get(outer)
	if !ok {
		m = orderedmap.NewOrderedMap[string, *Edge]()
		adj.Set(outer, m)
	}
	m.Set(inner, edge)
}

func unlink(adj *adjacency, outer, inner string) {
	m, ok := adj.Get(outer)
	if !ok {
		return
	}
	m.Delete(inner)
	if m.Len() == 0 {
		adj.Delete(outer)
	}
}

func edgesOf(adj *adjacency, table string) []*Edge {
	m, ok := adj.Get(table)
	if !ok {
		return nil
	}
	result := make([]*Edge, 0, m.Len())
	for el := m.Front(); el != nil; el = el.Next() {
		result = append(result, el.Value)
	}
	return result
}

// ParentsOf returns the edges on which table holds the referencing columns,
// in insertion order.
func (g *Graph) ParentsOf(table string) []*Edge {
	return edgesOf(g.parents, table)
}

// ChildrenOf returns the edges on which table holds the referenced columns,
// in insertion order.
func (g *Graph) ChildrenOf(table string) []*Edge {
	return edgesOf(g.children, table)
}

// Parents returns the names of the tables that table references.
func (g *Graph) Parents(table string) []string {
	m, ok := g.parents.Get(table)
	if !ok {
		return nil
	}
	return m.Keys()
}

// Children returns the names of the tables that reference table.
func (g *Graph) Children(table string) []string {
	m, ok := g.children.Get(table)
	if !ok {
		return nil
	}
	return m.Keys()
}

// Edge returns the edge from -> to, or nil.
func (g *Graph) Edge(from, to string) *Edge {
	edge, _ := g.edges.Get(edgeKey{from: from, to: to})
	return edge
}

// HasEdge reports whether an edge from -> to exists.
func (g *Graph) HasEdge(from, to string) bool {
	_, ok := g.edges.Get(edgeKey{from: from, to: to})
	return ok
}

// HasTable reports whether the graph contains the table.
func (g *Graph) HasTable(name string) bool {
	_, ok := g.tables.Get(name)
	return ok
}

// Table returns the reflected metadata of a table, or nil.
func (g *Graph) Table(name string) *types.TableMeta {
	meta, _ := g.tables.Get(name)
	return meta
}

// Tables returns all table names in insertion order.
func (g *Graph) Tables() []string {
	return g.tables.Keys()
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []*Edge {
	result := make([]*Edge, 0, g.edges.Len())
	for el := g.edges.Front(); el != nil; el = el.Next() {
		result = append(result, el.Value)
	}
	return result
}

// TableCount returns the number of tables in the graph.
func (g *Graph) TableCount() int {
	return g.tables.Len()
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	return g.edges.Len()
}

// SelfReferencing returns the tables that have an edge to themselves.
func (g *Graph) SelfReferencing() []string {
	var result []string
	for el := g.edges.Front(); el != nil; el = el.Next() {
		if el.Value.IsSelfReference() {
			result = append(result, el.Value.From)
		}
	}
	return result
}

// Reachable returns the tables a closure walk rooted at root can visit:
// root and its descendants, plus every ancestor of those tables. Order is
// breadth-first, root first.
func (g *Graph) Reachable(root string) []string {
	if !g.HasTable(root) {
		return nil
	}
	seen := map[string]bool{root: true}
	order := []string{root}

	down := []string{root}
	for i := 0; i < len(down); i++ {
		for _, child := range g.Children(down[i]) {
			if !seen[child] {
				seen[child] = true
				down = append(down, child)
				order = append(order, child)
			}
		}
	}

	for i := 0; i < len(order); i++ {
		for _, parent := range g.Parents(order[i]) {
			if !seen[parent] {
				seen[parent] = true
				order = append(order, parent)
			}
		}
	}
	return order
}
