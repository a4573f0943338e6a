package graph

import (
	"fmt"
	"strings"
)

// Mermaid renders the graph as a mermaid flowchart. Arrows point from the
// referenced table to the referencing one, the direction rows are inserted.
// When only is given, just those tables and the edges between them are drawn.
func (g *Graph) Mermaid(only ...string) string {
	var keep map[string]bool
	if len(only) > 0 {
		keep = make(map[string]bool, len(only))
		for _, name := range only {
			keep[name] = true
		}
	}
	drawn := func(name string) bool { return keep == nil || keep[name] }

	var b strings.Builder
	b.WriteString("graph TD\n")

	ids := make(map[string]string, g.TableCount())
	for i, name := range g.Tables() {
		if !drawn(name) {
			continue
		}
		ids[name] = fmt.Sprintf("t%d", i)
		fmt.Fprintf(&b, "    %s[%q]\n", ids[name], name)
	}

	for _, edge := range g.Edges() {
		if drawn(edge.From) && drawn(edge.To) {
			fmt.Fprintf(&b, "    %s -->|%s| %s\n", ids[edge.To], edge.Label(), ids[edge.From])
		}
	}

	return b.String()
}

// Label describes the column mapping, e.g. "distributor=id".
func (e *Edge) Label() string {
	parts := make([]string, len(e.Mapping))
	for i, p := range e.Mapping {
		parts[i] = p.From + "=" + p.To
	}
	return strings.Join(parts, ", ")
}

// String formats the edge as "child(col) -> parent(col)".
func (e *Edge) String() string {
	return fmt.Sprintf("%s(%s) -> %s(%s)",
		e.From, strings.Join(e.FromColumns(), ", "),
		e.To, strings.Join(e.ToColumns(), ", "))
}
