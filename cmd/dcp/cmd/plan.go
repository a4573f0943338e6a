package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/dcp/internal/copier"
	"github.com/dbsmedya/dcp/internal/database"
	"github.com/dbsmedya/dcp/internal/graph"
)

var planCmd = &cobra.Command{
	Use:   "plan SOURCE [TABLE]",
	Short: "Show the schema graph of a database",
	Long: `Plan reflects SOURCE, applies the configured links and unlinks, and
displays the resulting schema graph.

The plan shows:
  - Insert order (referenced tables first), with any cycles reported
  - Relationships with their column mappings
  - A mermaid flowchart of the graph

When TABLE is given, only the tables a copy starting at TABLE can reach
are shown.

Example:
  dcp plan production movies`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	sourceName := args[0]

	cfg, log, err := loadConfig("")
	if err != nil {
		return err
	}
	defer log.Sync()

	srcCfg, err := cfg.Database(sourceName)
	if err != nil {
		return err
	}
	if err := cfg.ValidateDatabase(sourceName); err != nil {
		return err
	}

	orch, err := copier.NewOrchestrator(cfg, sourceName, "",
		database.NewManager(srcCfg, nil), log)
	if err != nil {
		return err
	}
	defer orch.Close()

	if err := orch.Initialize(context.Background()); err != nil {
		return err
	}

	root := ""
	if len(args) == 2 {
		root = args[1]
		if !orch.Graph().HasTable(root) {
			return fmt.Errorf("table %q not found in %s", root, sourceName)
		}
	}

	printPlan(sourceName, orch.Graph(), root)
	return nil
}

// printPlan writes the plan of g. A non-empty root limits it to the tables
// reachable from root.
func printPlan(name string, g *graph.Graph, root string) {
	inScope := func(string) bool { return true }
	if root != "" {
		reach := make(map[string]bool)
		for _, table := range g.Reachable(root) {
			reach[table] = true
		}
		inScope = func(table string) bool { return reach[table] }
	}

	order, err := g.InsertOrder()
	var cycleErr *graph.CycleError
	if errors.As(err, &cycleErr) && !anyInScope(cycleErr.Info.UnprocessedNodes, inScope) {
		cycleErr = nil
	}

	if root != "" {
		printHeader("Schema Plan: %s (from %s)", name, root)
	} else {
		printHeader("Schema Plan: %s", name)
	}

	var edges []*graph.Edge
	for _, edge := range g.Edges() {
		if inScope(edge.From) && inScope(edge.To) {
			edges = append(edges, edge)
		}
	}

	fmt.Fprintln(outputWriter)
	printSection("Insert Order (referenced tables first)")
	n := 0
	for _, table := range order {
		if !inScope(table) {
			continue
		}
		n++
		printOrderItem(n, table, g)
	}

	if cycleErr != nil {
		fmt.Fprintln(outputWriter)
		printSection("Cycles")
		info := cycleErr.Info
		if len(info.CyclePath) > 0 {
			fmt.Fprintf(outputWriter, "  Cycle path: %s\n",
				color.Yellow.Sprint(strings.Join(info.CyclePath, " -> ")))
		}
		fmt.Fprintln(outputWriter, "  Tables without an insert order:")
		for _, table := range info.UnprocessedNodes {
			if inScope(table) {
				fmt.Fprintf(outputWriter, "  %s %s\n", color.Yellow.Sprint("~"), table)
			}
		}
	}

	fmt.Fprintln(outputWriter)
	printSection("Relationships")
	for _, edge := range edges {
		fmt.Fprintf(outputWriter, "  • %s\n", edge.String())
	}
	if len(edges) == 0 {
		fmt.Fprintln(outputWriter, "  (none)")
	}

	fmt.Fprintln(outputWriter)
	printSection("Graph")
	printSideBySide(mermaidFor(g, root), planSummary(g, cycleErr, len(edges), inScope), 4)
}

func anyInScope(tables []string, inScope func(string) bool) bool {
	for _, table := range tables {
		if inScope(table) {
			return true
		}
	}
	return false
}

// printOrderItem prints one table of the insert order with the tables it
// references.
func printOrderItem(num int, table string, g *graph.Graph) {
	numStr := fmt.Sprintf("[%d]", num)
	parents := g.Parents(table)
	if len(parents) == 0 {
		fmt.Fprintf(outputWriter, "  %s %s\n", numStr, table)
		return
	}
	fmt.Fprintf(outputWriter, "  %s %s -> %s\n", numStr, table, strings.Join(parents, ", "))
}

// mermaidFor renders the in-scope part of g as a fenced mermaid block.
func mermaidFor(g *graph.Graph, root string) string {
	var only []string
	if root != "" {
		only = g.Reachable(root)
	}
	return "```mermaid\n" + g.Mermaid(only...) + "```\n"
}

func planSummary(g *graph.Graph, cycleErr *graph.CycleError, edges int, inScope func(string) bool) []string {
	tables := 0
	for _, table := range g.Tables() {
		if inScope(table) {
			tables++
		}
	}
	var self []string
	for _, table := range g.SelfReferencing() {
		if inScope(table) {
			self = append(self, table)
		}
	}

	lines := []string{
		"[ Summary ]",
		strings.Repeat("-", 11),
		fmt.Sprintf("Tables:         %d", tables),
		fmt.Sprintf("Relationships:  %d", edges),
	}
	if len(self) > 0 {
		lines = append(lines, fmt.Sprintf("Self-refs:      %s", strings.Join(self, ", ")))
	}
	if cycleErr != nil {
		lines = append(lines, fmt.Sprintf("Cyclic:         %s", strings.Join(g.FindCycleParticipants(), ", ")))
	} else {
		lines = append(lines, "Cyclic:         none")
	}
	return lines
}
