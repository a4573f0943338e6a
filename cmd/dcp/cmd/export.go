package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/dcp/internal/copier"
	"github.com/dbsmedya/dcp/internal/database"
)

var exportWhere []string

var exportCmd = &cobra.Command{
	Use:   "export SOURCE TABLE [column=value...]",
	Short: "Write rows and everything they relate to as JSON lines",
	Long: `Export walks the same relational closure as copy but writes each row
to standard output as one JSON object per line:

  {"table":"movies","pk":{"id":7},"data":{"id":7,"distributor":3,...}}

Lines come out referenced rows first, so piping them into "dcp import"
satisfies foreign keys as it goes.

Example:
  dcp export production movies id=7 > movie.jsonl`,
	Args: cobra.MinimumNArgs(2),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringArrayVarP(&exportWhere, "where", "w", nil,
		"Raw SQL predicate on TABLE (repeatable, ANDed)")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	sourceName, table := args[0], args[1]

	filter, err := parseFilter(args[2:], exportWhere)
	if err != nil {
		return err
	}

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

	ctx, cancel := database.SetupSignalHandler(context.Background(), nil)
	defer cancel()

	orch, err := copier.NewOrchestrator(cfg, sourceName, "",
		database.NewManager(srcCfg, nil), log)
	if err != nil {
		return err
	}
	defer orch.Close()

	if err := orch.Initialize(ctx); err != nil {
		return err
	}

	n, err := orch.Export(ctx, outputWriter, table, filter)
	if err != nil {
		return fmt.Errorf("export stopped after %d rows: %w", n, err)
	}
	return nil
}
