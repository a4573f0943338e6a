package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/dcp/internal/copier"
	"github.com/dbsmedya/dcp/internal/database"
)

var importCmd = &cobra.Command{
	Use:   "import DESTINATION",
	Short: "Insert JSON lines from standard input",
	Long: `Import reads the JSON lines written by "dcp export" from standard input
and inserts them into DESTINATION in the order given, inside one transaction.

Example:
  dcp import local < movie.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	destName := args[0]

	cfg, log, err := loadConfig("")
	if err != nil {
		return err
	}
	defer log.Sync()

	destCfg, err := cfg.Database(destName)
	if err != nil {
		return err
	}
	if err := cfg.ValidateDatabase(destName); err != nil {
		return err
	}

	ctx, cancel := database.SetupSignalHandler(context.Background(), nil)
	defer cancel()

	orch, err := copier.NewOrchestrator(cfg, "", destName,
		database.NewManager(nil, destCfg), log)
	if err != nil {
		return err
	}
	defer orch.Close()

	if err := orch.Initialize(ctx); err != nil {
		return err
	}

	stats, err := orch.Import(ctx, inputReader)
	if err != nil {
		return err
	}

	fmt.Fprintf(outputWriter, "Imported %d rows into %s (%d skipped)\n",
		stats.RowsCopied, destName, stats.RowsSkipped)
	return nil
}
