package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/dcp/internal/copier"
	"github.com/dbsmedya/dcp/internal/database"
)

var validateCmd = &cobra.Command{
	Use:   "validate SOURCE DESTINATION",
	Short: "Validate configuration and run preflight checks",
	Long: `Validate checks the configuration file and runs preflight checks
against both databases to ensure a copy between them can succeed.

Checks performed:
  - Configuration syntax and required fields
  - Database connectivity (source and destination)
  - Link and unlink directives against the source schema
  - Every source table exists in the destination
  - Destination tables carry the source columns (warning only)
  - Foreign key cycles in the source graph (warning only)
  - No other copy into the destination is running (warning only)

Example:
  dcp validate production local`,
	Args: cobra.ExactArgs(2),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	sourceName, destName := args[0], args[1]

	cfg, log, err := loadConfig("")
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("Starting validation checks...")

	srcCfg, destCfg, err := cfg.Targets(sourceName, destName)
	if err != nil {
		return err
	}

	dbManager := database.NewManager(srcCfg, destCfg)
	orch, err := copier.NewOrchestrator(cfg, sourceName, destName, dbManager, log)
	if err != nil {
		return err
	}
	defer orch.Close()

	ctx := context.Background()
	if err := orch.Initialize(ctx); err != nil {
		return err
	}
	if err := dbManager.Ping(ctx); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	g := orch.Graph()
	fmt.Fprintf(outputWriter, "\n=== Configuration Validation ===\n")
	fmt.Fprintf(outputWriter, "Config file: %s\n", GetConfigFile())
	fmt.Fprintf(outputWriter, "Source: %s (%d tables, %d relationships)\n",
		sourceName, g.TableCount(), g.EdgeCount())
	fmt.Fprintf(outputWriter, "Destination: %s\n\n", destName)

	if g.HasCycle() {
		fmt.Fprintf(outputWriter, "⚠️  Foreign key cycle among: %s (rows may be emitted before a cyclic parent)\n",
			strings.Join(g.FindCycleParticipants(), ", "))
	}

	if err := orch.Validate(ctx); err != nil {
		fmt.Fprintf(outputWriter, "❌ Preflight checks failed: %v\n", err)
		return err
	}

	fmt.Fprintln(outputWriter, "✅ All checks passed")
	return nil
}
