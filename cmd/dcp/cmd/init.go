package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/dcp/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration template",
	Long: `Init writes a commented configuration template to the --config path
(default ~/.dcp.yaml, or $DCP). An existing file is left untouched.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()

	created, err := config.WriteTemplate(path)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(outputWriter, "Wrote configuration template to %s\n", path)
	} else {
		fmt.Fprintf(outputWriter, "Configuration already exists at %s\n", path)
	}
	return nil
}
