package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mishka251/goszakupki-parces/internal/inspector"
)

// inspectCmd summarises the Parquet files written by export.
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect schema and row counts of exported Parquet files using DuckDB",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		summaries, err := inspector.Inspect(cmd.Context(), getDB(), getConfig().OutputDir, getLogger())
		inspector.Print(cmd.OutOrStdout(), summaries)
		if err != nil {
			return fmt.Errorf("inspection failed: %w", err)
		}
		return nil
	},
}
