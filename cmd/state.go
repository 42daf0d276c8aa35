package cmd

import (
	"github.com/spf13/cobra"
)

var stateLimit int
var stateFilterEvent string

// stateCmd prints the ingest event log.
var stateCmd = &cobra.Command{
	Use:   "state [region]",
	Short: "View the ingest event log",
	Long: `Queries the DuckDB event log and displays the history of ingested archives.
Pass a region name to filter by region. Use flags to filter by event type and limit the output.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		regionFilter := ""
		if len(args) > 0 {
			regionFilter = args[0]
		}
		logger.Debug("Querying database event log", "region_filter", regionFilter, "event_filter", stateFilterEvent, "limit", stateLimit)

		if err := getStore().DisplayHistory(cmd.Context(), cmd.OutOrStdout(), regionFilter, stateFilterEvent, stateLimit); err != nil {
			logger.Error("Failed to display state history", "error", err)
			return err
		}
		return nil
	},
}

func init() {
	stateCmd.Flags().IntVarP(&stateLimit, "limit", "n", 50, "Limit the number of log records displayed")
	stateCmd.Flags().StringVarP(&stateFilterEvent, "event", "e", "", "Filter records by event type (e.g., run_start, process_end, error)")
}
