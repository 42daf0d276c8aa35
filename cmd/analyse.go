package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mishka251/goszakupki-parces/internal/analyser"
)

var (
	statsRegion  string
	statsMonths  int
	statsMeasure string
)

// statsCmd reports the share of Russian software among stored purchases.
var statsCmd = &cobra.Command{
	Use:     "stats",
	Aliases: []string{"analyse"},
	Short:   "Summarise stored purchases by region or by month",
	Long: `Counts (or sums the prices of) purchases in the --classifier group over the last
--months months. With --region все the rows are regions; with a single region the
rows are months. The share of Russian software is printed below the table.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		measure, err := analyser.ParseMeasure(statsMeasure)
		if err != nil {
			return err
		}
		if statsMonths < 0 {
			return fmt.Errorf("--months must not be negative, got %d", statsMonths)
		}
		q := analyser.Query{
			Region:     statsRegion,
			Classifier: getConfig().Classifier,
			Since:      analyser.PeriodStart(time.Now(), statsMonths),
			Measure:    measure,
		}
		s, err := analyser.Summarize(cmd.Context(), getDB(), q)
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}
		s.Print(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsRegion, "region", analyser.AllRegions, "Region name, or '"+analyser.AllRegions+"' for all regions")
	statsCmd.Flags().IntVar(&statsMonths, "months", 12, "Length of the period in months, counted back from today")
	statsCmd.Flags().StringVar(&statsMeasure, "measure", string(analyser.MeasureCount), "count or sum")
}
