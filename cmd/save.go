package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mishka251/goszakupki-parces/internal/saver"
)

var exportTables bool

// exportCmd writes stored purchases to Parquet for downstream tools.
var exportCmd = &cobra.Command{
	Use:     "export",
	Aliases: []string{"save"},
	Short:   "Export stored purchases to Parquet",
	Long: `Writes the joined purchase view (purchase, region, date, price, product, code,
is_russian) to <output-dir>/purchases.parquet. With --tables every store table is
also copied to its own Parquet file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()
		logger.Info("Starting export...", slog.String("output_dir", cfg.OutputDir))

		n, err := saver.ExportPurchases(cmd.Context(), getDB(), filepath.Join(cfg.OutputDir, "purchases.parquet"), logger)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		if exportTables {
			tables := []string{"regions", "classifiers", "classifications", "products", "purchases", "ingest_event_log"}
			if err := saver.SaveTablesToParquet(cmd.Context(), getDB(), cfg.OutputDir, tables, logger); err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
		}
		logger.Info("Export completed.", slog.Int("purchases", n))
		return nil
	},
}

func init() {
	exportCmd.Flags().BoolVar(&exportTables, "tables", false, "Also copy every store table to Parquet")
}
