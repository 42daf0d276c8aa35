package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mishka251/goszakupki-parces/internal/taxonomy"
)

var (
	taxDelimiter string
	taxEncoding  string
	taxSheet     string
)

var taxonomyCmd = &cobra.Command{
	Use:   "taxonomy",
	Short: "Manage the classification codes that select software purchases",
}

var taxonomyLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Load classification codes from a CSV or XLSX table into the --classifier group",
	Long: `Reads the first column of a classifier table and stores every code-like value under
the classifier named by --classifier. CSV files may be UTF-8 or Windows-1251; XLSX
files are read from the first sheet unless --sheet is given. Loading is additive.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()

		opts := taxonomy.LoadOptions{Encoding: taxEncoding, Sheet: taxSheet}
		if taxDelimiter != "" {
			r := []rune(taxDelimiter)
			if len(r) != 1 {
				return fmt.Errorf("delimiter must be a single character, got %q", taxDelimiter)
			}
			opts.Delimiter = r[0]
		}
		res, err := taxonomy.LoadFile(args[0], opts)
		if err != nil {
			return err
		}
		if len(res.Codes) == 0 {
			return fmt.Errorf("no classification codes found in %s", args[0])
		}

		added, err := getStore().SaveTaxonomy(cmd.Context(), cfg.Classifier, res.Codes)
		if err != nil {
			return err
		}
		logger.Info("Taxonomy loaded.",
			slog.String("classifier", cfg.Classifier),
			slog.Int("codes", len(res.Codes)),
			slog.Int("new", added),
			slog.Int("skipped_rows", res.Skipped),
		)
		return nil
	},
}

var taxonomyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the codes of the --classifier group",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tax, err := getStore().LoadTaxonomy(cmd.Context(), getConfig().Classifier)
		if err != nil {
			return err
		}
		for _, c := range tax.Codes() {
			fmt.Fprintln(cmd.OutOrStdout(), c)
		}
		return nil
	},
}

func init() {
	taxonomyLoadCmd.Flags().StringVar(&taxDelimiter, "delimiter", ";", "CSV field delimiter")
	taxonomyLoadCmd.Flags().StringVar(&taxEncoding, "encoding", taxonomy.EncodingAuto, "CSV encoding (auto, utf-8, windows-1251)")
	taxonomyLoadCmd.Flags().StringVar(&taxSheet, "sheet", "", "XLSX sheet name")
	taxonomyCmd.AddCommand(taxonomyLoadCmd, taxonomyShowCmd)
}
