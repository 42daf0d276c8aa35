package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mishka251/goszakupki-parces/internal/app"
	"github.com/mishka251/goszakupki-parces/internal/orchestrator"
	"github.com/mishka251/goszakupki-parces/internal/progress"
	"github.com/mishka251/goszakupki-parces/internal/registry"
)

var (
	ingestAll   bool
	ingestForce bool
	ingestTUI   bool
)

// ingestCmd runs the ingest pipeline for the given regions.
var ingestCmd = &cobra.Command{
	Use:     "ingest [region...]",
	Aliases: []string{"run"},
	Short:   "Download, filter, verify and store the notifications of one or more regions",
	Long: `Ingests regions one after another over a single FTP connection each:
1. Lists the region's notification directory.
2. Skips archives already processed in an earlier run (unless --force).
3. Retrieves archives sequentially and flattens nested zips.
4. Keeps notifications whose classification code is in the taxonomy.
5. Checks new products against the Russian software registry and stores the purchase.
Use --all to ingest every region saved with 'regions'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()
		store := getStore()
		ctx := cmd.Context()

		regions := args
		if ingestAll {
			var err error
			if regions, err = store.ListRegions(ctx); err != nil {
				return err
			}
		}
		if len(regions) == 0 {
			return fmt.Errorf("no regions to ingest: pass region names or --all after running 'regions --remote'")
		}

		tax, err := store.LoadTaxonomy(ctx, cfg.Classifier)
		if err != nil {
			return err
		}
		if tax.Len() == 0 {
			return fmt.Errorf("classifier %q has no codes: run 'taxonomy load' first", cfg.Classifier)
		}
		logger.Info("Taxonomy loaded.", slog.String("classifier", tax.Classifier), slog.Int("codes", tax.Len()))

		run := func(ctx context.Context, rep progress.Reporter, l *slog.Logger) error {
			verifier := registry.NewCachingVerifier(registry.NewHTTPVerifier(registry.HTTPVerifierConfig{
				BaseURL:  cfg.RegistryURL,
				Timeout:  cfg.VerifyTimeout,
				Interval: cfg.VerifyInterval,
			}, l))
			p := orchestrator.New(cfg, orchestrator.FTPDialer(cfg, l), store, tax, verifier, rep, l)
			p.Force = ingestForce
			_, err := p.IngestRegions(ctx, regions)
			cs := verifier.Stats()
			l.Info("Registry cache.", slog.Int64("hits", cs.Hits), slog.Int64("misses", cs.Misses), slog.Int("size", cs.Size))
			return err
		}

		if !ingestTUI {
			if err := run(ctx, progress.LogReporter{Logger: logger}, logger); err != nil {
				return fmt.Errorf("ingest failed: %w", err)
			}
			return nil
		}

		// Log lines on the terminal would tear the view.
		taskLogger := logger
		if out := strings.ToLower(logOutput); out == "" || out == "stderr" || out == "stdout" {
			taskLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		model := app.NewAppModel(ctx, regions, func(ctx context.Context, rep progress.Reporter) error {
			return run(ctx, rep, taskLogger)
		}, taskLogger)
		_, err = tea.NewProgram(model, tea.WithContext(ctx)).Run()
		model.Cancel()
		if err != nil {
			return fmt.Errorf("progress view: %w", err)
		}
		if err := model.Wait(); err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestAll, "all", false, "Ingest every region stored in the database")
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "Reprocess archives already marked as processed")
	ingestCmd.Flags().BoolVar(&ingestTUI, "tui", false, "Show a terminal progress view instead of progress log lines")
}
