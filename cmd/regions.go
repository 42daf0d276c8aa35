package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mishka251/goszakupki-parces/internal/orchestrator"
)

var regionsRemote bool

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List known regions, or discover and save them from the FTP mirror",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()
		store := getStore()
		ctx := cmd.Context()

		if regionsRemote {
			found, err := orchestrator.ListRemoteRegions(ctx, orchestrator.FTPDialer(cfg, logger), cfg.RegionsRoot, logger)
			if err != nil {
				return fmt.Errorf("discover regions: %w", err)
			}
			added, err := store.SaveRegions(ctx, found)
			if err != nil {
				return err
			}
			logger.Info("Regions saved.", slog.Int("found", len(found)), slog.Int("new", added))
		}

		regions, err := store.ListRegions(ctx)
		if err != nil {
			return err
		}
		for _, r := range regions {
			fmt.Fprintln(cmd.OutOrStdout(), r)
		}
		return nil
	},
}

func init() {
	regionsCmd.Flags().BoolVar(&regionsRemote, "remote", false, "List the regions root on the FTP server and save new regions")
}
