package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mishka251/goszakupki-parces/internal/remote"
)

// ListRemoteRegions returns the region directories published under the
// regions root, sorted by name.
func ListRemoteRegions(ctx context.Context, dial Dialer, root string, logger *slog.Logger) ([]string, error) {
	logger.Info("Discovering regions...", slog.String("root", root))
	src, err := dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer src.Close()

	entries, err := src.List(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	regions := remote.Directories(entries)
	sort.Strings(regions)
	logger.Info("Discovery complete.", slog.Int("regions", len(regions)))
	return regions, nil
}
