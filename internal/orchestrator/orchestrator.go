// Package orchestrator drives the ingest of notification archives region by
// region: list, download, flatten, parse, classify, verify and store.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mishka251/goszakupki-parces/internal/archive"
	"github.com/mishka251/goszakupki-parces/internal/config"
	"github.com/mishka251/goszakupki-parces/internal/db"
	"github.com/mishka251/goszakupki-parces/internal/progress"
	"github.com/mishka251/goszakupki-parces/internal/registry"
	"github.com/mishka251/goszakupki-parces/internal/remote"
	"github.com/mishka251/goszakupki-parces/internal/taxonomy"
)

// Pipeline ingests regions into the store.
type Pipeline struct {
	cfg       config.Config
	dial      Dialer
	store     *db.Store
	taxonomy  *taxonomy.Taxonomy
	verifier  registry.Verifier
	extractor *archive.Extractor
	reporter  progress.Reporter
	logger    *slog.Logger

	// RunID tags every event logged by this pipeline.
	RunID string
	// Force reprocesses archives already marked as processed.
	Force bool
}

func New(cfg config.Config, dial Dialer, store *db.Store, tax *taxonomy.Taxonomy, verifier registry.Verifier, reporter progress.Reporter, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		dial:      dial,
		store:     store,
		taxonomy:  tax,
		verifier:  verifier,
		extractor: archive.New(cfg.MaxDepth, cfg.MaxExtracted, logger),
		reporter:  reporter,
		logger:    logger,
		RunID:     uuid.NewString(),
	}
}

// IngestRegion runs one region end to end over a single connection. Listing
// and connection failures abort the region and are returned; per-file and
// per-document problems are logged and counted.
func (p *Pipeline) IngestRegion(ctx context.Context, region string) (stats RegionStats, err error) {
	stats.Region = region
	l := p.logger.With(slog.String("region", region))
	start := time.Now()
	defer func() { stats.Duration = time.Since(start) }()

	p.logEvent(ctx, l, region, region, db.FileTypeRegion, db.EventRunStart, "", nil)
	defer func() {
		elapsed := time.Since(start)
		if err != nil {
			p.logEvent(context.WithoutCancel(ctx), l, region, region, db.FileTypeRegion, db.EventError, err.Error(), &elapsed)
			return
		}
		p.logEvent(ctx, l, region, region, db.FileTypeRegion, db.EventRunEnd, fmt.Sprintf("%d created", stats.Created), &elapsed)
	}()

	src, err := p.dial(ctx)
	if err != nil {
		return stats, fmt.Errorf("connect for region %s: %w", region, err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			l.Debug("Failed to close connection.", "error", cerr)
		}
	}()

	dir := p.cfg.RegionDir(region)
	entries, err := src.List(ctx, dir)
	if err != nil {
		return stats, fmt.Errorf("list %s: %w", dir, err)
	}
	archives := remote.Archives(entries)
	stats.Archives = len(archives)
	p.logEvent(ctx, l, region, region, db.FileTypeRegion, db.EventListed, fmt.Sprintf("%d archives in %s", len(archives), dir), nil)

	completed := map[string]bool{}
	if !p.Force {
		completed, err = p.store.CompletedArchives(ctx, region)
		if err != nil {
			l.Warn("Failed to read processed archives, processing all.", "error", err)
			completed = map[string]bool{}
		}
	}
	pending := make([]string, 0, len(archives))
	for _, e := range archives {
		if completed[e.Name] {
			stats.SkippedArchives++
			continue
		}
		pending = append(pending, e.Name)
	}
	l.Info("Region listed.", slog.Int("archives", len(archives)), slog.Int("pending", len(pending)), slog.Int("already_processed", stats.SkippedArchives))

	tracker := progress.NewTracker(region, len(pending), p.reporter)

	fetchCtx, cancelFetch := context.WithCancel(ctx)
	fetched := runSequentialDownloads(fetchCtx, src, dir, pending, p.cfg.Prefetch, l)
	defer func() {
		cancelFetch()
		for range fetched {
		}
	}()

	for res := range fetched {
		if res.err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			if !isFileError(res.err) {
				return stats, fmt.Errorf("retrieve %s/%s: %w", dir, res.name, res.err)
			}
			stats.FailedArchives++
			l.Error("Failed to retrieve archive, skipping.", slog.String("file", res.name), "error", res.err)
			p.logEvent(ctx, l, region, res.name, db.FileTypeArchive, db.EventError, fmt.Sprintf("retrieve failed: %v", res.err), &res.duration)
			tracker.FileDone(res.name)
			continue
		}
		if err := p.processArchive(ctx, l, region, res, &stats); err != nil {
			return stats, err
		}
		tracker.FileDone(res.name)
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	tracker.Finish()
	l.Info("Region ingested.", slog.Any("stats", stats))
	return stats, nil
}

// IngestRegions ingests regions one after another. A failing region does not
// stop the others; all failures are returned joined.
func (p *Pipeline) IngestRegions(ctx context.Context, regions []string) ([]RegionStats, error) {
	p.logger.Info("Starting ingest.", slog.String("run_id", p.RunID), slog.Int("regions", len(regions)), slog.Bool("force", p.Force))
	var all []RegionStats
	var finalErr error
	for i, region := range regions {
		if ctx.Err() != nil {
			finalErr = errors.Join(finalErr, ctx.Err())
			break
		}
		stats, err := p.IngestRegion(ctx, region)
		all = append(all, stats)
		if err != nil {
			p.logger.Error("Region failed.", slog.String("region", region), slog.Int("num", i+1), slog.Int("total", len(regions)), "error", err)
			finalErr = errors.Join(finalErr, fmt.Errorf("region %s: %w", region, err))
		}
	}

	var total RegionStats
	for _, s := range all {
		total.Add(s)
	}
	p.logger.Info("Ingest finished.", slog.String("run_id", p.RunID), slog.Any("totals", total))
	return all, finalErr
}

func (p *Pipeline) logEvent(ctx context.Context, l *slog.Logger, region, filename, filetype, event, message string, duration *time.Duration) {
	err := p.store.LogEvent(ctx, db.Event{
		RunID:    p.RunID,
		Region:   region,
		Filename: filename,
		FileType: filetype,
		Event:    event,
		Message:  message,
		Duration: duration,
	})
	if err != nil {
		l.Warn("Failed to record event.", slog.String("event", event), "error", err)
	}
}
