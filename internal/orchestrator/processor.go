package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mishka251/goszakupki-parces/internal/archive"
	"github.com/mishka251/goszakupki-parces/internal/db"
	"github.com/mishka251/goszakupki-parces/internal/notice"
)

// processArchive flattens one retrieved archive and ingests every document in
// it. It returns only a context error; everything else is logged, counted and
// recorded in the event log.
func (p *Pipeline) processArchive(ctx context.Context, l *slog.Logger, region string, res fetchResult, stats *RegionStats) error {
	l = l.With(slog.String("file", res.name))
	start := time.Now()
	p.logEvent(ctx, l, region, res.name, db.FileTypeArchive, db.EventDownloadEnd, "", &res.duration)
	p.logEvent(ctx, l, region, res.name, db.FileTypeArchive, db.EventProcessStart, "", nil)

	docs, err := p.extractor.Extract(ctx, archive.File{Name: res.name, Data: res.data})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		stats.FailedArchives++
		elapsed := time.Since(start)
		l.Error("Failed to extract archive, skipping.", "error", err)
		p.logEvent(ctx, l, region, res.name, db.FileTypeArchive, db.EventError, fmt.Sprintf("extract failed: %v", err), &elapsed)
		return nil
	}

	retry := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		o := p.processDocument(ctx, l.With(slog.String("document", doc.Name)), region, doc, stats)
		stats.record(o)
		if o.transient() {
			retry++
		}
	}

	elapsed := time.Since(start)
	if retry > 0 {
		// Leave the archive unfinished so the next run picks it up again.
		msg := fmt.Sprintf("%d of %d documents need a retry", retry, len(docs))
		l.Warn("Archive processed with transient failures.", slog.Int("retry", retry), slog.Int("documents", len(docs)))
		p.logEvent(ctx, l, region, res.name, db.FileTypeArchive, db.EventError, msg, &elapsed)
		return nil
	}
	l.Debug("Archive processed.", slog.Int("documents", len(docs)), slog.Duration("duration", elapsed))
	p.logEvent(ctx, l, region, res.name, db.FileTypeArchive, db.EventProcessEnd, fmt.Sprintf("%d documents", len(docs)), &elapsed)
	return nil
}

// processDocument takes one leaf document through parse, classification
// gate, name heuristic, verification and persistence.
// The region row is written in the same transaction as the purchase, so only
// regions with at least one stored purchase exist.
func (p *Pipeline) processDocument(ctx context.Context, l *slog.Logger, region string, doc archive.File, stats *RegionStats) outcome {
	n, err := notice.Parse(doc.Data)
	if err != nil {
		var missing *notice.MissingFieldError
		var malformed *notice.MalformedFieldError
		switch {
		case errors.As(err, &missing):
			l.Warn("Skipping document with missing field.", slog.String("field", missing.Field))
		case errors.As(err, &malformed):
			l.Warn("Skipping document with malformed field.", slog.String("field", malformed.Field), slog.String("value", malformed.Value), "error", malformed.Err)
		default:
			l.Warn("Skipping unreadable document.", "error", err)
		}
		return outcomeInvalid
	}
	l = l.With(slog.String("purchase", n.Name))

	if !p.taxonomy.Contains(n.ClassificationCode) {
		l.Debug("Classification not in taxonomy.", slog.String("code", n.ClassificationCode))
		return outcomeRejected
	}

	exists, err := p.store.PurchaseExists(ctx, n.Name)
	if err != nil {
		l.Error("Failed to check purchase.", "error", err)
		return outcomeFailed
	}
	if exists {
		l.Debug("Purchase already stored.")
		return outcomeDuplicate
	}

	productName := strings.TrimSpace(notice.ProductName(n.ObjectDescription))
	if productName == "" {
		l.Debug("No product name in description.", slog.String("description", n.ObjectDescription))
		return outcomeNoProduct
	}
	l = l.With(slog.String("product", productName))

	isRussian, known, err := p.knownProduct(ctx, productName)
	if err != nil {
		l.Error("Failed to look up product.", "error", err)
		return outcomeFailed
	}
	if !known {
		if isRussian, err = p.verify(ctx, productName); err != nil {
			l.Warn("Registry lookup failed, skipping document.", "error", err)
			return outcomeVerifyFailed
		}
	}

	var created, newProduct bool
	err = p.store.InSession(ctx, func(s *db.Session) error {
		regionRef, _, err := s.UpsertRegion(ctx, region)
		if err != nil {
			return err
		}
		product, isNew, err := s.UpsertProduct(ctx, productName, n.ClassificationCode, isRussian)
		if err != nil {
			return err
		}
		newProduct = isNew
		_, created, err = s.UpsertPurchase(ctx, db.PurchaseInput{
			Name:              n.Name,
			Region:            regionRef,
			Date:              n.PublishDate,
			Price:             n.MaxPrice,
			Product:           product,
			ObjectDescription: n.ObjectDescription,
		})
		return err
	})
	if err != nil {
		l.Error("Failed to store purchase.", "error", err)
		return outcomeFailed
	}
	if newProduct {
		stats.NewProducts++
	}
	if !created {
		return outcomeDuplicate
	}
	l.Debug("Purchase stored.", slog.Bool("is_russian", isRussian), slog.String("price", n.MaxPrice.StringFixed(2)))
	return outcomeCreated
}

// knownProduct returns the stored answer for a product seen before.
func (p *Pipeline) knownProduct(ctx context.Context, productName string) (isRussian, found bool, err error) {
	product, found, err := p.store.FindProduct(ctx, productName)
	if err != nil || !found {
		return false, false, err
	}
	return product.IsRussian, true, nil
}

// verify asks the registry, bounded by VerifyTimeout.
func (p *Pipeline) verify(ctx context.Context, productName string) (bool, error) {
	if p.cfg.VerifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.VerifyTimeout)
		defer cancel()
	}
	return p.verifier.Verify(ctx, productName)
}
