package orchestrator

import (
	"log/slog"
	"time"
)

// outcome is what happened to a single document.
type outcome int

const (
	outcomeInvalid      outcome = iota // unreadable XML or missing/malformed field
	outcomeRejected                    // classification code outside the taxonomy
	outcomeDuplicate                   // purchase already stored
	outcomeNoProduct                   // no product name could be derived
	outcomeVerifyFailed                // registry unavailable
	outcomeFailed                      // store error
	outcomeCreated
)

// RegionStats counts what an ingest of one region did.
type RegionStats struct {
	Region          string
	Archives        int // archives listed
	SkippedArchives int // already processed by an earlier run
	FailedArchives  int // could not be retrieved or opened
	Documents       int
	Invalid         int
	Rejected        int
	NoProduct       int
	VerifyErrors    int
	StoreErrors     int
	Created         int
	Duplicates      int
	NewProducts     int
	Duration        time.Duration
}

func (s *RegionStats) record(o outcome) {
	s.Documents++
	switch o {
	case outcomeInvalid:
		s.Invalid++
	case outcomeRejected:
		s.Rejected++
	case outcomeDuplicate:
		s.Duplicates++
	case outcomeNoProduct:
		s.NoProduct++
	case outcomeVerifyFailed:
		s.VerifyErrors++
	case outcomeFailed:
		s.StoreErrors++
	case outcomeCreated:
		s.Created++
	}
}

// transient reports whether the outcome may change on a later run.
func (o outcome) transient() bool {
	return o == outcomeVerifyFailed || o == outcomeFailed
}

// Add accumulates o into s.
func (s *RegionStats) Add(o RegionStats) {
	s.Archives += o.Archives
	s.SkippedArchives += o.SkippedArchives
	s.FailedArchives += o.FailedArchives
	s.Documents += o.Documents
	s.Invalid += o.Invalid
	s.Rejected += o.Rejected
	s.NoProduct += o.NoProduct
	s.VerifyErrors += o.VerifyErrors
	s.StoreErrors += o.StoreErrors
	s.Created += o.Created
	s.Duplicates += o.Duplicates
	s.NewProducts += o.NewProducts
	s.Duration += o.Duration
}

func (s RegionStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("archives", s.Archives),
		slog.Int("skipped_archives", s.SkippedArchives),
		slog.Int("failed_archives", s.FailedArchives),
		slog.Int("documents", s.Documents),
		slog.Int("invalid", s.Invalid),
		slog.Int("rejected", s.Rejected),
		slog.Int("no_product", s.NoProduct),
		slog.Int("verify_errors", s.VerifyErrors),
		slog.Int("store_errors", s.StoreErrors),
		slog.Int("created", s.Created),
		slog.Int("duplicates", s.Duplicates),
		slog.Int("new_products", s.NewProducts),
		slog.Duration("duration", s.Duration.Round(time.Millisecond)),
	)
}
