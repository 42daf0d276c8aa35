// Package analyser aggregates stored purchases into the share of Russian
// software per region or per month.
package analyser

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AllRegions selects every region; buckets are then regions instead of months.
const AllRegions = "все"

// Measure is what a bucket adds up.
type Measure string

const (
	MeasureCount Measure = "count"
	MeasureSum   Measure = "sum"
)

func ParseMeasure(s string) (Measure, error) {
	switch Measure(strings.ToLower(strings.TrimSpace(s))) {
	case MeasureCount, "":
		return MeasureCount, nil
	case MeasureSum:
		return MeasureSum, nil
	}
	return "", fmt.Errorf("unknown measure %q (want count or sum)", s)
}

// Query selects the purchases to summarise.
type Query struct {
	Region     string // empty or AllRegions for every region
	Classifier string
	Since      time.Time
	Measure    Measure
}

func (q Query) allRegions() bool {
	return q.Region == "" || q.Region == AllRegions
}

// Bucket is one row of the report: a region name or a YYYY.MM month.
type Bucket struct {
	Key     string
	Count   int
	Sum     decimal.Decimal
	Russian int
}

// Value is the bucket's measure.
func (b Bucket) Value(m Measure) decimal.Decimal {
	if m == MeasureSum {
		return b.Sum
	}
	return decimal.NewFromInt(int64(b.Count))
}

// Summary is the result of Summarize.
type Summary struct {
	Query     Query
	Buckets   []Bucket
	Purchases int
	Russian   int
}

// RussianPercent is the share of purchases whose product is Russian, 0..100.
func (s Summary) RussianPercent() float64 {
	if s.Purchases == 0 {
		return 0
	}
	return 100 * float64(s.Russian) / float64(s.Purchases)
}

// PeriodStart returns the first day included in a window of the last n months.
func PeriodStart(now time.Time, months int) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, -months, 0)
}

// Summarize groups the purchases matching q by region (all regions) or by
// publication month (single region).
func Summarize(ctx context.Context, db *sql.DB, q Query) (Summary, error) {
	if q.Measure == "" {
		q.Measure = MeasureCount
	}
	key := `r.name`
	if !q.allRegions() {
		key = `strftime(p.purchase_date, '%Y.%m')`
	}
	query := fmt.Sprintf(`
		SELECT %s AS bucket,
		       count(*) AS purchases,
		       CAST(coalesce(sum(p.price), 0) AS VARCHAR) AS total,
		       count(*) FILTER (WHERE pr.is_russian) AS russian
		FROM purchases p
		JOIN products pr ON pr.product_id = p.product_id
		JOIN regions r ON r.region_id = p.region_id
		JOIN classifications c ON c.code = pr.classification_code
		JOIN classifiers cl ON cl.classifier_id = c.classifier_id
		WHERE cl.name = ? AND p.purchase_date >= CAST(? AS DATE)`, key)
	args := []any{q.Classifier, q.Since.Format(time.DateOnly)}
	if !q.allRegions() {
		query += ` AND r.name = ?`
		args = append(args, q.Region)
	}
	query += ` GROUP BY bucket ORDER BY bucket;`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return Summary{}, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	s := Summary{Query: q}
	for rows.Next() {
		var b Bucket
		var total string
		if err := rows.Scan(&b.Key, &b.Count, &total, &b.Russian); err != nil {
			return Summary{}, fmt.Errorf("scan summary row: %w", err)
		}
		if b.Sum, err = decimal.NewFromString(total); err != nil {
			return Summary{}, fmt.Errorf("parse sum %q for %s: %w", total, b.Key, err)
		}
		s.Buckets = append(s.Buckets, b)
		s.Purchases += b.Count
		s.Russian += b.Russian
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("iterate summary rows: %w", err)
	}
	return s, nil
}

// Print writes the summary as a text table.
func (s Summary) Print(w io.Writer) {
	scope := "all regions"
	keyHeader := "Region"
	if !s.Query.allRegions() {
		scope = s.Query.Region
		keyHeader = "Month"
	}
	valueHeader := "Purchases"
	if s.Query.Measure == MeasureSum {
		valueHeader = "Total price, RUB"
	}

	fmt.Fprintf(w, "--- %s: %q in %s since %s ---\n", valueHeader, s.Query.Classifier, scope, s.Query.Since.Format(time.DateOnly))
	fmt.Fprintf(w, "%-30s | %20s | %s\n", keyHeader, valueHeader, "Russian")
	fmt.Fprintln(w, strings.Repeat("-", 66))
	for _, b := range s.Buckets {
		value := b.Value(s.Query.Measure).String()
		if s.Query.Measure == MeasureSum {
			value = b.Sum.StringFixed(2)
		}
		fmt.Fprintf(w, "%-30s | %20s | %d/%d\n", b.Key, value, b.Russian, b.Count)
	}
	fmt.Fprintln(w, strings.Repeat("-", 66))
	fmt.Fprintf(w, "Purchases: %d, Russian software: %.2f%%\n", s.Purchases, s.RussianPercent())
}
