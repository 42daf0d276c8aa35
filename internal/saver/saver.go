// Package saver exports stored data to Parquet files.
package saver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// purchaseSchema is the flat purchase view written by ExportPurchases.
var purchaseSchema = []string{
	"name=purchase, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED",
	"name=region, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL",
	"name=purchase_date, type=INT32, convertedtype=DATE, repetitiontype=OPTIONAL",
	"name=price, type=DOUBLE, repetitiontype=OPTIONAL",
	"name=product, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL",
	"name=classification_code, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL",
	"name=is_russian, type=BOOLEAN, repetitiontype=OPTIONAL",
	"name=object_description, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL",
}

const purchaseViewSQL = `
	SELECT p.name,
	       r.name,
	       CAST(date_diff('day', DATE '1970-01-01', p.purchase_date) AS VARCHAR),
	       CAST(p.price AS VARCHAR),
	       pr.name,
	       pr.classification_code,
	       CAST(pr.is_russian AS VARCHAR),
	       p.object_description
	FROM purchases p
	JOIN regions r ON r.region_id = p.region_id
	JOIN products pr ON pr.product_id = p.product_id
	ORDER BY p.purchase_date, p.name;`

// ExportPurchases writes every stored purchase, joined with its region and
// product, to a SNAPPY compressed Parquet file. It returns the row count.
func ExportPurchases(ctx context.Context, db *sql.DB, path string, logger *slog.Logger) (n int, err error) {
	start := time.Now()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output directory for '%s': %w", path, err)
	}

	rows, err := db.QueryContext(ctx, purchaseViewSQL)
	if err != nil {
		return 0, fmt.Errorf("query purchases: %w", err)
	}
	defer rows.Close()

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return 0, fmt.Errorf("create file %s: %w", path, err)
	}
	defer func() {
		if closeErr := fw.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close file %s: %w", path, closeErr))
		}
	}()

	pw, err := writer.NewCSVWriter(purchaseSchema, fw, 4)
	if err != nil {
		return 0, fmt.Errorf("create writer %s: %w", path, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for rows.Next() {
		var cols [8]sql.NullString
		ptrs := make([]any, len(cols))
		for i := range cols {
			ptrs[i] = &cols[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return n, fmt.Errorf("scan purchase row: %w", err)
		}

		rec := make([]*string, len(cols))
		for i, c := range cols {
			if c.Valid {
				v := c.String
				rec[i] = &v
			}
		}
		if rec[3] != nil {
			if _, perr := strconv.ParseFloat(*rec[3], 64); perr != nil {
				logger.Warn("Unparseable price, writing NULL.", slog.String("purchase", cols[0].String), slog.String("price", *rec[3]))
				rec[3] = nil
			}
		}
		if err := pw.WriteString(rec); err != nil {
			return n, fmt.Errorf("write purchase %s: %w", cols[0].String, err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("iterate purchases: %w", err)
	}

	if err := pw.WriteStop(); err != nil {
		return n, fmt.Errorf("stop writer %s: %w", path, err)
	}
	logger.Info("Purchases exported.", slog.String("path", path), slog.Int("rows", n), slog.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return n, nil
}

// SaveTablesToParquet copies the named tables to <outDir>/<table>.parquet
// with DuckDB's own Parquet writer.
func SaveTablesToParquet(ctx context.Context, db *sql.DB, outDir string, tables []string, logger *slog.Logger) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory '%s': %w", outDir, err)
	}

	var saveErrors error
	for _, tn := range tables {
		if ctx.Err() != nil {
			return errors.Join(saveErrors, ctx.Err())
		}
		l := logger.With(slog.String("table", tn))
		start := time.Now()

		safeFilename := strings.ReplaceAll(strings.ReplaceAll(tn, `"`, ""), "/", "_")
		outputFilePath := filepath.Join(outDir, safeFilename+".parquet")
		duckdbFilePath := strings.ReplaceAll(outputFilePath, `\`, `/`) // DuckDB needs forward slashes

		quotedTableName := fmt.Sprintf(`"%s"`, strings.ReplaceAll(tn, `"`, `""`))
		copySQL := fmt.Sprintf(`COPY %s TO '%s' (FORMAT PARQUET);`,
			quotedTableName,
			strings.ReplaceAll(duckdbFilePath, "'", "''"),
		)

		if _, err := db.ExecContext(ctx, copySQL); err != nil {
			l.Error("Failed to save table to Parquet.", "error", err)
			saveErrors = errors.Join(saveErrors, fmt.Errorf("save table %s: %w", tn, err))
			continue
		}
		l.Info("Table saved to Parquet.", slog.String("path", outputFilePath), slog.Duration("duration", time.Since(start).Round(time.Millisecond)))
	}
	return saveErrors
}
