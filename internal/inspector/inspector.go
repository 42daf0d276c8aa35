// Package inspector summarises exported Parquet files with DuckDB.
package inspector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
)

// dateColumn is summarised with its range when a file has it.
const dateColumn = "purchase_date"

// FileSummary describes one Parquet file.
type FileSummary struct {
	Path    string
	Columns []Column
	Rows    int64
	MinDate sql.NullString
	MaxDate sql.NullString
	Err     error
}

// Column is one entry of a file schema as DuckDB reads it.
type Column struct {
	Name string
	Type string
}

// Inspect summarises every *.parquet file in dir.
func Inspect(ctx context.Context, db *sql.DB, dir string, logger *slog.Logger) ([]FileSummary, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if err != nil {
		return nil, fmt.Errorf("failed glob parquet files in %s: %w", dir, err)
	}
	sort.Strings(files)
	if len(files) == 0 {
		logger.Info("No *.parquet files found.", slog.String("dir", dir))
		return nil, nil
	}
	logger.Debug("Found parquet files to summarize.", slog.Int("count", len(files)), slog.String("dir", dir))

	var finalErr error
	out := make([]FileSummary, 0, len(files))
	for _, fp := range files {
		s := inspectFile(ctx, db, fp)
		if s.Err != nil {
			logger.Error("Failed to inspect file.", slog.String("file", fp), "error", s.Err)
			finalErr = errors.Join(finalErr, s.Err)
		}
		out = append(out, s)
	}
	return out, finalErr
}

func inspectFile(ctx context.Context, db *sql.DB, path string) FileSummary {
	s := FileSummary{Path: path}
	lit := quotePath(path)

	rows, err := db.QueryContext(ctx, fmt.Sprintf("DESCRIBE SELECT * FROM read_parquet(%s);", lit))
	if err != nil {
		s.Err = fmt.Errorf("query schema for %s: %w", path, err)
		return s
	}
	for rows.Next() {
		var name, typ, nullVal, keyVal, defaultVal, extraVal sql.NullString
		if err := rows.Scan(&name, &typ, &nullVal, &keyVal, &defaultVal, &extraVal); err != nil {
			rows.Close()
			s.Err = fmt.Errorf("scan schema row for %s: %w", path, err)
			return s
		}
		s.Columns = append(s.Columns, Column{Name: name.String, Type: typ.String})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		s.Err = fmt.Errorf("iterate schema rows for %s: %w", path, err)
		return s
	}

	statsSQL := fmt.Sprintf(`SELECT count(*), NULL::VARCHAR, NULL::VARCHAR FROM read_parquet(%s);`, lit)
	if s.hasColumn(dateColumn) {
		statsSQL = fmt.Sprintf(`SELECT count(*), CAST(min(%[1]s) AS VARCHAR), CAST(max(%[1]s) AS VARCHAR) FROM read_parquet(%[2]s);`, dateColumn, lit)
	}
	if err := db.QueryRowContext(ctx, statsSQL).Scan(&s.Rows, &s.MinDate, &s.MaxDate); err != nil {
		s.Err = fmt.Errorf("query statistics for %s: %w", path, err)
	}
	return s
}

func (s FileSummary) hasColumn(name string) bool {
	for _, c := range s.Columns {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func quotePath(p string) string {
	p = strings.ReplaceAll(p, `\`, `/`)
	return "'" + strings.ReplaceAll(p, "'", "''") + "'"
}

// Print writes the summaries as text.
func Print(w io.Writer, summaries []FileSummary) {
	for _, s := range summaries {
		fmt.Fprintf(w, "\n=== %s ===\n", filepath.Base(s.Path))
		if s.Err != nil {
			fmt.Fprintf(w, "    ERROR: %v\n", s.Err)
			continue
		}
		for _, c := range s.Columns {
			fmt.Fprintf(w, "    %-30s %s\n", c.Name, c.Type)
		}
	}
	fmt.Fprintln(w, "\n--- Statistics ---")
	fmt.Fprintf(w, "%-30s | %-12s | %-12s | %-12s\n", "File", "Rows", "First date", "Last date")
	fmt.Fprintln(w, strings.Repeat("-", 76))
	for _, s := range summaries {
		minDate, maxDate := "N/A", "N/A"
		if s.MinDate.Valid {
			minDate = s.MinDate.String
		}
		if s.MaxDate.Valid {
			maxDate = s.MaxDate.String
		}
		fmt.Fprintf(w, "%-30s | %-12d | %-12s | %-12s\n", filepath.Base(s.Path), s.Rows, minDate, maxDate)
	}
}
