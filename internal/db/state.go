package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Constants for event types
const (
	EventRunStart     = "run_start"
	EventRunEnd       = "run_end"
	EventListed       = "listed"
	EventDownloadEnd  = "download_end"
	EventProcessStart = "process_start"
	EventProcessEnd   = "process_end"
	EventSkipProcess  = "skip_process"
	EventError        = "error"
)

// Constants for file types
const (
	FileTypeArchive = "archive"
	FileTypeRegion  = "region"
)

// Event is one row of the ingest history.
type Event struct {
	RunID    string
	Region   string
	Filename string
	FileType string
	Event    string
	Message  string
	Duration *time.Duration
}

// LogEvent inserts a new event record into the log.
func (s *Store) LogEvent(ctx context.Context, e Event) error {
	query := `
        INSERT INTO ingest_event_log (run_id, region, filename, filetype, event, event_timestamp, message, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?);
    `
	var durationMs sql.NullInt64
	if e.Duration != nil {
		durationMs = sql.NullInt64{Int64: e.Duration.Milliseconds(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		e.RunID,
		e.Region,
		e.Filename,
		e.FileType,
		e.Event,
		time.Now().UTC(),
		sql.NullString{String: e.Message, Valid: e.Message != ""},
		durationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to log event '%s' for '%s': %w", e.Event, e.Filename, err)
	}
	return nil
}

// CompletedArchives returns the archives of a region that have been fully
// processed by any earlier run.
func (s *Store) CompletedArchives(ctx context.Context, region string) (map[string]bool, error) {
	s.logger.Debug("Querying database for completed archives...", slog.String("region", region))
	completed := make(map[string]bool)

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT filename
		FROM ingest_event_log
		WHERE region = ? AND filetype = ? AND event = ?;`,
		region, FileTypeArchive, EventProcessEnd)
	if err != nil {
		return nil, fmt.Errorf("query completed archives: %w", err)
	}
	defer rows.Close()

	var scanErrors error
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			scanErrors = errors.Join(scanErrors, fmt.Errorf("scan completed archive name: %w", err))
			continue
		}
		completed[name] = true
	}
	if err := rows.Err(); err != nil {
		scanErrors = errors.Join(scanErrors, fmt.Errorf("iterate completed archives: %w", err))
	}
	return completed, scanErrors
}

// LatestEvent retrieves the most recent event for a file of a region.
func (s *Store) LatestEvent(ctx context.Context, region, filename string) (event string, timestamp time.Time, found bool, err error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT event, event_timestamp
        FROM ingest_event_log
        WHERE region = ? AND filename = ?
        ORDER BY event_timestamp DESC, log_id DESC
        LIMIT 1;`, region, filename)
	err = row.Scan(&event, &timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, false, nil
		}
		return "", time.Time{}, false, fmt.Errorf("failed query latest event for '%s' (%s): %w", filename, region, err)
	}
	return event, timestamp, true, nil
}

// DisplayHistory writes the event log, newest first.
func (s *Store) DisplayHistory(ctx context.Context, w io.Writer, regionFilter, eventFilter string, limit int) error {
	query := `
        SELECT run_id, region, filename, filetype, event, event_timestamp, message, duration_ms
        FROM ingest_event_log
    `
	conditions := []string{}
	args := []any{}
	argCounter := 1

	if regionFilter != "" {
		conditions = append(conditions, fmt.Sprintf("region = $%d", argCounter))
		args = append(args, regionFilter)
		argCounter++
	}
	if eventFilter != "" {
		conditions = append(conditions, fmt.Sprintf("event = $%d", argCounter))
		args = append(args, eventFilter)
		argCounter++
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY event_timestamp DESC, log_id DESC LIMIT $%d", argCounter)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query event log: %w", err)
	}
	defer rows.Close()

	fmt.Fprintf(w, "--- Ingest History (Limit %d) ---\n", limit)
	fmt.Fprintf(w, "%-8s | %-20s | %-45s | %-8s | %-13s | %-20s | %-10s | %s\n", "Run", "Region", "File", "Type", "Event", "Timestamp (UTC)", "DurationMS", "Message")
	fmt.Fprintln(w, strings.Repeat("-", 150))

	count := 0
	for rows.Next() {
		var runID, region, filename, filetype, event string
		var timestamp time.Time
		var message sql.NullString
		var durationMs sql.NullInt64
		if err := rows.Scan(&runID, &region, &filename, &filetype, &event, &timestamp, &message, &durationMs); err != nil {
			return fmt.Errorf("failed to scan event log row: %w", err)
		}
		durationStr := ""
		if durationMs.Valid {
			durationStr = fmt.Sprintf("%d", durationMs.Int64)
		}
		if len(runID) > 8 {
			runID = runID[:8]
		}
		fmt.Fprintf(w, "%-8s | %-20s | %-45s | %-8s | %-13s | %-20s | %-10s | %s\n",
			runID, region, filename, filetype, event, timestamp.Format(time.DateTime), durationStr, message.String)
		count++
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("error iterating event log rows: %w", err)
	}
	fmt.Fprintf(w, "Displayed %d records.\n", count)
	return nil
}
