// Package history keeps a DuckDB-backed log of conversion events, so
// repeat runs can skip inputs that already converted successfully and
// the history subcommand can show what happened when.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
)

// Event types recorded per input file.
const (
	EventDiscovered   = "discovered"
	EventConvertStart = "convert_start"
	EventConvertEnd   = "convert_end"
	EventSkip         = "skip"
	EventError        = "error"
)

const schemaSequenceSQL = `CREATE SEQUENCE IF NOT EXISTS conversion_log_id_seq;`

const schemaTableSQL = `
CREATE TABLE IF NOT EXISTS conversion_event_log (
    log_id           BIGINT PRIMARY KEY DEFAULT nextval('conversion_log_id_seq'),
    path             VARCHAR NOT NULL,      -- absolute input path
    event            VARCHAR NOT NULL,
    event_timestamp  TIMESTAMP NOT NULL,
    stage            VARCHAR,               -- pipeline stage for error events
    output_path      VARCHAR,
    message          VARCHAR,
    original_bytes   BIGINT,
    compressed_bytes BIGINT,
    images_processed BIGINT,
    images_skipped   BIGINT,
    duration_ms      BIGINT
);
CREATE INDEX IF NOT EXISTS idx_conversion_event_log_path ON conversion_event_log (path);
CREATE INDEX IF NOT EXISTS idx_conversion_event_log_event_time ON conversion_event_log (event, event_timestamp);
`

// Store wraps the event-log database connection.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to the DuckDB file at path, creating it and the schema
// when missing.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open history database %s: %w", path, err)
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping history database %s: %w", path, err)
	}
	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("history database ready.", slog.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func initializeSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSequenceSQL); err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("create history sequence: %w", err)
	}
	if _, err := db.Exec(schemaTableSQL); err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("create history table: %w", err)
	}
	return nil
}

// Completion carries the figures recorded with a convert_end event.
type Completion struct {
	OutputPath      string
	OriginalSize    int64
	CompressedSize  int64
	ImagesProcessed int
	ImagesSkipped   int
	Duration        time.Duration
}

func (s *Store) RecordDiscovered(ctx context.Context, path string) error {
	return s.logEvent(ctx, path, EventDiscovered, "", "", "", nil, nil)
}

func (s *Store) RecordStart(ctx context.Context, path string) error {
	return s.logEvent(ctx, path, EventConvertStart, "", "", "", nil, nil)
}

func (s *Store) RecordSkip(ctx context.Context, path, reason string) error {
	return s.logEvent(ctx, path, EventSkip, "", "", reason, nil, nil)
}

func (s *Store) RecordFailure(ctx context.Context, path, stage string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.logEvent(ctx, path, EventError, stage, "", msg, nil, nil)
}

func (s *Store) RecordCompletion(ctx context.Context, path string, c Completion) error {
	return s.logEvent(ctx, path, EventConvertEnd, "", c.OutputPath, "", &c, &c.Duration)
}

func (s *Store) logEvent(ctx context.Context, path, event, stage, outputPath, message string, c *Completion, duration *time.Duration) error {
	query := `
        INSERT INTO conversion_event_log
            (path, event, event_timestamp, stage, output_path, message,
             original_bytes, compressed_bytes, images_processed, images_skipped, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
    `
	var originalBytes, compressedBytes, processed, skipped sql.NullInt64
	if c != nil {
		originalBytes = sql.NullInt64{Int64: c.OriginalSize, Valid: true}
		compressedBytes = sql.NullInt64{Int64: c.CompressedSize, Valid: true}
		processed = sql.NullInt64{Int64: int64(c.ImagesProcessed), Valid: true}
		skipped = sql.NullInt64{Int64: int64(c.ImagesSkipped), Valid: true}
	}
	var durationMs sql.NullInt64
	if duration != nil {
		durationMs = sql.NullInt64{Int64: duration.Milliseconds(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		path,
		event,
		time.Now().UTC(),
		sql.NullString{String: stage, Valid: stage != ""},
		sql.NullString{String: outputPath, Valid: outputPath != ""},
		sql.NullString{String: message, Valid: message != ""},
		originalBytes,
		compressedBytes,
		processed,
		skipped,
		durationMs,
	)
	if err != nil {
		return fmt.Errorf("log event %q for %s: %w", event, path, err)
	}
	return nil
}

// CompletedPaths returns every input path with a recorded convert_end
// event, keyed for quick membership checks during batch planning.
func (s *Store) CompletedPaths(ctx context.Context) (map[string]bool, error) {
	query := `SELECT DISTINCT path FROM conversion_event_log WHERE event = ?;`
	rows, err := s.db.QueryContext(ctx, query, EventConvertEnd)
	if err != nil {
		return nil, fmt.Errorf("query completed paths: %w", err)
	}
	defer rows.Close()

	completed := make(map[string]bool)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scan completed path: %w", err)
		}
		completed[path] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completed paths: %w", err)
	}
	return completed, nil
}

// EventRow is one record returned by Recent, with null columns folded to
// zero values for display.
type EventRow struct {
	Seq             int64
	Timestamp       time.Time
	Path            string
	Event           string
	Stage           string
	OutputPath      string
	Message         string
	OriginalBytes   int64
	CompressedBytes int64
	ImagesProcessed int64
	ImagesSkipped   int64
	DurationMS      int64
}

// Recent returns the latest events, newest first. pathFilter narrows to
// paths containing the substring; eventFilter to one event type. Either
// may be empty.
func (s *Store) Recent(ctx context.Context, limit int, pathFilter, eventFilter string) ([]EventRow, error) {
	query := `
        SELECT log_id, event_timestamp, path, event, stage, output_path, message,
               original_bytes, compressed_bytes, images_processed, images_skipped, duration_ms
        FROM conversion_event_log
    `
	conditions := []string{}
	args := []any{}
	argCounter := 1 // Start with $1 for positional args

	if pathFilter != "" {
		conditions = append(conditions, fmt.Sprintf("path LIKE $%d", argCounter))
		args = append(args, "%"+pathFilter+"%")
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
		return nil, fmt.Errorf("query event history: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var r EventRow
		var stage, outputPath, message sql.NullString
		var originalBytes, compressedBytes, processed, skipped, durationMs sql.NullInt64
		if err := rows.Scan(&r.Seq, &r.Timestamp, &r.Path, &r.Event, &stage, &outputPath, &message,
			&originalBytes, &compressedBytes, &processed, &skipped, &durationMs); err != nil {
			return nil, fmt.Errorf("scan event history row: %w", err)
		}
		r.Stage = stage.String
		r.OutputPath = outputPath.String
		r.Message = message.String
		r.OriginalBytes = originalBytes.Int64
		r.CompressedBytes = compressedBytes.Int64
		r.ImagesProcessed = processed.Int64
		r.ImagesSkipped = skipped.Int64
		r.DurationMS = durationMs.Int64
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event history: %w", err)
	}
	return out, nil
}

// Savings aggregates the latest completion per input path.
type Savings struct {
	Files           int64
	OriginalBytes   int64
	CompressedBytes int64
}

// TotalSavings sums size figures across the most recent convert_end per
// path, so re-converted files count once.
func (s *Store) TotalSavings(ctx context.Context) (Savings, error) {
	query := `
        WITH LatestEnd AS (
            SELECT path, original_bytes, compressed_bytes,
                   ROW_NUMBER() OVER (PARTITION BY path ORDER BY event_timestamp DESC, log_id DESC) AS rn
            FROM conversion_event_log
            WHERE event = ?
        )
        SELECT COUNT(*), COALESCE(SUM(original_bytes), 0), COALESCE(SUM(compressed_bytes), 0)
        FROM LatestEnd WHERE rn = 1;
    `
	var sv Savings
	row := s.db.QueryRowContext(ctx, query, EventConvertEnd)
	if err := row.Scan(&sv.Files, &sv.OriginalBytes, &sv.CompressedBytes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Savings{}, nil
		}
		return Savings{}, fmt.Errorf("query total savings: %w", err)
	}
	return sv, nil
}
