package report

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
)

// InspectStats summarizes previously exported stats parquet files using
// DuckDB's parquet reader: the file schema, every row, and batch totals.
func InspectStats(dbPath, globPattern string, logger *slog.Logger) error {
	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return fmt.Errorf("open duckdb (%s): %w", dbPath, err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get duckdb connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `INSTALL parquet; LOAD parquet;`); err != nil {
		logger.Warn("failed to install/load parquet extension.", "error", err)
	}

	files, err := filepath.Glob(globPattern)
	if err != nil {
		return fmt.Errorf("glob stats files %s: %w", globPattern, err)
	}
	if len(files) == 0 {
		logger.Info("no stats parquet files found.", slog.String("pattern", globPattern))
		return nil
	}
	logger.Info("found stats files to inspect.", slog.Int("count", len(files)))

	escaped := make([]string, 0, len(files))
	for _, f := range files {
		escaped = append(escaped, fmt.Sprintf("'%s'", escapeSQLPath(f)))
	}
	fileList := fmt.Sprintf("[%s]", strings.Join(escaped, ", "))

	if err := printSchema(ctx, conn, files[0]); err != nil {
		return err
	}
	if err := printRows(ctx, conn, fileList); err != nil {
		return err
	}
	return printTotals(ctx, conn, fileList, len(files))
}

func escapeSQLPath(path string) string {
	p := strings.ReplaceAll(path, `\`, `/`)
	return strings.ReplaceAll(p, "'", "''")
}

func printSchema(ctx context.Context, conn *sql.Conn, file string) error {
	describeSQL := fmt.Sprintf("DESCRIBE SELECT * FROM read_parquet('%s');", escapeSQLPath(file))
	rows, err := conn.QueryContext(ctx, describeSQL)
	if err != nil {
		return fmt.Errorf("query schema for %s: %w", file, err)
	}
	defer rows.Close()

	fmt.Println("\n--- Stats File Schema ---")
	fmt.Printf("%-20s | %s\n", "Column", "Type")
	fmt.Println(strings.Repeat("-", 40))
	for rows.Next() {
		var colName, colType, nullVal, keyVal, defaultVal, extraVal sql.NullString
		if err := rows.Scan(&colName, &colType, &nullVal, &keyVal, &defaultVal, &extraVal); err != nil {
			return fmt.Errorf("scan schema row: %w", err)
		}
		fmt.Printf("%-20s | %s\n", colName.String, colType.String)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate schema rows: %w", err)
	}
	return nil
}

func printRows(ctx context.Context, conn *sql.Conn, fileList string) error {
	querySQL := fmt.Sprintf(`
        SELECT name, original_bytes, compressed_bytes, savings_percent, images_processed, images_skipped, duration_ms
        FROM read_parquet(%s) ORDER BY name;`, fileList)
	rows, err := conn.QueryContext(ctx, querySQL)
	if err != nil {
		return fmt.Errorf("query stats rows: %w", err)
	}
	defer rows.Close()

	fmt.Println("\n--- Recorded Conversions ---")
	fmt.Printf("%-40s | %12s | %12s | %7s | %6s | %7s | %s\n",
		"File", "Original MB", "New MB", "Saved", "Images", "Skipped", "Duration")
	fmt.Println(strings.Repeat("-", 110))
	for rows.Next() {
		var name string
		var originalBytes, compressedBytes, processed, skipped, durationMs int64
		var savings float64
		if err := rows.Scan(&name, &originalBytes, &compressedBytes, &savings, &processed, &skipped, &durationMs); err != nil {
			return fmt.Errorf("scan stats row: %w", err)
		}
		fmt.Printf("%-40s | %12.2f | %12.2f | %6.1f%% | %6d | %7d | %s\n",
			name, megabytes(originalBytes), megabytes(compressedBytes), savings,
			processed, skipped, time.Duration(durationMs)*time.Millisecond)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate stats rows: %w", err)
	}
	return nil
}

func printTotals(ctx context.Context, conn *sql.Conn, fileList string, fileCount int) error {
	totalsSQL := fmt.Sprintf(`
        SELECT COUNT(*),
               COALESCE(SUM(original_bytes), 0),
               COALESCE(SUM(compressed_bytes), 0)
        FROM read_parquet(%s);`, fileList)
	var conversions, originalBytes, compressedBytes int64
	if err := conn.QueryRowContext(ctx, totalsSQL).Scan(&conversions, &originalBytes, &compressedBytes); err != nil {
		return fmt.Errorf("query stats totals: %w", err)
	}

	fmt.Println(strings.Repeat("-", 110))
	fmt.Printf("%d conversion(s) across %d stats file(s): %.2f MB -> %.2f MB (%.1f%% saved)\n",
		conversions, fileCount, megabytes(originalBytes), megabytes(compressedBytes),
		savingsPercent(originalBytes, compressedBytes))
	return nil
}
