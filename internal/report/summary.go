// Package report renders the end-of-batch conversion summary and exports
// it for later analysis: an aligned text table, an optional parquet file,
// and a plain progress bar for non-interactive runs.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"comicsqueeze/internal/orchestrator"
)

// Savings below this percentage flag a conversion as barely worth it,
// usually a comic whose pages were already aggressively compressed.
const lowSavingsThreshold = 5.0

// Row is the summary line for one successfully converted comic.
type Row struct {
	Name            string
	OutputPath      string
	OriginalBytes   int64
	CompressedBytes int64
	SavingsPercent  float64
	ImagesProcessed int
	ImagesSkipped   int
	Duration        time.Duration
}

// FailureRow is the summary line for a comic whose pipeline failed.
type FailureRow struct {
	Name string
	Err  error
}

// Summary aggregates one batch run.
type Summary struct {
	Rows            []Row
	Failures        []FailureRow
	TotalOriginal   int64
	TotalCompressed int64
	LowSavingsCount int
}

// BuildSummary folds batch results into a Summary. Rows and failures are
// sorted by name so output is stable across runs.
func BuildSummary(stats map[string]orchestrator.ProcessingStats, failures map[string]error) Summary {
	var sum Summary
	for path, st := range stats {
		row := Row{
			Name:            filepath.Base(path),
			OutputPath:      st.OutputPath,
			OriginalBytes:   st.OriginalSize,
			CompressedBytes: st.CompressedSize,
			SavingsPercent:  savingsPercent(st.OriginalSize, st.CompressedSize),
			ImagesProcessed: st.ImagesProcessed,
			ImagesSkipped:   st.ImagesSkipped,
			Duration:        st.Duration,
		}
		sum.Rows = append(sum.Rows, row)
		sum.TotalOriginal += st.OriginalSize
		sum.TotalCompressed += st.CompressedSize
		if row.SavingsPercent < lowSavingsThreshold {
			sum.LowSavingsCount++
		}
	}
	sort.Slice(sum.Rows, func(i, j int) bool { return sum.Rows[i].Name < sum.Rows[j].Name })

	for path, err := range failures {
		sum.Failures = append(sum.Failures, FailureRow{Name: filepath.Base(path), Err: err})
	}
	sort.Slice(sum.Failures, func(i, j int) bool { return sum.Failures[i].Name < sum.Failures[j].Name })
	return sum
}

// TotalSavingsPercent is the overall shrink across the whole batch.
func (s Summary) TotalSavingsPercent() float64 {
	return savingsPercent(s.TotalOriginal, s.TotalCompressed)
}

func savingsPercent(original, compressed int64) float64 {
	if original <= 0 {
		return 0
	}
	return (1 - float64(compressed)/float64(original)) * 100
}

func megabytes(n int64) float64 {
	return float64(n) / (1 << 20)
}

// Render writes the batch summary table to w.
func (s Summary) Render(w io.Writer) {
	fmt.Fprintln(w, "\n--- Conversion Summary ---")
	if len(s.Rows) == 0 && len(s.Failures) == 0 {
		fmt.Fprintln(w, "Nothing converted.")
		return
	}

	if len(s.Rows) > 0 {
		fmt.Fprintf(w, "%-40s | %12s | %12s | %7s | %6s | %7s | %s\n",
			"File", "Original MB", "New MB", "Saved", "Images", "Skipped", "Duration")
		fmt.Fprintln(w, strings.Repeat("-", 110))
		for _, r := range s.Rows {
			fmt.Fprintf(w, "%-40s | %12.2f | %12.2f | %6.1f%% | %6d | %7d | %s\n",
				r.Name, megabytes(r.OriginalBytes), megabytes(r.CompressedBytes), r.SavingsPercent,
				r.ImagesProcessed, r.ImagesSkipped, r.Duration.Round(time.Millisecond))
		}
		fmt.Fprintln(w, strings.Repeat("-", 110))
		fmt.Fprintf(w, "Total: %.2f MB -> %.2f MB (%.1f%% saved, %.2f MB reclaimed)\n",
			megabytes(s.TotalOriginal), megabytes(s.TotalCompressed),
			s.TotalSavingsPercent(), megabytes(s.TotalOriginal-s.TotalCompressed))
		if s.LowSavingsCount > 0 {
			fmt.Fprintf(w, "%d conversion(s) saved less than %.0f%%.\n", s.LowSavingsCount, lowSavingsThreshold)
		}
	}

	if len(s.Failures) > 0 {
		fmt.Fprintf(w, "\n%d file(s) failed:\n", len(s.Failures))
		for _, f := range s.Failures {
			fmt.Fprintf(w, "  %-40s %v\n", f.Name, f.Err)
		}
	}
}
