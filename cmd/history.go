package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"comicsqueeze/internal/history"

	"github.com/spf13/cobra"
)

var historyLimit int
var historyFilterEvent string

// historyCmd represents the command to view the conversion log
var historyCmd = &cobra.Command{
	Use:   "history [path]",
	Short: "View the conversion event log",
	Long: `Queries the DuckDB event log and displays recent conversion events,
newest first. An optional argument narrows the log to files whose path
contains it. Use flags to filter by event type and limit the output.
A lifetime totals line reports the space reclaimed across every
converted file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		store := getStore()

		pathFilter := ""
		if len(args) > 0 {
			pathFilter = args[0]
		}

		logger.Info("Querying conversion event log", "path_filter", pathFilter, "event_filter", historyFilterEvent, "limit", historyLimit)

		ctx := context.Background()
		rows, err := store.Recent(ctx, historyLimit, pathFilter, historyFilterEvent)
		if err != nil {
			logger.Error("Failed to query event log", "error", err)
			return err
		}

		fmt.Printf("--- Conversion Event Log (Limit %d) ---\n", historyLimit)
		fmt.Printf("%-40s | %-13s | %-25s | %-10s | %s\n", "File", "Event", "Timestamp (UTC)", "DurationMS", "Details")
		fmt.Println(strings.Repeat("-", 120))
		for _, r := range rows {
			durationStr := ""
			if r.DurationMS > 0 {
				durationStr = fmt.Sprintf("%d", r.DurationMS)
			}
			fmt.Printf("%-40s | %-13s | %-25s | %-10s | %s\n",
				filepath.Base(r.Path), r.Event, r.Timestamp.UTC().Format(time.RFC3339), durationStr, eventDetails(r))
		}
		fmt.Printf("Displayed %d records.\n", len(rows))

		savings, err := store.TotalSavings(ctx)
		if err != nil {
			logger.Error("Failed to compute lifetime savings", "error", err)
			return err
		}
		if savings.Files > 0 {
			fmt.Printf("Lifetime: %d file(s) converted, %.2f MB -> %.2f MB (%.2f MB reclaimed)\n",
				savings.Files,
				float64(savings.OriginalBytes)/(1<<20),
				float64(savings.CompressedBytes)/(1<<20),
				float64(savings.OriginalBytes-savings.CompressedBytes)/(1<<20))
		}
		return nil
	},
}

// eventDetails folds the nullable per-event columns into one display string.
func eventDetails(r history.EventRow) string {
	parts := []string{}
	if r.Event == history.EventError && r.Stage != "" {
		parts = append(parts, "["+r.Stage+"]")
	}
	if r.Message != "" {
		parts = append(parts, r.Message)
	}
	if r.OriginalBytes > 0 {
		parts = append(parts, fmt.Sprintf("%.2f MB -> %.2f MB",
			float64(r.OriginalBytes)/(1<<20), float64(r.CompressedBytes)/(1<<20)))
	}
	if r.OutputPath != "" {
		parts = append(parts, fmt.Sprintf("(Output: %s)", filepath.Base(r.OutputPath)))
	}
	return strings.Join(parts, " ")
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "Limit the number of log records displayed")
	historyCmd.Flags().StringVarP(&historyFilterEvent, "event", "e", "", "Filter records by event type (e.g., convert_end, error, skip)")
}
