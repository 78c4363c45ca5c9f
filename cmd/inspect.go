package cmd

import (
	"fmt"

	"comicsqueeze/internal/report"

	"github.com/spf13/cobra"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect [file.parquet]",
	Short: "Inspect schema and contents of exported stats Parquet files using DuckDB",
	Long: `Reads stats Parquet files written by 'run --stats-parquet' and shows the
schema, the per-file rows and aggregate totals. The argument may be a single
file or a glob pattern such as 'stats/*.parquet'; matching files are
aggregated together. Inspection runs in a scratch in-memory DuckDB session
and never touches the conversion history database.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()

		logger.Info("Starting stats file inspection...", "pattern", args[0])

		if err := report.InspectStats(":memory:", args[0], logger); err != nil {
			logger.Error("Inspection completed with errors", "error", err)
			return fmt.Errorf("inspection failed: %w", err)
		}

		logger.Info("Stats inspection completed successfully.")
		return nil
	},
}
