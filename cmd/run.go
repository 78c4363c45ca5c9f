package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"comicsqueeze/internal/app"
	"comicsqueeze/internal/comic"
	"comicsqueeze/internal/config"
	"comicsqueeze/internal/orchestrator"
	"comicsqueeze/internal/report"
	"comicsqueeze/internal/transcode"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// Flags for the run command
var (
	runQuality      int
	runHeight       int
	runMaxDimension int
	runCodec        string
	runImageWorkers int
	runFileWorkers  int
	runOutputDir    string
	runForce        bool
	runPlain        bool
	runStatsParquet string
)

// runCmd represents the conversion command
var runCmd = &cobra.Command{
	Use:   "run [path]",
	Short: "Convert a comic archive, or every comic under a directory",
	Long: `Converts one comic archive, or walks a directory and converts every
CBZ, CBR and PDF found under it. Each comic is unpacked, its page images are
re-encoded in parallel, and the result is packed into a new CBZ next to the
original (or under --output-dir). Pages whose re-encoded form is not smaller
keep their original bytes.

Files recorded as already converted are skipped; use --force to convert
them again. Progress renders as an interactive display on a terminal, or as
a plain progress bar with --plain or when output is piped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()
		applyRunFlags(cmd, &cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		codec, err := transcode.LookupCodec(cfg.Codec)
		if err != nil {
			return err
		}

		containers, err := orchestrator.Discover(args[0])
		if err != nil {
			return fmt.Errorf("discover comics under %s: %w", args[0], err)
		}
		if len(containers) == 0 {
			logger.Info("No comic archives found.", "path", args[0])
			return nil
		}
		logger.Info("Starting conversion run",
			slog.Int("comics", len(containers)),
			slog.String("codec", cfg.Codec),
			slog.Int("quality", cfg.Quality),
		)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pipeline := orchestrator.New(cfg, codec, getStore(), logger)
		results := runBatchWithProgress(ctx, pipeline, containers, logger)

		summary := report.BuildSummary(results.Stats(), results.Failures())
		summary.Render(os.Stdout)

		if runStatsParquet != "" {
			if err := report.WriteParquet(runStatsParquet, summary); err != nil {
				return fmt.Errorf("export stats: %w", err)
			}
			logger.Info("Stats parquet written", "path", runStatsParquet)
		}

		if failed := len(summary.Failures); failed > 0 {
			return fmt.Errorf("%d of %d conversion(s) failed", failed, len(containers))
		}
		return nil
	},
}

// applyRunFlags lays explicitly-set flags over the config. Flags the user
// did not pass leave the config file's values alone.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("quality") {
		cfg.Quality = runQuality
	}
	if cmd.Flags().Changed("height") {
		cfg.TargetHeight = runHeight
	}
	if cmd.Flags().Changed("max-dimension") {
		cfg.MaxDimension = runMaxDimension
	}
	if cmd.Flags().Changed("codec") {
		cfg.Codec = runCodec
	}
	if cmd.Flags().Changed("workers") {
		cfg.ImageWorkers = runImageWorkers
	}
	if cmd.Flags().Changed("file-workers") {
		cfg.FileWorkers = runFileWorkers
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.OutputDir = runOutputDir
	}
}

// runBatchWithProgress drives the batch while rendering progress on the
// surface that fits: the interactive display on a terminal, a plain bar
// otherwise. It returns once every started conversion has finished.
func runBatchWithProgress(ctx context.Context, pipeline *orchestrator.Pipeline, containers []comic.Container, logger *slog.Logger) *orchestrator.Results {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan orchestrator.Event, 256)
	var results *orchestrator.Results
	done := make(chan struct{})
	go func() {
		defer close(done)
		results = pipeline.RunBatch(ctx, containers, runForce, events)
	}()

	if runPlain || !isatty.IsTerminal(os.Stdout.Fd()) {
		report.RenderPlain(os.Stderr, len(containers), events)
	} else {
		uiMsgChan := make(chan tea.Msg, 256)
		go app.Translate(events, uiMsgChan)
		prog := tea.NewProgram(app.NewModel(len(containers), uiMsgChan, logger))
		if _, err := prog.Run(); err != nil {
			logger.Warn("Interactive display failed, conversions continue in the background.", "error", err)
		}
		// Leaving the display must not abandon the batch: stop queueing
		// new files, then drain the translator until it closes the
		// channel. In-flight conversions land in results either way.
		cancel()
		for range uiMsgChan {
		}
	}

	<-done
	return results
}

func init() {
	runCmd.Flags().IntVarP(&runQuality, "quality", "q", 0, "Lossy encoding quality, 1-100")
	runCmd.Flags().IntVar(&runHeight, "height", 0, "Target page height in pixels; taller pages are scaled down")
	runCmd.Flags().IntVar(&runMaxDimension, "max-dimension", 0, "Upper bound kept for page width and height")
	runCmd.Flags().StringVar(&runCodec, "codec", "", "Page image codec (webp or jpeg)")
	runCmd.Flags().IntVarP(&runImageWorkers, "workers", "w", 0, "Concurrent image encoders per comic (default: CPU count)")
	runCmd.Flags().IntVar(&runFileWorkers, "file-workers", 0, "Comics converted concurrently")
	runCmd.Flags().StringVarP(&runOutputDir, "output-dir", "o", "", "Directory for converted archives (default: next to each input)")
	runCmd.Flags().BoolVar(&runForce, "force", false, "Convert files even when history records them as done")
	runCmd.Flags().BoolVar(&runPlain, "plain", false, "Plain progress bar instead of the interactive display")
	runCmd.Flags().StringVar(&runStatsParquet, "stats-parquet", "", "Also write per-file conversion stats to this Parquet file")
}
