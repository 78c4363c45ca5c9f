package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"comicsqueeze/internal/comic"
	"comicsqueeze/internal/orchestrator"
	"comicsqueeze/internal/transcode"
	"comicsqueeze/internal/watcher"

	"github.com/spf13/cobra"
)

// watchCmd represents the drop-folder command
var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch a directory and convert comics as they arrive",
	Long: `Watches a directory for new comic archives and converts each one after
its writes settle. Files already present when the watch starts are left
alone; use 'run' to convert a backlog. Conversion settings come from the
config file and defaults. Ctrl-C stops the watcher once the conversion in
progress finishes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()
		if err := cfg.Validate(); err != nil {
			return err
		}
		codec, err := transcode.LookupCodec(cfg.Codec)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		w, err := watcher.New(logger)
		if err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		defer w.Close()
		if err := w.Watch(args[0]); err != nil {
			return fmt.Errorf("watch %s: %w", args[0], err)
		}
		go w.Run(ctx)

		pipeline := orchestrator.New(cfg, codec, getStore(), logger)

		logger.Info("Waiting for comics. Ctrl-C to stop.", "dir", args[0])
		for {
			select {
			case <-ctx.Done():
				logger.Info("Watcher stopped.")
				return nil
			case c := <-w.Arrivals():
				// One pipeline per settled arrival; outcomes land in the
				// history database and the log.
				pipeline.RunBatch(ctx, []comic.Container{c}, false, nil)
			}
		}
	},
}
