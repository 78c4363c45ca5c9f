package transcode

import (
	"log/slog"
	"path/filepath"
	"sync"
)

// Outcome reports one worker's attempt on a single image. Each image
// produces exactly one outcome, consumed once by the aggregator.
type Outcome struct {
	Path      string
	Processed bool
}

// outcomeBuffer bounds memory when workers outpace the aggregator.
const outcomeBuffer = 100

// Progress positions for the transcode stage within a file's pipeline.
// The stage spans 30 to 80 of the per-file range.
const (
	progressFloor = 30
	progressSpan  = 50
)

// TranscodeAll fans paths out across a worker pool and aggregates
// processed and skipped counts. Workers never touch the counters: each
// sends one Outcome onto a bounded channel and the calling goroutine is
// the sole consumer, so counter updates and progress positions are
// race-free and monotonically non-decreasing. The returned counts always
// satisfy processed+skipped == len(paths).
func TranscodeAll(paths []string, opts Options, workers int, progress func(position int), logger *slog.Logger) (processed, skipped int) {
	total := len(paths)
	if total == 0 {
		return 0, 0
	}
	if workers < 1 {
		workers = 1
	}
	if progress == nil {
		progress = func(int) {}
	}

	jobs := make(chan string, total)
	outcomes := make(chan Outcome, outcomeBuffer)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			l := logger.With(slog.Int("worker_id", workerID))
			for path := range jobs {
				err := TranscodeImage(path, opts, l)
				if err != nil {
					l.Debug("image skipped.", slog.String("image", filepath.Base(path)), "reason", err)
				}
				outcomes <- Outcome{Path: path, Processed: err == nil}
			}
		}(i)
	}

	for _, p := range paths {
		jobs <- p
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	// Drain until the channel closes. Loop exit doubles as the
	// drain-completion signal, so the final counts are read only after
	// every producer has finished.
	for o := range outcomes {
		if o.Processed {
			processed++
		} else {
			skipped++
		}
		progress(progressFloor + (processed+skipped)*progressSpan/total)
	}

	logger.Debug("transcode batch complete.",
		slog.Int("total", total),
		slog.Int("processed", processed),
		slog.Int("skipped", skipped),
	)
	return processed, skipped
}
