// Package orchestrator sequences the per-file conversion pipeline:
// extract into a scratch directory, transcode the page images in
// parallel, repackage as a deflate zip. Per-file pipelines run
// concurrently and fail independently.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"comicsqueeze/internal/archive"
	"comicsqueeze/internal/comic"
	"comicsqueeze/internal/config"
	"comicsqueeze/internal/extract"
	"comicsqueeze/internal/history"
	"comicsqueeze/internal/transcode"
)

// outputMarker ties output naming and discovery together: generated
// archives carry it in their stem and are never picked up as inputs.
const outputMarker = " optimized_"

// Pipeline converts comic containers with a fixed configuration. An
// optional history store records conversion events; a nil store disables
// recording.
type Pipeline struct {
	cfg    config.Config
	codec  transcode.Codec
	hist   *history.Store
	logger *slog.Logger
}

func New(cfg config.Config, codec transcode.Codec, hist *history.Store, logger *slog.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, codec: codec, hist: hist, logger: logger}
}

// OutputPath derives the deterministic output name for one container.
// Re-running with the same codec and quality lands on the same path and
// overwrites the prior result instead of accumulating duplicates.
func (p *Pipeline) OutputPath(c comic.Container) string {
	dir := filepath.Dir(c.Path)
	if p.cfg.OutputDir != "" {
		dir = p.cfg.OutputDir
	}
	stem := strings.TrimSuffix(filepath.Base(c.Path), filepath.Ext(c.Path))
	return filepath.Join(dir, fmt.Sprintf("%s%s%s_q%d.cbz", stem, outputMarker, p.codec.Name(), p.cfg.Quality))
}

// RunBatch converts each container, running up to FileWorkers pipelines
// concurrently. Failures are contained per file: one pipeline's error
// never aborts its siblings. Events are emitted as the batch advances
// and the channel is closed before RunBatch returns. Cancelling ctx
// stops further pipelines from starting but never interrupts a running
// one.
func (p *Pipeline) RunBatch(ctx context.Context, containers []comic.Container, force bool, events chan<- Event) *Results {
	results := NewResults()
	emit := func(e Event) {
		if events != nil {
			events <- e
		}
	}
	defer func() {
		if events != nil {
			close(events)
		}
	}()
	if len(containers) == 0 {
		return results
	}

	completed := map[string]bool{}
	if p.hist != nil && !force {
		m, err := p.hist.CompletedPaths(ctx)
		if err != nil {
			p.logger.Warn("could not read conversion history, converting everything.", "error", err)
		} else {
			completed = m
		}
	}

	workers := p.cfg.FileWorkers
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan comic.Container, len(containers))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			l := p.logger.With(slog.Int("worker_id", workerID))
			for c := range jobs {
				p.convertContainer(ctx, c, l, results, emit)
			}
		}(i)
	}

	queued := 0
queue:
	for _, c := range containers {
		name := filepath.Base(c.Path)
		p.recordHistory(func(s *history.Store) error {
			return s.RecordDiscovered(ctx, absPath(c.Path))
		})
		if completed[absPath(c.Path)] {
			p.logger.Info("skipping already-converted file.", slog.String("file", name))
			p.recordHistory(func(s *history.Store) error {
				return s.RecordSkip(ctx, absPath(c.Path), "already converted")
			})
			emit(Event{Path: c.Path, Name: name, Stage: StageSkipped})
			continue
		}
		select {
		case <-ctx.Done():
			p.logger.Warn("batch cancelled, not starting remaining files.",
				slog.Int("started", queued),
				slog.Int("total", len(containers)),
			)
			break queue
		default:
		}
		emit(Event{Path: c.Path, Name: name, Stage: StageQueued})
		jobs <- c
		queued++
	}
	close(jobs)
	wg.Wait()

	return results
}

func (p *Pipeline) convertContainer(ctx context.Context, c comic.Container, logger *slog.Logger, results *Results, emit func(Event)) {
	name := filepath.Base(c.Path)
	l := logger.With(slog.String("file", name))
	p.recordHistory(func(s *history.Store) error {
		return s.RecordStart(ctx, absPath(c.Path))
	})

	start := time.Now()
	st, err := p.convertOne(c, l, func(e Event) {
		e.Path = c.Path
		e.Name = name
		emit(e)
	})
	if err != nil {
		l.Error("conversion failed.", "error", err, slog.Duration("duration", time.Since(start).Round(time.Millisecond)))
		results.RecordFailure(c.Path, err)
		p.recordHistory(func(s *history.Store) error {
			return s.RecordFailure(ctx, absPath(c.Path), failedStage(err), err)
		})
		emit(Event{Path: c.Path, Name: name, Stage: StageFailed, Err: err})
		return
	}

	st.Duration = time.Since(start)
	l.Info("conversion complete.",
		slog.Int64("original_bytes", st.OriginalSize),
		slog.Int64("compressed_bytes", st.CompressedSize),
		slog.Int("images_processed", st.ImagesProcessed),
		slog.Int("images_skipped", st.ImagesSkipped),
		slog.Duration("duration", st.Duration.Round(time.Millisecond)),
	)
	results.Record(c.Path, st)
	p.recordHistory(func(s *history.Store) error {
		return s.RecordCompletion(ctx, absPath(c.Path), history.Completion{
			OutputPath:      st.OutputPath,
			OriginalSize:    st.OriginalSize,
			CompressedSize:  st.CompressedSize,
			ImagesProcessed: st.ImagesProcessed,
			ImagesSkipped:   st.ImagesSkipped,
			Duration:        st.Duration,
		})
	})
	emit(Event{Path: c.Path, Name: name, Stage: StageComplete, Position: 100, Stats: &st})
}

// convertOne runs extract, transcode and repackage for one container
// inside a scratch directory that is removed on every exit path.
func (p *Pipeline) convertOne(c comic.Container, l *slog.Logger, emit func(Event)) (ProcessingStats, error) {
	var st ProcessingStats

	info, err := os.Stat(c.Path)
	if err != nil {
		return st, comic.NewPipelineError(comic.StageExtract, c.Path, err)
	}
	st.OriginalSize = info.Size()

	scratch, err := os.MkdirTemp("", "comicsqueeze-*")
	if err != nil {
		return st, comic.NewPipelineError(comic.StageExtract, c.Path, fmt.Errorf("create scratch dir: %w", err))
	}
	defer os.RemoveAll(scratch)

	emit(Event{Stage: StageExtracting, Position: 10})
	if err := extract.Extract(c, scratch, l); err != nil {
		return st, err
	}
	images, err := extract.FindImages(scratch)
	if err != nil {
		return st, comic.NewPipelineError(comic.StageExtract, c.Path, err)
	}

	emit(Event{Stage: StageTranscoding, Position: 30})
	opts := transcode.Options{Codec: p.codec, Quality: p.cfg.Quality, TargetHeight: p.cfg.TargetHeight}
	st.ImagesProcessed, st.ImagesSkipped = transcode.TranscodeAll(images, opts, p.cfg.ImageWorkers, func(pos int) {
		emit(Event{Stage: StageTranscoding, Position: pos})
	}, l)

	emit(Event{Stage: StageRepackaging, Position: 80})
	outPath := p.OutputPath(c)
	if err := archive.Create(scratch, outPath, l); err != nil {
		return st, comic.NewPipelineError(comic.StageRepackage, c.Path, err)
	}
	outInfo, err := os.Stat(outPath)
	if err != nil {
		return st, comic.NewPipelineError(comic.StageRepackage, c.Path, err)
	}
	st.CompressedSize = outInfo.Size()
	st.OutputPath = outPath
	return st, nil
}

// recordHistory runs one best-effort history write. Failures are logged
// and never fail a pipeline.
func (p *Pipeline) recordHistory(fn func(*history.Store) error) {
	if p.hist == nil {
		return
	}
	if err := fn(p.hist); err != nil {
		p.logger.Warn("history write failed.", "error", err)
	}
}

// failedStage names the pipeline stage a contained failure came from.
func failedStage(err error) string {
	var pe *comic.PipelineError
	if errors.As(err, &pe) {
		return pe.Stage
	}
	return "pipeline"
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
