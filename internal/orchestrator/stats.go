package orchestrator

import (
	"sync"
	"time"
)

// ProcessingStats captures one file's before/after outcome. Written once
// when its pipeline completes, read only by the reporting surfaces.
type ProcessingStats struct {
	OriginalSize    int64
	CompressedSize  int64
	ImagesProcessed int
	ImagesSkipped   int
	OutputPath      string
	Duration        time.Duration
}

// Results collects per-file outcomes across concurrently-running
// pipelines. A single mutex guards both maps; each pipeline writes
// exactly one entry, keyed by input path.
type Results struct {
	mu       sync.Mutex
	stats    map[string]ProcessingStats
	failures map[string]error
}

func NewResults() *Results {
	return &Results{
		stats:    make(map[string]ProcessingStats),
		failures: make(map[string]error),
	}
}

func (r *Results) Record(path string, st ProcessingStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats[path] = st
}

func (r *Results) RecordFailure(path string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[path] = err
}

// Stats returns a copy of the per-file outcome map.
func (r *Results) Stats() map[string]ProcessingStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]ProcessingStats, len(r.stats))
	for k, v := range r.stats {
		out[k] = v
	}
	return out
}

// Failures returns a copy of the per-file failure map.
func (r *Results) Failures() map[string]error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]error, len(r.failures))
	for k, v := range r.failures {
		out[k] = v
	}
	return out
}
