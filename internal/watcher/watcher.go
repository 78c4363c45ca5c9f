// Package watcher turns filesystem activity in a library directory into
// a stream of comic containers ready for conversion. Events are debounced
// per path so a comic still being copied in is picked up once, after its
// last write settles.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"comicsqueeze/internal/comic"
	"comicsqueeze/internal/orchestrator"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher monitors directories for arriving comic files.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	arrivals  chan comic.Container
	debounce  time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	done   chan struct{}
}

// New creates a watcher. Call Watch to add directories, then Run.
func New(logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		fsWatcher: fsWatcher,
		arrivals:  make(chan comic.Container, 100),
		debounce:  defaultDebounce,
		logger:    logger,
		timers:    make(map[string]*time.Timer),
		done:      make(chan struct{}),
	}, nil
}

// Watch adds a directory to the watch set.
func (w *Watcher) Watch(dir string) error {
	if err := w.fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", dir, err)
	}
	w.logger.Info("watching directory.", slog.String("dir", dir))
	return nil
}

// Arrivals is the stream of debounced, classified comic files.
func (w *Watcher) Arrivals() <-chan comic.Container {
	return w.arrivals
}

// Run processes filesystem events until ctx is cancelled or the watcher
// is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			// Writes matter too: each chunk of a file still being
			// copied resets the debounce window.
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.schedule(event.Name)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error.", "error", err)
		}
	}
}

// schedule arms (or re-arms) the debounce timer for path.
func (w *Watcher) schedule(path string) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return
	}
	if orchestrator.IsOutput(base) {
		return
	}
	if _, err := comic.Classify(path); err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, exists := w.timers[path]; exists {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.deliver(path)
	})
}

// deliver re-checks the settled file and hands it to the consumer.
func (w *Watcher) deliver(path string) {
	if _, err := os.Stat(path); err != nil {
		w.logger.Debug("watched file vanished before conversion.", slog.String("file", filepath.Base(path)))
		return
	}
	c, err := comic.Classify(path)
	if err != nil {
		return
	}
	w.logger.Info("comic arrived.", slog.String("file", filepath.Base(path)))
	select {
	case w.arrivals <- c:
	case <-w.done:
	}
}

// Close stops the watcher. Pending debounce timers are released and any
// timer callback already in flight unblocks without delivering.
func (w *Watcher) Close() error {
	w.mu.Lock()
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	close(w.done)
	return w.fsWatcher.Close()
}
