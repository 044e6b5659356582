// Package watch runs mint batches for manifests dropped into a
// directory. Each manifest is debounced so a file still being written is
// picked up only once it settles.
package watch

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 2 * time.Second

// RunFunc processes one settled manifest file.
type RunFunc func(ctx context.Context, manifestPath string) error

// Watcher monitors a single directory for manifest files.
type Watcher struct {
	dir      string
	debounce time.Duration
	run      RunFunc
	logger   *log.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending chan string
}

func New(dir string, debounce time.Duration, run RunFunc, logger *log.Logger) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		run:      run,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
		pending:  make(chan string, 16),
	}
}

// Watch blocks until ctx is cancelled, processing manifests serially in
// arrival order. Batches never overlap so the progress ledgers stay
// single-writer.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Printf("watching %s for manifests", w.dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isManifest(event.Name) {
				continue
			}
			w.schedule(event.Name)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("watch error: %v", err)

		case path := <-w.pending:
			w.logger.Printf("manifest settled: %s", path)
			if err := w.run(ctx, path); err != nil {
				w.logger.Printf("run failed for %s: %v", path, err)
			}
		}
	}
}

// schedule arms (or re-arms) the debounce timer for one path. Repeated
// writes keep pushing the run back until the file goes quiet.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.pending <- path
	})
}

func isManifest(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if strings.Contains(base, ".ledger.") {
		return false
	}
	ext := filepath.Ext(base)
	return ext == ".yaml" || ext == ".yml"
}
