// Package watch re-runs a callback whenever a schema file changes.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/satishbabariya/tdal/internal/debug"
)

// DefaultDebounce collapses the burst of events editors produce on save.
const DefaultDebounce = 300 * time.Millisecond

// Watcher watches a file for changes.
type Watcher struct {
	file     string
	debounce time.Duration
	callback func() error
	watcher  *fsnotify.Watcher
}

// New creates a watcher for file. The directory is watched so that editors that replace the file
// on save are still seen.
func New(file string, debounce time.Duration, callback func() error) (*Watcher, error) {
	absPath, err := filepath.Abs(file)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", file, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(absPath)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(absPath), err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{file: absPath, debounce: debounce, callback: callback, watcher: w}, nil
}

// Run calls the callback once, then again after every change, until ctx is done.
// Callback errors are logged and do not stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	w.call()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if path, err := filepath.Abs(event.Name); err != nil || path != w.file {
				continue
			}
			timer.Reset(w.debounce)
			fire = timer.C

		case <-fire:
			fire = nil
			w.call()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			debug.Warn("watch error", "file", w.file, "error", err)

		case <-ctx.Done():
			timer.Stop()
			return nil
		}
	}
}

func (w *Watcher) call() {
	if err := w.callback(); err != nil {
		debug.Warn("watch callback failed", "file", w.file, "error", err)
	}
}
