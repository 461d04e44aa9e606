package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/giantswarm/1mcp/pkg/logging"
)

// DefaultDebounce is how long the watcher waits after the last observed
// filesystem event before reloading, coalescing editor save sequences
// (truncate + write + rename) into a single reload.
const DefaultDebounce = 300 * time.Millisecond

// Watcher watches a config file for changes and emits freshly-loaded
// Snapshots. Invalid reloads are reported via OnError and do not replace
// the last good snapshot — the caller keeps serving the prior config.
type Watcher struct {
	path     string
	debounce time.Duration

	OnSnapshot func(Snapshot)
	OnError    func(error)
}

// NewWatcher creates a Watcher for the config file at path.
func NewWatcher(path string) *Watcher {
	return &Watcher{path: path, debounce: DefaultDebounce}
}

// Run watches the config file until ctx is cancelled, returning the watch
// error, if any. It performs no initial load of its own.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	var debounceTimer *time.Timer
	reload := func() {
		snap, err := Load(w.path)
		if err != nil {
			logging.Warn("ConfigWatch", "reload rejected, keeping prior config: %v", err)
			if w.OnError != nil {
				w.OnError(err)
			}
			return
		}
		if w.OnSnapshot != nil {
			w.OnSnapshot(snap)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Error("ConfigWatch", err, "watcher error")
		}
	}
}
