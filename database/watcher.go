package database

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"uaswitch/logger"

	"github.com/fsnotify/fsnotify"
)

// WatchFunc is called after the database file settled following a write.
type WatchFunc func(ctx context.Context) error

// Watcher reports writes to a SQLite database file (including its -wal and
// -journal companions) made by other processes.
type Watcher struct {
	path     string
	debounce time.Duration
	handlers []WatchFunc
}

func NewWatcher(dbPath string, debounce time.Duration, handlers ...WatchFunc) *Watcher {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &Watcher{path: dbPath, debounce: debounce, handlers: handlers}
}

func (w *Watcher) isDatabaseFile(name string) bool {
	base := filepath.Base(w.path)
	got := filepath.Base(name)
	return got == base || strings.HasPrefix(got, base+"-")
}

// Run blocks until ctx is done. The directory is watched rather than the file
// because SQLite replaces the journal files.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fsw.Close()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	logger.Info("Watcher: watching %s for external changes.", w.path)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case evt, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if evt.Has(fsnotify.Chmod) || !w.isDatabaseFile(evt.Name) {
				continue
			}
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
			pending = true
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error("Watcher: file watcher error: %v", err)
		case <-timer.C:
			pending = false
			for _, h := range w.handlers {
				if err := h(ctx); err != nil {
					logger.Error("Watcher: change handler failed: %v", err)
				}
			}
		}
	}
}
