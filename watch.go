package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"avifopt/logger"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = time.Second

// Watcher converts files under Root as they are created or rewritten.
// Bursts of events are debounced so a file is processed once it settles.
type Watcher struct {
	Processor *Processor
	Console   *logger.Console
	Root      string
	Debounce  time.Duration

	fsw *fsnotify.Watcher
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()
	w.fsw = fsw

	if _, err := w.addTree(w.Root); err != nil {
		return err
	}

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	spinner := w.Console.StartSpinner("Watching " + w.Root + " for changes")
	pending := make(map[string]struct{})

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			spinner.Stop(true, "Watch stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				spinner.Stop(false, "Watcher closed")
				return errors.New("watcher closed")
			}
			if !w.handle(event, pending) {
				continue
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			files := settled(pending)
			clear(pending)
			if len(files) == 0 {
				continue
			}

			spinner.Pause()
			stats := w.Processor.ProcessFiles(ctx, w.Root, files)
			w.Processor.displayResults(stats)
			w.Processor.writeMetrics()
			spinner.Start()

		case err, ok := <-fsw.Errors:
			if !ok {
				spinner.Stop(false, "Watcher closed")
				return errors.New("watcher closed")
			}
			w.Console.Warn("Watcher error: %v", err)
		}
	}
}

// handle records event and reports whether anything became pending.
func (w *Watcher) handle(event fsnotify.Event, pending map[string]struct{}) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	if w.Processor.excluded(event.Name) || w.Processor.excluded(filepath.Dir(event.Name)) {
		return false
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return false
	}

	if info.IsDir() {
		files, err := w.addTree(event.Name)
		if err != nil {
			w.Console.Warn("Cannot watch %s: %v", event.Name, err)
		}
		for _, f := range files {
			pending[f] = struct{}{}
		}
		return len(files) > 0
	}

	if !info.Mode().IsRegular() {
		return false
	}
	pending[event.Name] = struct{}{}
	return true
}

// addTree watches dir and its subdirectories, returning the regular files
// already present below it.
func (w *Watcher) addTree(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && w.Processor.excluded(path) {
				return filepath.SkipDir
			}
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			return nil
		}
		if d.Type().IsRegular() && path != dir {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// settled returns the pending paths that still exist, sorted.
func settled(pending map[string]struct{}) []string {
	files := make([]string, 0, len(pending))
	for p := range pending {
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			files = append(files, p)
		}
	}
	sort.Strings(files)
	return files
}
