// Package watch reruns a callback when project sources change.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces the burst of events an editor save produces
const DefaultDebounce = 300 * time.Millisecond

// OnChange receives the sorted set of paths changed since the last call
type OnChange func(ctx context.Context, changed []string) error

// Watcher watches directory trees and individual files
type Watcher struct {
	paths    []string
	debounce time.Duration
	logger   *zap.Logger
}

// New creates a watcher for paths. Directories are watched recursively,
// including subdirectories created later.
func New(paths []string, debounce time.Duration, logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{paths: paths, debounce: debounce, logger: logger}
}

// Run blocks until ctx is canceled. onChange runs on the watcher goroutine,
// so events arriving during a rebuild are batched into the next call. Its
// errors are logged and watching continues.
func (w *Watcher) Run(ctx context.Context, onChange OnChange) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	watched := 0
	for _, p := range w.paths {
		n, err := addTree(fw, p)
		if err != nil {
			return err
		}
		watched += n
	}
	if watched == 0 {
		return errors.New("nothing to watch: none of the watched paths exist")
	}
	w.logger.Info("watching for changes", zap.Strings("paths", w.paths), zap.Int("watches", watched))

	pending := map[string]bool{}
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if _, err := addTree(fw, event.Name); err != nil {
						w.logger.Warn("cannot watch new directory", zap.String("path", event.Name), zap.Error(err))
					}
				}
			}
			w.logger.Debug("change detected", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			pending[event.Name] = true
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))

		case <-timer.C:
			changed := drain(pending)
			if err := onChange(ctx, changed); err != nil && ctx.Err() == nil {
				w.logger.Warn("rebuild failed", zap.Error(err))
			}
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(event.Name), ".") || strings.HasSuffix(event.Name, "~") {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

// addTree watches root and every directory below it. A missing root is
// skipped; a file root is watched directly.
func addTree(fw *fsnotify.Watcher, root string) (int, error) {
	info, err := os.Stat(root)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return 1, fw.Add(root)
	}

	n := 0
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		n++
		return fw.Add(p)
	})
	return n, err
}

func drain(pending map[string]bool) []string {
	changed := make([]string, 0, len(pending))
	for p := range pending {
		changed = append(changed, p)
		delete(pending, p)
	}
	sort.Strings(changed)
	return changed
}
