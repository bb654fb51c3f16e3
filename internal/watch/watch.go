// Package watch turns filesystem events under the sync root into requests
// for an early sync cycle.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"docsync/internal/docsync"
	dfs "docsync/internal/fs"
)

// DefaultDebounce is how long the tree must stay quiet before a cycle is
// requested.
const DefaultDebounce = 2 * time.Second

// Triggerer accepts early cycle requests. *docsync.Scheduler implements it.
type Triggerer interface {
	Trigger() bool
}

// Watcher watches every directory under root. Events are debounced into a
// single Trigger call; the cycle itself rescans the whole tree.
type Watcher struct {
	root     string
	ignore   *dfs.IgnoreMatcher
	debounce time.Duration
	target   Triggerer
	logger   docsync.Logger
}

func New(root string, ignore []string, debounce time.Duration, target Triggerer, logger docsync.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = docsync.NewNopLogger()
	}
	return &Watcher{
		root:     root,
		ignore:   dfs.NewIgnoreMatcher(ignore),
		debounce: debounce,
		target:   target,
		logger:   logger,
	}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}
	w.logger.Info("watching for changes", "root", w.root, "debounce", w.debounce)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.ignored(event.Name, false) {
				continue
			}
			// Chmod is kept: permission and ACL changes only move ctime.
			if event.Has(fsnotify.Create) {
				if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, event.Name); err != nil {
						w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if w.target.Trigger() {
				w.logger.Debug("requested sync cycle after filesystem changes")
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// addTree watches dir and every directory below it that is not ignored.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("watching %s: %w", path, err)
			}
			w.logger.Warn("skipping unreadable directory", "path", path, "error", err)
			return filepath.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.ignored(path, true) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			if path == dir {
				return fmt.Errorf("watching %s: %w", path, err)
			}
			w.logger.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) ignored(path string, isDir bool) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	return w.ignore.Match(filepath.ToSlash(rel), isDir)
}
