package rag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileEvent reports a PDF that appeared, changed or disappeared.
type FileEvent struct {
	Path    string
	Removed bool
}

// Watcher follows a directory tree and reports PDF changes once they have
// been quiet for the debounce interval.
type Watcher struct {
	root     string
	debounce time.Duration
	logger   *zap.Logger
}

func NewWatcher(root string, debounce time.Duration, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = time.Second
	}
	return &Watcher{root: root, debounce: debounce, logger: logger.Named("watcher")}
}

type pendingEvent struct {
	event FileEvent
	at    time.Time
}

// Run blocks until ctx is done, calling handle for each settled event.
func (w *Watcher) Run(ctx context.Context, handle func(context.Context, FileEvent)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher failed: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}

	pending := make(map[string]pendingEvent)
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, ev.Name); err != nil {
						w.logger.Warn("watch new directory failed", zap.String("path", ev.Name), zap.Error(err))
					}
					continue
				}
			}
			if !IsPDF(ev.Name) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				pending[ev.Name] = pendingEvent{event: FileEvent{Path: ev.Name, Removed: true}, at: time.Now()}
			case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
				pending[ev.Name] = pendingEvent{event: FileEvent{Path: ev.Name}, at: time.Now()}
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		case now := <-ticker.C:
			for path, p := range pending {
				if now.Sub(p.at) < w.debounce {
					continue
				}
				delete(pending, path)
				handle(ctx, p.event)
			}
		}
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch %s failed: %w", root, err)
	}
	return nil
}
