package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/franz/musicsync/internal/util"
)

// Watcher rescans files as they appear or change below a set of roots.
// Bursts of events are coalesced into one batch per quiet period.
type Watcher struct {
	scanner  *Scanner
	debounce time.Duration
}

// NewWatcher creates a watcher submitting through scanner
func NewWatcher(scanner *Scanner, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{scanner: scanner, debounce: debounce}
}

// Watch blocks until ctx is done. ready, if not nil, is closed once every
// root is being watched.
func (w *Watcher) Watch(ctx context.Context, roots []string, ready chan<- struct{}) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	for _, root := range roots {
		if err := addTree(fw, root); err != nil {
			return err
		}
		if util.IsNetworkPath(root) {
			util.WarnLog("%s is a network mount; changes made by other hosts are only seen by a rescan", root)
		}
		util.InfoLog("Watching %s", root)
	}
	if ready != nil {
		close(ready)
	}

	files := make(map[string]bool)
	var dirs []string

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			util.WarnLog("Watch error: %v", err)

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			switch {
			case ev.Has(fsnotify.Create) && isDir(ev.Name):
				if err := addTree(fw, ev.Name); err != nil {
					util.WarnLog("Failed to watch %s: %v", ev.Name, err)
				}
				dirs = append(dirs, ev.Name)
			case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
				if w.scanner.isAudioFile(ev.Name) {
					files[ev.Name] = true
				}
			default:
				util.DebugLog("Ignoring %s", ev)
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			w.flush(ctx, files, dirs)
			files = make(map[string]bool)
			dirs = nil
		}
	}
}

func (w *Watcher) flush(ctx context.Context, files map[string]bool, dirs []string) {
	if len(files) > 0 {
		list := make([]string, 0, len(files))
		for path := range files {
			list = append(list, path)
		}
		result, err := w.scanner.ScanFiles(ctx, list)
		if err != nil {
			util.WarnLog("Rescan of %d changed files failed: %v", len(list), err)
		} else {
			util.InfoLog("Queued %d changed files", result.FilesQueued)
		}
	}

	for _, dir := range dirs {
		if _, err := w.scanner.Scan(ctx, dir); err != nil {
			util.WarnLog("Scan of new directory %s failed: %v", dir, err)
		}
	}
}

// addTree watches dir and every directory below it
func addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
