package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/autolink/internal/storage"
)

// debounce is how long the watcher waits for the vault to go quiet before
// resolving it again.
const debounce = 200 * time.Millisecond

// EventCallback is called after every watcher-driven Sync that stored a new
// run, or with a non-nil err when the Sync failed.
type EventCallback func(run Run, err error)

// Watch starts an fsnotify watcher on the vault root and re-syncs the index
// whenever notes change, until ctx is cancelled. Bursts of events (an editor
// saving several files, a rename) collapse into one Sync.
//
// New directories created at runtime are automatically added to the watch
// list. Hidden directories are ignored.
func Watch(ctx context.Context, db *DB, store storage.Provider, vaultRoot string, r Resolver, opts SyncOptions, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, vaultRoot); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", vaultRoot))

	var timer *time.Timer
	var fire <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			run, changed, syncErr := Sync(ctx, db, store, r, opts, logger)
			if syncErr != nil {
				if ctx.Err() != nil {
					continue
				}
				logger.Warn("watcher: sync failed", slog.String("error", syncErr.Error()))
				if cb != nil {
					cb(Run{}, syncErr)
				}
				continue
			}
			if changed && cb != nil {
				cb(run, nil)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if storage.IsHidden(filepath.Base(ev.Name)) {
						continue
					}
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
					// The directory may already hold notes.
					schedule()
					continue
				}
			}

			if !storage.IsNote(filepath.Base(ev.Name)) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("watcher: change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its visible subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && storage.IsHidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
