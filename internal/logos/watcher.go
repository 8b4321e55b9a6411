package logos

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventCallback is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind, name string)

// Watch keeps the library index in sync with its directory until ctx is
// cancelled. Renames drop the old name at once and schedule a full rescan.
func Watch(ctx context.Context, lib *Library, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(lib.Root()); err != nil {
		return err
	}
	logger.Info("logo watcher: started", slog.String("root", lib.Root()))

	var rescanTimer *time.Timer
	var rescanCh <-chan time.Time
	scheduleRescan := func() {
		if rescanTimer == nil {
			rescanTimer = time.NewTimer(200 * time.Millisecond)
			rescanCh = rescanTimer.C
		} else {
			rescanTimer.Reset(200 * time.Millisecond)
		}
	}

	notify := func(kind, name string) {
		if cb != nil {
			cb(kind, name)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if rescanTimer != nil {
				rescanTimer.Stop()
			}
			logger.Info("logo watcher: stopped")
			return nil

		case <-rescanCh:
			if err := lib.Rescan(); err != nil {
				logger.Warn("logo watcher: rescan failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if filepath.Dir(ev.Name) != lib.Root() || !IsLogoName(name) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if _, err := lib.refresh(name); err != nil {
					logger.Debug("logo watcher: refresh failed", slog.String("logo", name), slog.String("error", err.Error()))
					continue
				}
				kind := "updated"
				if ev.Op&fsnotify.Create != 0 {
					kind = "created"
				}
				logger.Debug("logo watcher: indexed", slog.String("logo", name), slog.String("op", kind))
				notify(kind, name)

			case ev.Op&fsnotify.Remove != 0:
				if lib.forget(name) {
					logger.Debug("logo watcher: removed", slog.String("logo", name))
					notify("deleted", name)
				}

			case ev.Op&fsnotify.Rename != 0:
				if lib.forget(name) {
					notify("deleted", name)
				}
				scheduleRescan()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("logo watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
