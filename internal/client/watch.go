package client

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/openmined/syftsync/internal/reconcile"
	"github.com/openmined/syftsync/internal/scan"
	"github.com/openmined/syftsync/internal/transfer"
	"github.com/rjeczalik/notify"
	"golang.org/x/sync/errgroup"
)

const eventBufferSize = 64

// FilterCallback returns true if the event for path should be dropped
type FilterCallback func(path string) bool

// FileWatcher collapses bursts of filesystem events below a directory into
// a single change notification.
type FileWatcher struct {
	watchDir string
	changes  chan struct{}
	debounce time.Duration
	filter   FilterCallback

	mu    sync.Mutex
	timer *time.Timer
}

func NewFileWatcher(watchDir string, debounce time.Duration) *FileWatcher {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	return &FileWatcher{
		watchDir: watchDir,
		changes:  make(chan struct{}, 1),
		debounce: debounce,
	}
}

// FilterPaths sets a callback that drops raw events before debouncing
func (fw *FileWatcher) FilterPaths(callback FilterCallback) {
	fw.filter = callback
}

// Changes receives one value per debounced burst. Changes that happen
// before the previous one was received are merged into it.
func (fw *FileWatcher) Changes() <-chan struct{} {
	return fw.changes
}

// Run watches until ctx is done.
func (fw *FileWatcher) Run(ctx context.Context) error {
	slog.Info("file watcher start", "dir", fw.watchDir)

	raw := make(chan notify.EventInfo, eventBufferSize)
	if err := notify.Watch(fw.watchDir+"/...", raw, notify.Create, notify.Write, notify.Remove, notify.Rename); err != nil {
		return err
	}
	defer notify.Stop(raw)

	for {
		select {
		case <-ctx.Done():
			fw.mu.Lock()
			if fw.timer != nil {
				fw.timer.Stop()
			}
			fw.mu.Unlock()
			slog.Info("file watcher stopped")
			return nil
		case event := <-raw:
			if fw.filter != nil && fw.filter(event.Path()) {
				continue
			}
			slog.Debug("file watcher", "event", event.Event(), "path", event.Path())
			fw.touch()
		}
	}
}

// touch restarts the debounce timer
func (fw *FileWatcher) touch() {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.debounce, func() {
		select {
		case fw.changes <- struct{}{}:
		default:
		}
	})
}

// Watch syncs rel, then syncs again after local changes settle and on every
// watch interval, until ctx is done. onSync, if set, sees every run.
func (c *Client) Watch(ctx context.Context, rel string, onSync func(*Summary, error)) error {
	if err := c.ws.Lock(); err != nil {
		return err
	}
	defer func() {
		if err := c.ws.Unlock(); err != nil {
			slog.Warn("workspace unlock", "error", err)
		}
	}()

	watchDir, err := scan.Join(c.config.LocalDir, rel)
	if err != nil {
		return err
	}
	fw := NewFileWatcher(watchDir, c.config.WatchDebounce)
	fw.FilterPaths(c.ignoredPath)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return fw.Run(egCtx)
	})

	eg.Go(func() error {
		ticker := time.NewTicker(c.config.WatchInterval)
		defer ticker.Stop()

		for {
			summary, err := c.sync(egCtx, rel)
			if onSync != nil {
				onSync(summary, err)
			}
			if egCtx.Err() != nil {
				return nil
			}
			if errors.Is(err, reconcile.ErrUnexpectedAction) || errors.Is(err, transfer.ErrUnexpectedAction) {
				return err
			}

			select {
			case <-egCtx.Done():
				return nil
			case <-fw.Changes():
				slog.Debug("watch local change")
			case <-ticker.C:
				slog.Debug("watch interval")
			}
		}
	})

	return eg.Wait()
}

// ignoredPath drops events for bookkeeping files and for paths a listing
// would not show.
func (c *Client) ignoredPath(abs string) bool {
	rel, err := filepath.Rel(c.config.LocalDir, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}
	rel = filepath.ToSlash(rel)

	parts := strings.Split(rel, "/")
	for i, part := range parts {
		if scan.Reserved(part) {
			return true
		}
		if !strings.HasPrefix(part, ".") {
			continue
		}
		last := i == len(parts)-1
		if (!last && !c.config.HiddenDirs) || (last && !c.config.HiddenFiles && !c.config.HiddenDirs) {
			return true
		}
	}
	return c.ignore.ShouldIgnore(rel)
}
