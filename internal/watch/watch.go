// Package watch hot-reloads the rules config when the file changes on disk.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDefault is how long after the last file event a reload fires.
// Editors write config files as several events (truncate, write, rename).
const debounceDefault = 500 * time.Millisecond

// pollDefault is the fallback polling interval when fsnotify is unavailable.
const pollDefault = 5 * time.Second

// ConfigWatcher watches one config file and invokes reload after changes.
type ConfigWatcher struct {
	path     string
	reload   func() error
	debounce time.Duration

	// OnError, when set, receives watcher and reload failures. Reload
	// failures are not fatal; the previous rule set stays live.
	OnError func(error)
}

// NewConfigWatcher creates a watcher for the given config file path.
func NewConfigWatcher(path string, reload func() error) *ConfigWatcher {
	return &ConfigWatcher{path: path, reload: reload, debounce: debounceDefault}
}

// Run watches until ctx is cancelled. The parent directory is watched rather
// than the file itself: save-via-rename replaces the inode, which would
// silently detach a file-level watch.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	// Single debounce timer, reset on each event. Starts stopped.
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	base := filepath.Base(w.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timer.C:
			if err := w.reload(); err != nil {
				w.reportError(err)
			}

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.reportError(err)
		}
	}
}

func (w *ConfigWatcher) reportError(err error) {
	if w.OnError != nil {
		w.OnError(err)
	}
}

// PollWatcher reloads the config when its modification time or size changes.
// Fallback for filesystems where fsnotify does not work (NFS and the like).
type PollWatcher struct {
	path     string
	reload   func() error
	interval time.Duration

	lastMod  time.Time
	lastSize int64

	OnError func(error)
}

// NewPollWatcher creates a polling watcher. Zero interval uses the default.
func NewPollWatcher(path string, reload func() error, interval time.Duration) *PollWatcher {
	if interval == 0 {
		interval = pollDefault
	}
	return &PollWatcher{path: path, reload: reload, interval: interval}
}

// Run polls until ctx is cancelled.
func (w *PollWatcher) Run(ctx context.Context) error {
	if fi, err := os.Stat(w.path); err == nil {
		w.lastMod = fi.ModTime()
		w.lastSize = fi.Size()
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fi, err := os.Stat(w.path)
			if err != nil {
				continue
			}
			if fi.ModTime().Equal(w.lastMod) && fi.Size() == w.lastSize {
				continue
			}
			w.lastMod = fi.ModTime()
			w.lastSize = fi.Size()
			if err := w.reload(); err != nil && w.OnError != nil {
				w.OnError(err)
			}
		}
	}
}
