package persona

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a Holder when persona files in its directory change.
// Bursts of events (editors writing temp files, renames) collapse into one
// reload after the debounce interval.
type Watcher struct {
	holder   *Holder
	logger   *slog.Logger
	debounce time.Duration

	// OnReload, when set, is called after every reload attempt.
	OnReload func(*Catalog, error)
}

func NewWatcher(holder *Holder, logger *slog.Logger, debounce time.Duration) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{holder: holder, logger: logger, debounce: debounce}
}

// Run blocks until ctx is done. A directory that does not exist is not an
// error: the watcher logs and waits for cancellation without reloading.
func (w *Watcher) Run(ctx context.Context) error {
	if w == nil || w.holder == nil {
		return nil
	}
	dir := w.holder.Dir()
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("persona_watch_skipped", "dir", dir, "reason", "directory not found")
			<-ctx.Done()
			return nil
		}
		return fmt.Errorf("stat persona dir: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create persona watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch persona dir %s: %w", dir, err)
	}
	w.logger.Info("persona_watch_started", "dir", dir, "debounce", w.debounce.String())

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	pending := false

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
			w.logger.Debug("persona_watch_event", "path", event.Name, "op", event.Op.String())
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
			pending = true
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("persona_watch_error", "dir", dir, "error", err.Error())
		case <-timer.C:
			pending = false
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	c, err := w.holder.Reload()
	if err != nil {
		w.logger.Warn("persona_reload_error", "dir", w.holder.Dir(), "error", err.Error())
	}
	if c != nil {
		w.logger.Info("persona_reloaded", "dir", w.holder.Dir(), "count", c.Len(), "names", strings.Join(c.Names(), ","))
	}
	if w.OnReload != nil {
		w.OnReload(c, err)
	}
}

func relevant(event fsnotify.Event) bool {
	if !supportedExts[strings.ToLower(filepath.Ext(event.Name))] {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}
