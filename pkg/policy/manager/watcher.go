package manager

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is used when WatcherConfig leaves it unset.
const DefaultDebounceInterval = 200 * time.Millisecond

// WatcherConfig configures a FileWatcher.
type WatcherConfig struct {
	// Path is the policy file, or a directory of YAML files.
	Path string

	// DebounceInterval is the quiet period before a reload fires.
	DebounceInterval time.Duration
}

// FileWatcher calls back after the policy file changes. Editors usually
// replace files by rename, so the parent directory is watched and events are
// filtered by name.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	debounce *Debouncer
	dir      string
	file     string // empty when watching a whole directory
}

// NewFileWatcher creates a watcher for cfg.Path, which must exist.
func NewFileWatcher(cfg WatcherConfig, logger *slog.Logger) (*FileWatcher, error) {
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = DefaultDebounceInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat watch path: %w", err)
	}
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, err
	}

	fw := &FileWatcher{logger: logger, debounce: NewDebouncer(cfg.DebounceInterval)}
	if info.IsDir() {
		fw.dir = abs
	} else {
		fw.dir, fw.file = filepath.Dir(abs), filepath.Base(abs)
	}

	fw.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fw.watcher.Add(fw.dir); err != nil {
		fw.watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", fw.dir, err)
	}
	return fw, nil
}

// Watch blocks until ctx is cancelled, calling onChange after each burst of
// relevant events. The watcher is closed on return.
func (fw *FileWatcher) Watch(ctx context.Context, onChange func() error) error {
	defer fw.watcher.Close()
	defer fw.debounce.Stop()

	fw.logger.Info("policy file watcher started", "dir", fw.dir, "file", fw.file)

	for {
		select {
		case <-ctx.Done():
			fw.logger.Info("policy file watcher stopped")
			return nil

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !fw.relevant(event) {
				continue
			}
			fw.logger.Debug("policy file event", "path", event.Name, "op", event.Op.String())

			fw.debounce.Trigger(func() {
				if err := onChange(); err != nil {
					fw.logger.Warn("reload after file change failed", "error", err)
				}
			})

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			fw.logger.Error("policy file watcher error", "error", err)
		}
	}
}

func (fw *FileWatcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	if fw.file != "" {
		return base == fw.file
	}
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	return ext == ".yaml" || ext == ".yml"
}

// Debouncer runs the most recent callback once events stop arriving for the
// configured interval.
type Debouncer struct {
	interval time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopped  bool
}

// NewDebouncer creates a Debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules callback, replacing any pending one.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		cb := d.callback
		d.callback = nil
		stopped := d.stopped
		d.mu.Unlock()

		if cb != nil && !stopped {
			cb()
		}
	})
}

// Stop cancels any pending callback. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
