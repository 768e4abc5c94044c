// Package watch reloads the library when its document is edited outside the
// running process.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/c360studio/maclib/storage"
)

// Config configures library file watching.
type Config struct {
	// Enabled controls whether file watching is active.
	Enabled bool `yaml:"enabled"`

	// DebounceDelay is how long to wait for more changes before reloading.
	DebounceDelay string `yaml:"debounce_delay"`
}

// DefaultConfig returns default watch configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		DebounceDelay: "500ms",
	}
}

// GetDebounceDelay returns the debounce delay as a duration.
func (c *Config) GetDebounceDelay() time.Duration {
	if c.DebounceDelay == "" {
		return 500 * time.Millisecond
	}
	d, err := time.ParseDuration(c.DebounceDelay)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// Reloader re-reads the library from storage.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Digester reports the digest of the document the process last read or wrote.
type Digester interface {
	Digest() string
}

// LibraryWatcher watches the library document and calls Reload when its
// content differs from what the store last read or wrote. Saves made by this
// process therefore never trigger a reload.
type LibraryWatcher struct {
	config   Config
	path     string
	watcher  *fsnotify.Watcher
	reloader Reloader
	digester Digester
	logger   *slog.Logger

	// Debouncing: reload once the file has been quiet for the delay
	pending   atomic.Bool
	lastEvent atomic.Int64

	stopOnce sync.Once
	reloads  atomic.Int64
}

// NewLibraryWatcher creates a watcher for the document at libraryPath.
func NewLibraryWatcher(config Config, libraryPath string, reloader Reloader, digester Digester, logger *slog.Logger) (*LibraryWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &LibraryWatcher{
		config:   config,
		path:     filepath.Clean(libraryPath),
		watcher:  fsw,
		reloader: reloader,
		digester: digester,
		logger:   logger,
	}, nil
}

// Run watches until ctx is cancelled. The document's directory is watched
// rather than the file, because saves replace the file by rename.
func (w *LibraryWatcher) Run(ctx context.Context) error {
	defer w.Stop()

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	w.logger.Info("Library watcher started",
		"path", w.path,
		"debounce", w.config.GetDebounceDelay())

	ticker := time.NewTicker(max(w.config.GetDebounceDelay()/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

// Stop closes the underlying watcher.
func (w *LibraryWatcher) Stop() {
	w.stopOnce.Do(func() {
		_ = w.watcher.Close()
	})
}

// Reloads returns the number of reloads the watcher has triggered.
func (w *LibraryWatcher) Reloads() int64 {
	return w.reloads.Load()
}

func (w *LibraryWatcher) handleFSEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	w.lastEvent.Store(time.Now().UnixNano())
	w.pending.Store(true)
	w.logger.Debug("Library change detected", "op", event.Op.String())
}

// flushPending reloads once changes have settled, and only when the content
// on disk is not what the store last saw.
func (w *LibraryWatcher) flushPending(ctx context.Context) {
	if !w.pending.Load() {
		return
	}
	if time.Since(time.Unix(0, w.lastEvent.Load())) < w.config.GetDebounceDelay() {
		return
	}
	w.pending.Store(false)

	if info, err := os.Stat(w.path); err == nil && info.Size() == 0 {
		// Truncated by a writer that has not finished yet.
		w.pending.Store(true)
		return
	}

	onDisk, err := storage.DigestFile(w.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			w.logger.Warn("Library document removed; keeping the loaded library", "path", w.path)
			return
		}
		w.logger.Warn("Failed to read library for change check", "path", w.path, "error", err)
		return
	}
	if onDisk == w.digester.Digest() {
		return
	}

	w.logger.Info("Library changed on disk, reloading", "path", w.path)
	if err := w.reloader.Reload(ctx); err != nil {
		w.logger.Error("Reload failed; keeping the loaded library", "error", err)
		return
	}
	w.reloads.Add(1)
}
