package site

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the site configuration when its file changes. Editors
// often produce bursts of write/rename events, so changes are debounced
// before reloading. A failed reload keeps the previous snapshot.
type Watcher struct {
	path    string
	store   *Store
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	debounce time.Duration

	pendingMu sync.Mutex
	pending   bool
}

// NewWatcher creates a watcher for the given configuration file.
func NewWatcher(path string, store *Store, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		store:    store,
		watcher:  fsw,
		logger:   logger,
		debounce: 200 * time.Millisecond,
	}, nil
}

// Start begins watching. It watches the parent directory rather than the
// file itself so that atomic save (write temp, rename over) is caught.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	go w.run(ctx)

	w.logger.Info("Configuration watcher started", "path", w.path)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.pendingMu.Lock()
				w.pending = true
				w.pendingMu.Unlock()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Configuration watcher error", "error", err)

		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) flush() {
	w.pendingMu.Lock()
	dirty := w.pending
	w.pending = false
	w.pendingMu.Unlock()

	if !dirty {
		return
	}

	cfg, err := LoadFile(w.path)
	if err != nil {
		w.logger.Warn("Configuration reload failed, keeping previous snapshot",
			"path", w.path,
			"error", err)
		return
	}

	if current := w.store.Snapshot(); current != nil && current.Version == cfg.Version {
		w.logger.Debug("Configuration unchanged, skipping reload", "version", shortVersion(cfg))
		return
	}

	w.store.Replace(cfg)
}
