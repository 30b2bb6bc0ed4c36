package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reports changes to extension manifest files so the session can
// reload the registry and re-resolve every content item.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	files    map[string]bool
	debounce time.Duration
	logger   zerolog.Logger
}

// NewWatcher creates a watcher for the given manifest files.
func NewWatcher(logger zerolog.Logger) *Watcher {
	return &Watcher{
		files:    make(map[string]bool),
		debounce: DefaultDebounce,
		logger:   logger.With().Str("component", "registry.watcher").Logger(),
	}
}

// SetDebounce overrides DefaultDebounce.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Watch starts watching paths and calls onChange, debounced, whenever one of
// them is written, created, renamed or removed. It returns once the watch is
// set up; events are processed until ctx is done or Close is called.
func (w *Watcher) Watch(ctx context.Context, paths []string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	w.mu.Lock()
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
	w.watcher = watcher
	w.files = make(map[string]bool)
	dirs := make(map[string]bool)
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	w.mu.Unlock()

	// Watch parent directories so editors that replace files atomically
	// still produce events.
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			w.logger.Warn().Err(err).Str("dir", dir).Msg("Failed to watch directory")
		}
	}

	go w.processEvents(ctx, watcher, onChange)

	w.logger.Debug().Int("files", len(paths)).Msg("Started watching extension manifests")
	return nil
}

func (w *Watcher) processEvents(ctx context.Context, watcher *fsnotify.Watcher, onChange func()) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !w.isWatched(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Extension manifest changed")

			w.mu.Lock()
			delay := w.debounce
			w.mu.Unlock()

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(delay, onChange)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) isWatched(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[abs]
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	w.watcher = nil
	return err
}
