package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a configuration file whenever it changes on disk and
// fans the freshly loaded value out to registered handlers.
//
// The parent directory is watched rather than the file itself: editors
// and scp replace files by writing a temporary name and renaming it
// into place, which silently kills an inode-level watch. Events are
// debounced so a burst of writes collapses into a single reload.
type Watcher[T any] struct {
	path     string
	name     string
	dir      string
	debounce time.Duration
	loader   func(path string) (T, error)
	onError  func(error)

	mu       sync.Mutex
	handlers map[int]func(T)
	nextID   int

	fsw    *fsnotify.Watcher
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// WatcherOption configures a Watcher.
type WatcherOption[T any] func(*Watcher[T])

// WithDebounce sets how long the watcher waits after the last write
// before reloading. Default is 500ms.
func WithDebounce[T any](d time.Duration) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.debounce = d
	}
}

// WithErrorHandler registers a callback for reload failures. The last
// successfully loaded value stays in effect either way.
func WithErrorHandler[T any](handler func(error)) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.onError = handler
	}
}

// NewConfigWatcher creates a watcher for the file at path. The loader
// runs on every change; handlers only ever see values it returned, so
// a file that fails to parse leaves the previous value in effect.
func NewConfigWatcher[T any](
	path string,
	loader func(path string) (T, error),
	logger *slog.Logger,
	opts ...WatcherOption[T],
) *Watcher[T] {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher[T]{
		path:     path,
		name:     filepath.Base(abs),
		dir:      filepath.Dir(abs),
		debounce: 500 * time.Millisecond,
		loader:   loader,
		handlers: make(map[int]func(T)),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnReload registers a handler invoked with each successfully loaded
// value. The returned function removes the handler again.
func (w *Watcher[T]) OnReload(handler func(T)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.handlers[id] = handler
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.handlers, id)
		w.mu.Unlock()
	}
}

// Start begins watching. It fails when the directory holding the file
// cannot be watched.
func (w *Watcher[T]) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if addErr := fsw.Add(w.dir); addErr != nil {
		fsw.Close()
		return addErr
	}
	w.fsw = fsw

	w.logger.Info("Watching config file", "path", w.path, "debounce", w.debounce)
	go w.run()
	return nil
}

// Stop ends watching and releases the underlying inotify resources.
func (w *Watcher[T]) Stop() error {
	w.cancel()
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

func (w *Watcher[T]) run() {
	// Armed only once a matching event arrives; each further event
	// pushes the deadline out until the file has settled.
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Debug("Config watcher stopped", "path", w.path)
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != w.name {
				continue
			}
			// Write is the in-place edit; Create and Rename cover the
			// temp-file-and-rename dance editors and scp do.
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("Config file changed", "op", ev.Op.String())
			timer.Reset(w.debounce)

		case <-timer.C:
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watch error", "error", err)
		}
	}
}

// reload loads the file and fans the value out to every handler.
func (w *Watcher[T]) reload() {
	value, err := w.loader(w.path)
	if err != nil {
		w.logger.Warn("Config reload failed, keeping previous", "path", w.path, "error", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	handlers := make([]func(T), 0, len(w.handlers))
	for _, h := range w.handlers {
		handlers = append(handlers, h)
	}
	w.mu.Unlock()

	w.logger.Info("Config reloaded", "path", w.path)
	for _, handler := range handlers {
		handler(value)
	}
}
